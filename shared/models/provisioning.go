package models

// ProvisioningState is the lifecycle state of a tenant, from signup to a
// live site. The pipeline states advance strictly forward; failed, suspended
// and terminated are side states reached through failure handling or
// administrative action.
type ProvisioningState string

const (
	StatePending          ProvisioningState = "pending"
	StateOwnerAssigned    ProvisioningState = "owner_assigned"
	StateAgencyCreated    ProvisioningState = "agency_created"
	StateLinksCreated     ProvisioningState = "links_created"
	StateFieldKeysCreated ProvisioningState = "field_keys_created"
	StatePropertiesSeeded ProvisioningState = "properties_seeded"
	StateReady            ProvisioningState = "ready"
	StateLive             ProvisioningState = "live"

	StateFailed     ProvisioningState = "failed"
	StateSuspended  ProvisioningState = "suspended"
	StateTerminated ProvisioningState = "terminated"
)

// StepName identifies one provisioning step.
type StepName string

const (
	StepCreateOwner        StepName = "create_owner"
	StepCreateAgency       StepName = "create_agency"
	StepCreateDefaultLinks StepName = "create_default_links"
	StepCreateFieldKeys    StepName = "create_field_keys"
	StepSeedProperties     StepName = "seed_properties"
)

// StepOrder is the fixed, ordered provisioning pipeline. Completing step i
// moves the tenant from PipelineStates[i] to PipelineStates[i+1].
var StepOrder = []StepName{
	StepCreateOwner,
	StepCreateAgency,
	StepCreateDefaultLinks,
	StepCreateFieldKeys,
	StepSeedProperties,
}

// PipelineStates lists the forward pipeline in order, pending through ready.
var PipelineStates = []ProvisioningState{
	StatePending,
	StateOwnerAssigned,
	StateAgencyCreated,
	StateLinksCreated,
	StateFieldKeysCreated,
	StatePropertiesSeeded,
	StateReady,
}

// transitions is the statically validated transition table. Any transition
// not listed here is illegal and rejected before touching storage.
var transitions = map[ProvisioningState][]ProvisioningState{
	StatePending:          {StateOwnerAssigned, StateFailed},
	StateOwnerAssigned:    {StateAgencyCreated, StateFailed},
	StateAgencyCreated:    {StateLinksCreated, StateFailed},
	StateLinksCreated:     {StateFieldKeysCreated, StateFailed},
	StateFieldKeysCreated: {StatePropertiesSeeded, StateFailed},
	StatePropertiesSeeded: {StateReady, StateFailed},
	StateReady:            {StateLive, StateSuspended, StateTerminated},
	StateLive:             {StateSuspended, StateTerminated},
	StateSuspended:        {StateLive, StateTerminated},
	// Failure recovery: retry resumes the pipeline at the failed step, so
	// failed may transition back into any pipeline state or be terminated.
	StateFailed: {
		StateOwnerAssigned, StateAgencyCreated, StateLinksCreated,
		StateFieldKeysCreated, StatePropertiesSeeded, StateReady,
		StateTerminated,
	},
	StateTerminated: {},
}

// CanTransition reports whether from -> to is a legal transition.
func (from ProvisioningState) CanTransition(to ProvisioningState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Pipeline reports whether s is one of the forward pipeline states
// (pending through ready, exclusive of ready itself counting as in-flight).
func (s ProvisioningState) Pipeline() bool {
	for _, p := range PipelineStates {
		if p == s {
			return true
		}
	}
	return false
}

// NextStep returns the next pending step for a tenant in state s, or false
// when the pipeline is complete or s is not a pipeline state. For a failed
// tenant the caller resumes from the recorded failed step instead.
func (s ProvisioningState) NextStep() (StepName, bool) {
	for i, p := range PipelineStates {
		if p == s && i < len(StepOrder) {
			return StepOrder[i], true
		}
	}
	return "", false
}

// StateAfter returns the state a tenant reaches once step completes.
func StateAfter(step StepName) ProvisioningState {
	for i, name := range StepOrder {
		if name == step {
			return PipelineStates[i+1]
		}
	}
	return StateFailed
}

// StateBefore returns the pipeline state in which step is the next pending
// step. Used to resume a failed tenant at exactly the step that failed.
func StateBefore(step StepName) ProvisioningState {
	for i, name := range StepOrder {
		if name == step {
			return PipelineStates[i]
		}
	}
	return StateFailed
}
