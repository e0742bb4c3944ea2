package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineAdvancesStrictlyForward(t *testing.T) {
	for i := 0; i < len(PipelineStates)-1; i++ {
		from, to := PipelineStates[i], PipelineStates[i+1]
		assert.True(t, from.CanTransition(to), "%s -> %s should be legal", from, to)
	}

	// Skipping a state is never legal.
	for i := 0; i < len(PipelineStates)-2; i++ {
		from, to := PipelineStates[i], PipelineStates[i+2]
		assert.False(t, from.CanTransition(to), "%s -> %s should be illegal", from, to)
	}

	// Neither is going backwards.
	assert.False(t, StateReady.CanTransition(StatePending))
	assert.False(t, StateAgencyCreated.CanTransition(StateOwnerAssigned))
}

func TestEveryPipelineStateCanFail(t *testing.T) {
	for _, s := range PipelineStates {
		if s == StateReady {
			continue
		}
		assert.True(t, s.CanTransition(StateFailed), "%s should be able to fail", s)
	}
	// A finished pipeline has nothing left to fail.
	assert.False(t, StateReady.CanTransition(StateFailed))
}

func TestFailedResumesIntoAnyPipelineState(t *testing.T) {
	for _, s := range PipelineStates {
		if s == StatePending {
			// Resuming re-runs a step, so pending is never re-entered.
			assert.False(t, StateFailed.CanTransition(s))
			continue
		}
		assert.True(t, StateFailed.CanTransition(s), "failed -> %s should be legal", s)
	}
	assert.True(t, StateFailed.CanTransition(StateTerminated))
}

func TestAdministrativeTransitions(t *testing.T) {
	assert.True(t, StateReady.CanTransition(StateLive))
	assert.True(t, StateReady.CanTransition(StateSuspended))
	assert.True(t, StateLive.CanTransition(StateSuspended))
	assert.True(t, StateSuspended.CanTransition(StateLive))
	assert.True(t, StateLive.CanTransition(StateTerminated))
	assert.False(t, StatePending.CanTransition(StateLive))
	assert.False(t, StateSuspended.CanTransition(StateReady))
}

func TestTerminatedIsTerminal(t *testing.T) {
	all := []ProvisioningState{
		StatePending, StateOwnerAssigned, StateAgencyCreated, StateLinksCreated,
		StateFieldKeysCreated, StatePropertiesSeeded, StateReady, StateLive,
		StateFailed, StateSuspended, StateTerminated,
	}
	for _, s := range all {
		assert.False(t, StateTerminated.CanTransition(s), "terminated -> %s should be illegal", s)
	}
}

func TestNextStepWalksTheStepOrder(t *testing.T) {
	for i, state := range PipelineStates {
		step, ok := state.NextStep()
		if state == StateReady {
			assert.False(t, ok, "ready has no pending step")
			continue
		}
		require.True(t, ok)
		assert.Equal(t, StepOrder[i], step)
	}

	_, ok := StateFailed.NextStep()
	assert.False(t, ok, "failed resumes via the recorded step, not NextStep")
}

func TestStateAfterAndBeforeRoundTrip(t *testing.T) {
	for _, step := range StepOrder {
		before := StateBefore(step)
		after := StateAfter(step)
		assert.True(t, before.CanTransition(after))

		next, ok := before.NextStep()
		require.True(t, ok)
		assert.Equal(t, step, next)
	}

	assert.Equal(t, StateReady, StateAfter(StepSeedProperties))
	assert.Equal(t, StatePending, StateBefore(StepCreateOwner))
}

func TestPipelineMembership(t *testing.T) {
	for _, s := range PipelineStates {
		assert.True(t, s.Pipeline())
	}
	assert.False(t, StateFailed.Pipeline())
	assert.False(t, StateLive.Pipeline())
	assert.False(t, StateSuspended.Pipeline())
	assert.False(t, StateTerminated.Pipeline())
}
