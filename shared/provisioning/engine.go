package provisioning

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/brickfolio/control-plane/shared/audit"
	"github.com/brickfolio/control-plane/shared/errs"
	"github.com/brickfolio/control-plane/shared/events"
	"github.com/brickfolio/control-plane/shared/models"
	"github.com/brickfolio/control-plane/shared/tenancy"
	"github.com/brickfolio/control-plane/shared/utils"
)

// NameReleaser returns a subdomain name to the pool. Satisfied by the
// subdomain allocator; termination is the only caller here.
type NameReleaser interface {
	Release(ctx context.Context, name string) error
}

// Engine drives a tenant through the ordered provisioning pipeline. Each
// Advance call performs one transition, a single step or the final seal
// into ready once every step has run, under a per-tenant
// advisory lock so at most one advancement is in flight per tenant. A step
// failure parks the tenant in failed with the step recorded; a later Advance
// resumes at exactly that step, and completed steps are never re-run because
// every step checks its own postcondition first.
type Engine struct {
	store    TenantStore
	steps    map[models.StepName]Step
	locker   utils.Locker
	auditLog audit.Store
	names    NameReleaser
	events   events.Publisher
	now      func() time.Time
	lockTTL  time.Duration
}

// NewEngine assembles an Engine. steps must cover models.StepOrder.
func NewEngine(store TenantStore, steps []Step, locker utils.Locker, auditLog audit.Store, names NameReleaser, pub events.Publisher) *Engine {
	byName := make(map[models.StepName]Step, len(steps))
	for _, s := range steps {
		byName[s.Name()] = s
	}
	return &Engine{
		store:    store,
		steps:    byName,
		locker:   locker,
		auditLog: auditLog,
		names:    names,
		events:   pub,
		now:      time.Now,
		lockTTL:  2 * time.Minute,
	}
}

// Advance executes the next pending step for the tenant. On a tenant in
// failed it resumes at the recorded failed step. Advancing a tenant whose
// pipeline is complete is EInvalid; a concurrent advancement is EConflict.
func (e *Engine) Advance(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	release, ok, err := e.locker.Acquire(ctx, "provision:"+tenantID.String(), e.lockTTL)
	if err != nil {
		return nil, errs.Transient("provisioning lock", err)
	}
	if !ok {
		return nil, errs.Conflict("provisioning already in flight for tenant %s", tenantID)
	}
	defer release()

	t, err := e.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	// The last pipeline transition has no step behind it: every step has
	// run by properties_seeded, and ready just seals the pipeline.
	if t.ProvisioningState == models.StatePropertiesSeeded {
		return e.finalize(ctx, t)
	}

	stepName, fromState, err := nextStepFor(t)
	if err != nil {
		return nil, err
	}
	step, ok := e.steps[stepName]
	if !ok {
		return nil, errs.Internal(fmt.Sprintf("no implementation for step %s", stepName), nil)
	}

	// Cancellation lands between steps, never mid-step.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, e.fail(t, fromState, stepName, errs.Transient("cancelled before step", ctxErr))
	}

	sctx, err := tenancy.WithTenant(ctx, t)
	if err != nil {
		return nil, err
	}

	done, err := step.Done(sctx, t)
	if err == nil && !done {
		err = step.Run(sctx, t)
	}
	if err != nil {
		return nil, e.fail(t, fromState, stepName, err)
	}

	return e.complete(ctx, t, fromState, stepName)
}

// Cancel aborts provisioning between steps. The tenant becomes failed with a
// cancellation-tagged error and is resumable like any other failure.
func (e *Engine) Cancel(ctx context.Context, tenantID uuid.UUID, reason string) error {
	release, ok, err := e.locker.Acquire(ctx, "provision:"+tenantID.String(), e.lockTTL)
	if err != nil {
		return errs.Transient("provisioning lock", err)
	}
	if !ok {
		return errs.Conflict("provisioning in flight for tenant %s, cancel after it settles", tenantID)
	}
	defer release()

	t, err := e.store.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	stepName, fromState, err := nextStepFor(t)
	if err != nil {
		return err
	}
	return e.fail(t, fromState, stepName, errs.Transient("cancelled: "+reason, context.Canceled))
}

// Status reports the tenant's provisioning progress.
func (e *Engine) Status(ctx context.Context, tenantID uuid.UUID) (*Status, error) {
	t, err := e.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return statusOf(t, e.now()), nil
}

// nextStepFor picks the step Advance should execute: the recorded failed
// step for a failed tenant, otherwise the next pending pipeline step.
func nextStepFor(t *models.Tenant) (models.StepName, models.ProvisioningState, error) {
	if t.ProvisioningState == models.StateFailed {
		if t.FailedStep == "" {
			return "", "", errs.Internal(fmt.Sprintf("tenant %s failed without a recorded step", t.ID), nil)
		}
		return models.StepName(t.FailedStep), models.StateFailed, nil
	}
	step, ok := t.ProvisioningState.NextStep()
	if !ok {
		return "", "", errs.Invalid("tenant %s has no pending provisioning step in state %s", t.ID, t.ProvisioningState)
	}
	return step, t.ProvisioningState, nil
}

// fail parks the tenant in failed, recording the step and error so a retry
// resumes exactly where the pipeline stopped.
func (e *Engine) fail(t *models.Tenant, fromState models.ProvisioningState, step models.StepName, cause error) error {
	now := e.now()
	set := map[string]interface{}{
		"failed_step":        string(step),
		"provisioning_error": cause.Error(),
		"failed_at":          now,
	}
	if t.ProvisioningStartedAt == nil {
		set["provisioning_started_at"] = now
	}

	ctx := context.Background() // the failure record must land even if the request context died
	changed, err := e.store.Transition(ctx, t.ID, fromState, models.StateFailed, set)
	if err != nil {
		return err
	}
	if !changed {
		return errs.Conflict("tenant %s state changed concurrently", t.ID)
	}

	ev := events.New(events.TypeStepFailed, t.ID)
	ev.FromState, ev.ToState = string(fromState), string(models.StateFailed)
	ev.Step, ev.Error = string(step), cause.Error()
	if pubErr := e.events.Publish(ctx, ev); pubErr != nil {
		logrus.WithError(pubErr).Warn("Failed to publish step failure event")
	}

	logrus.WithFields(logrus.Fields{
		"tenant_id": t.ID,
		"step":      step,
	}).WithError(cause).Error("Provisioning step failed")

	if errs.ErrorCode(cause) == errs.EInternal {
		return cause
	}
	return errs.Transient(fmt.Sprintf("step %s failed", step), cause)
}

// complete records the step's state transition.
func (e *Engine) complete(ctx context.Context, t *models.Tenant, fromState models.ProvisioningState, step models.StepName) (*models.Tenant, error) {
	to := models.StateAfter(step)
	if !fromState.CanTransition(to) {
		return nil, errs.Internal(fmt.Sprintf("illegal transition %s -> %s", fromState, to), nil)
	}

	now := e.now()
	set := map[string]interface{}{
		"failed_step":        "",
		"provisioning_error": "",
		"failed_at":          nil,
	}
	if t.ProvisioningStartedAt == nil {
		set["provisioning_started_at"] = now
	}
	if to == models.StateReady {
		set["provisioning_completed_at"] = now
	}

	changed, err := e.store.Transition(ctx, t.ID, fromState, to, set)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, errs.Conflict("tenant %s state changed concurrently", t.ID)
	}

	ev := events.New(events.TypeStateChanged, t.ID)
	ev.FromState, ev.ToState = string(fromState), string(to)
	ev.Step = string(step)
	if pubErr := e.events.Publish(ctx, ev); pubErr != nil {
		logrus.WithError(pubErr).Warn("Failed to publish state change event")
	}

	logrus.WithFields(logrus.Fields{
		"tenant_id": t.ID,
		"step":      step,
		"state":     to,
	}).Info("Provisioning step completed")

	return e.store.Get(ctx, t.ID)
}

// finalize seals a fully stepped pipeline, stamping the completion time.
func (e *Engine) finalize(ctx context.Context, t *models.Tenant) (*models.Tenant, error) {
	set := map[string]interface{}{
		"failed_step":               "",
		"provisioning_error":        "",
		"failed_at":                 nil,
		"provisioning_completed_at": e.now(),
	}
	changed, err := e.store.Transition(ctx, t.ID, models.StatePropertiesSeeded, models.StateReady, set)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, errs.Conflict("tenant %s state changed concurrently", t.ID)
	}

	ev := events.New(events.TypeStateChanged, t.ID)
	ev.FromState, ev.ToState = string(models.StatePropertiesSeeded), string(models.StateReady)
	if pubErr := e.events.Publish(ctx, ev); pubErr != nil {
		logrus.WithError(pubErr).Warn("Failed to publish state change event")
	}

	logrus.WithField("tenant_id", t.ID).Info("Provisioning pipeline complete")
	return e.store.Get(ctx, t.ID)
}

// Status describes a tenant's provisioning progress for the onboarding UI
// and operator tooling.
type Status struct {
	TenantID       uuid.UUID                `json:"tenant_id"`
	State          models.ProvisioningState `json:"state"`
	CurrentStep    string                   `json:"current_step,omitempty"`
	CompletedSteps []models.StepName        `json:"completed_steps"`
	Error          string                   `json:"error,omitempty"`
	StartedAt      *time.Time               `json:"started_at,omitempty"`
	CompletedAt    *time.Time               `json:"completed_at,omitempty"`
	TimeInState    time.Duration            `json:"time_in_state"`
}

func statusOf(t *models.Tenant, now time.Time) *Status {
	st := &Status{
		TenantID:       t.ID,
		State:          t.ProvisioningState,
		CompletedSteps: completedSteps(t),
		Error:          t.ProvisioningError,
		StartedAt:      t.ProvisioningStartedAt,
		CompletedAt:    t.ProvisioningCompletedAt,
		TimeInState:    t.TimeInState(now),
	}
	if t.ProvisioningState == models.StateFailed {
		st.CurrentStep = t.FailedStep
	} else if step, ok := t.ProvisioningState.NextStep(); ok {
		st.CurrentStep = string(step)
	}
	return st
}

// completedSteps derives the finished steps from the state. The current
// step is tracked separately from the last completed one, so a failed
// tenant's progress stays accurate.
func completedSteps(t *models.Tenant) []models.StepName {
	state := t.ProvisioningState
	if state == models.StateFailed {
		state = models.StateBefore(models.StepName(t.FailedStep))
	}
	for i, p := range models.PipelineStates {
		if p == state {
			if i > len(models.StepOrder) {
				i = len(models.StepOrder)
			}
			return models.StepOrder[:i]
		}
	}
	// live, suspended, terminated: the full pipeline ran.
	return models.StepOrder
}
