package provisioning

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/brickfolio/control-plane/shared/errs"
	"github.com/brickfolio/control-plane/shared/events"
	"github.com/brickfolio/control-plane/shared/models"
)

// Administrative transitions sit outside the pipeline: go-live, suspension
// and termination each validate against the transition table and append an
// audit entry of the same shape as a shard migration.

// GoLive moves a ready (or suspended) tenant into live. The ready -> live
// transition never fires automatically; it needs this explicit confirmation.
func (e *Engine) GoLive(ctx context.Context, tenantID uuid.UUID, actor, note string) (*models.Tenant, error) {
	return e.adminTransition(ctx, tenantID, models.StateLive, models.AuditGoLive, actor, note)
}

// Suspend takes a ready or live tenant out of service, data preserved.
func (e *Engine) Suspend(ctx context.Context, tenantID uuid.UUID, actor, note string) (*models.Tenant, error) {
	return e.adminTransition(ctx, tenantID, models.StateSuspended, models.AuditSuspension, actor, note)
}

// Terminate ends the tenant and releases its subdomain back to the pool.
func (e *Engine) Terminate(ctx context.Context, tenantID uuid.UUID, actor, note string) (*models.Tenant, error) {
	t, err := e.adminTransition(ctx, tenantID, models.StateTerminated, models.AuditTermination, actor, note)
	if err != nil {
		return nil, err
	}
	if relErr := e.names.Release(ctx, t.Subdomain); relErr != nil {
		// The tenant is already terminated; the sweeper will reclaim the
		// name if this release did not stick.
		logrus.WithError(relErr).WithField("subdomain", t.Subdomain).
			Warn("Failed to release subdomain on termination")
	}
	return t, nil
}

func (e *Engine) adminTransition(ctx context.Context, tenantID uuid.UUID, to models.ProvisioningState, kind models.AuditKind, actor, note string) (*models.Tenant, error) {
	if actor == "" {
		return nil, errs.Invalid("actor is required for administrative transitions")
	}

	t, err := e.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	from := t.ProvisioningState
	if !from.CanTransition(to) {
		e.appendAudit(ctx, tenantID, kind, string(from), string(to), actor, note, models.AuditFailed)
		return nil, errs.Invalid("tenant %s cannot go %s -> %s", tenantID, from, to)
	}

	changed, err := e.store.Transition(ctx, tenantID, from, to, nil)
	if err != nil {
		return nil, err
	}
	if !changed {
		e.appendAudit(ctx, tenantID, kind, string(from), string(to), actor, note, models.AuditFailed)
		return nil, errs.Conflict("tenant %s state changed concurrently", tenantID)
	}

	e.appendAudit(ctx, tenantID, kind, string(from), string(to), actor, note, models.AuditCompleted)

	ev := events.New(events.TypeStateChanged, tenantID)
	ev.FromState, ev.ToState, ev.Actor = string(from), string(to), actor
	if pubErr := e.events.Publish(ctx, ev); pubErr != nil {
		logrus.WithError(pubErr).Warn("Failed to publish state change event")
	}

	logrus.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"from":      from,
		"to":        to,
		"actor":     actor,
	}).Info("Administrative tenant transition")

	return e.store.Get(ctx, tenantID)
}

func (e *Engine) appendAudit(ctx context.Context, tenantID uuid.UUID, kind models.AuditKind, oldValue, newValue, actor, note, status string) {
	entry := &models.AuditEntry{
		TenantID: tenantID,
		Kind:     kind,
		OldValue: oldValue,
		NewValue: newValue,
		Actor:    actor,
		Note:     note,
		Status:   status,
	}
	if err := e.auditLog.Append(ctx, entry); err != nil {
		logrus.WithError(err).Error(fmt.Sprintf("Failed to append %s audit entry", kind))
	}
}
