package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types published on the tenant-lifecycle topic.
const (
	TypeStateChanged   = "tenant_state_changed"
	TypeStepFailed     = "provisioning_step_failed"
	TypeShardMigrated  = "shard_migrated"
	TypeMigrationError = "shard_migration_failed"
)

// TenantEvent is one tenant lifecycle event for downstream consumers
// (billing, analytics, the onboarding UI's activity feed).
type TenantEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	TenantID  uuid.UUID `json:"tenant_id"`
	FromState string    `json:"from_state,omitempty"`
	ToState   string    `json:"to_state,omitempty"`
	Step      string    `json:"step,omitempty"`
	Error     string    `json:"error,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher sends tenant lifecycle events. Publishing is best-effort:
// callers log failures but never fail the underlying state change.
type Publisher interface {
	Publish(ctx context.Context, event TenantEvent) error
}

// Nop is a Publisher that drops events. Used where no broker is configured.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, TenantEvent) error { return nil }

// New fills in the event envelope.
func New(eventType string, tenantID uuid.UUID) TenantEvent {
	return TenantEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		TenantID:  tenantID,
		Timestamp: time.Now(),
	}
}
