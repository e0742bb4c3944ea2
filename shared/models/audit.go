package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditKind classifies an audit entry.
type AuditKind string

const (
	AuditShardMigration AuditKind = "shard_migration"
	AuditSuspension     AuditKind = "suspension"
	AuditTermination    AuditKind = "termination"
	AuditGoLive         AuditKind = "go_live"
)

// Audit entry statuses.
const (
	AuditCompleted = "completed"
	AuditFailed    = "failed"
)

// AuditEntry is an immutable record of an administrative action on a tenant:
// shard migrations, suspensions, terminations and go-live transitions all
// share this shape. Entries are append-only; nothing updates or deletes them.
type AuditEntry struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Kind     AuditKind `json:"kind" gorm:"type:varchar(32);not null;index"`

	// OldValue/NewValue hold the shard ids for a migration and the
	// provisioning states for an administrative transition.
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`

	Actor  string `json:"actor" gorm:"not null"`
	Note   string `json:"note"`
	Status string `json:"status" gorm:"type:varchar(16);not null"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for the AuditEntry model
func (AuditEntry) TableName() string {
	return "audit_entries"
}
