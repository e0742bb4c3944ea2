// Package audit persists the append-only administrative trail: shard
// migrations, suspensions, terminations and go-live transitions. Entries are
// only ever inserted and read; there is deliberately no update or delete.
package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brickfolio/control-plane/shared/errs"
	"github.com/brickfolio/control-plane/shared/models"
)

// Store records and reads audit entries.
type Store interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	ForTenant(ctx context.Context, tenantID uuid.UUID, kind models.AuditKind) ([]models.AuditEntry, error)
}

// GormStore implements Store.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a GormStore on db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Append implements Store.
func (s *GormStore) Append(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return errs.Transient("audit append", err)
	}
	return nil
}

// ForTenant implements Store. Pass an empty kind for the full trail.
func (s *GormStore) ForTenant(ctx context.Context, tenantID uuid.UUID, kind models.AuditKind) ([]models.AuditEntry, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var entries []models.AuditEntry
	if err := q.Order("created_at ASC").Find(&entries).Error; err != nil {
		return nil, errs.Transient("audit read", err)
	}
	return entries, nil
}
