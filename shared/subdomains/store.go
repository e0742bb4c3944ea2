package subdomains

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brickfolio/control-plane/shared/errs"
	"github.com/brickfolio/control-plane/shared/models"
)

// Store is the persistence contract for subdomain names. Every Claim method
// is a single atomic conditional write: the observed prior state is part of
// the condition, so concurrent callers for one name produce exactly one
// winner and the losers see changed=false.
type Store interface {
	// Get returns the row for name, or ENotFound.
	Get(ctx context.Context, name string) (*models.Subdomain, error)
	// Create inserts a new row. EConflict when the name already exists.
	Create(ctx context.Context, sub *models.Subdomain) error
	// ClaimReserve moves name to reserved for identity if the name is
	// claimable: available, released, expired-reserved, or already reserved
	// by the same identity (TTL refresh).
	ClaimReserve(ctx context.Context, name, identity string, expires, now time.Time) (bool, error)
	// ClaimAllocate moves name to allocated for tenantID if the name is
	// claimable or reserved by identity.
	ClaimAllocate(ctx context.Context, name, identity string, tenantID uuid.UUID, now time.Time) (bool, error)
	// Release moves name to released and clears all bindings.
	Release(ctx context.Context, name string) (bool, error)
	// ReleaseReservationsFor releases every reservation held by identity
	// except the named one. Reserving a new name replaces the old claim.
	ReleaseReservationsFor(ctx context.Context, identity, exceptName string) error
	// ReleaseExpired returns every reservation past expiry to available.
	ReleaseExpired(ctx context.Context, now time.Time) (int64, error)
}

// claimable states besides an expired reservation
var claimableStates = []models.SubdomainState{
	models.SubdomainAvailable,
	models.SubdomainReleased,
}

// GormStore implements Store with conditional UPDATEs keyed on the observed
// state, the storage-level half of the optimistic concurrency scheme.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a GormStore on db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Get implements Store.
func (s *GormStore) Get(ctx context.Context, name string) (*models.Subdomain, error) {
	var sub models.Subdomain
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("subdomain %q", name)
	}
	if err != nil {
		return nil, errs.Transient("subdomain lookup", err)
	}
	return &sub, nil
}

// Create implements Store.
func (s *GormStore) Create(ctx context.Context, sub *models.Subdomain) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	err := s.db.WithContext(ctx).Create(sub).Error
	if err != nil {
		if isUniqueViolation(err) {
			return errs.Conflict("subdomain %q already exists", sub.Name)
		}
		return errs.Transient("subdomain create", err)
	}
	return nil
}

// ClaimReserve implements Store.
func (s *GormStore) ClaimReserve(ctx context.Context, name, identity string, expires, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Subdomain{}).
		Where("name = ?", name).
		Where(s.db.
			Where("state IN ?", claimableStates).
			Or("state = ? AND reservation_expires_at <= ?", models.SubdomainReserved, now).
			Or("state = ? AND reserved_by = ?", models.SubdomainReserved, identity)).
		Updates(map[string]interface{}{
			"state":                  models.SubdomainReserved,
			"reserved_by":            identity,
			"reservation_expires_at": expires,
			"tenant_id":              nil,
		})
	if res.Error != nil {
		return false, errs.Transient("subdomain reserve", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ClaimAllocate implements Store.
func (s *GormStore) ClaimAllocate(ctx context.Context, name, identity string, tenantID uuid.UUID, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Subdomain{}).
		Where("name = ?", name).
		Where(s.db.
			Where("state IN ?", claimableStates).
			Or("state = ? AND reservation_expires_at <= ?", models.SubdomainReserved, now).
			Or("state = ? AND reserved_by = ?", models.SubdomainReserved, identity)).
		Updates(map[string]interface{}{
			"state":                  models.SubdomainAllocated,
			"tenant_id":              tenantID,
			"reserved_by":            "",
			"reservation_expires_at": nil,
		})
	if res.Error != nil {
		return false, errs.Transient("subdomain allocate", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Release implements Store.
func (s *GormStore) Release(ctx context.Context, name string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Subdomain{}).
		Where("name = ?", name).
		Where("state <> ?", models.SubdomainReleased).
		Updates(map[string]interface{}{
			"state":                  models.SubdomainReleased,
			"tenant_id":              nil,
			"reserved_by":            "",
			"reservation_expires_at": nil,
		})
	if res.Error != nil {
		return false, errs.Transient("subdomain release", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ReleaseReservationsFor implements Store.
func (s *GormStore) ReleaseReservationsFor(ctx context.Context, identity, exceptName string) error {
	res := s.db.WithContext(ctx).Model(&models.Subdomain{}).
		Where("state = ? AND reserved_by = ? AND name <> ?", models.SubdomainReserved, identity, exceptName).
		Updates(map[string]interface{}{
			"state":                  models.SubdomainReleased,
			"reserved_by":            "",
			"reservation_expires_at": nil,
		})
	if res.Error != nil {
		return errs.Transient("reservation release", res.Error)
	}
	return nil
}

// ReleaseExpired implements Store.
func (s *GormStore) ReleaseExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Subdomain{}).
		Where("state = ? AND reservation_expires_at <= ?", models.SubdomainReserved, now).
		Updates(map[string]interface{}{
			"state":                  models.SubdomainAvailable,
			"reserved_by":            "",
			"reservation_expires_at": nil,
		})
	if res.Error != nil {
		return 0, errs.Transient("reservation sweep", res.Error)
	}
	return res.RowsAffected, nil
}

// isUniqueViolation detects a unique-index violation across the postgres and
// sqlite drivers.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}
