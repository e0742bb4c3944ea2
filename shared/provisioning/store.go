package provisioning

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brickfolio/control-plane/shared/errs"
	"github.com/brickfolio/control-plane/shared/models"
)

// TenantStore is the persistence contract the engine drives tenants through.
// Transition is an atomic conditional write: the observed state is part of
// the condition, so a concurrent advancement can never double-apply a step's
// state change.
type TenantStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	// Transition moves the tenant from -> to and applies extra column
	// updates, only if the stored state still equals from.
	Transition(ctx context.Context, id uuid.UUID, from, to models.ProvisioningState, set map[string]interface{}) (bool, error)
	// InStates lists tenants currently in any of the given states.
	InStates(ctx context.Context, states []models.ProvisioningState) ([]models.Tenant, error)
}

// GormTenantStore implements TenantStore.
type GormTenantStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormTenantStore creates a GormTenantStore on db.
func NewGormTenantStore(db *gorm.DB) *GormTenantStore {
	return &GormTenantStore{db: db, now: time.Now}
}

// Get implements TenantStore.
func (s *GormTenantStore) Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("tenant %s", id)
	}
	if err != nil {
		return nil, errs.Transient("tenant lookup", err)
	}
	return &t, nil
}

// Transition implements TenantStore.
func (s *GormTenantStore) Transition(ctx context.Context, id uuid.UUID, from, to models.ProvisioningState, set map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"provisioning_state":   to,
		"last_state_change_at": s.now(),
	}
	for k, v := range set {
		updates[k] = v
	}

	res := s.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ? AND provisioning_state = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, errs.Transient("tenant transition", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// InStates implements TenantStore.
func (s *GormTenantStore) InStates(ctx context.Context, states []models.ProvisioningState) ([]models.Tenant, error) {
	var tenants []models.Tenant
	err := s.db.WithContext(ctx).
		Where("provisioning_state IN ?", states).
		Order("last_state_change_at ASC").
		Find(&tenants).Error
	if err != nil {
		return nil, errs.Transient("tenant list", err)
	}
	return tenants, nil
}
