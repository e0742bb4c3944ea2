package tenancy

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/brickfolio/control-plane/shared/errs"
	"github.com/brickfolio/control-plane/shared/models"
)

// GormTenantLookup implements TenantLookup against the tenants table.
type GormTenantLookup struct {
	db *gorm.DB
}

// NewGormTenantLookup creates a lookup backed by db.
func NewGormTenantLookup(db *gorm.DB) *GormTenantLookup {
	return &GormTenantLookup{db: db}
}

// BySubdomain implements TenantLookup.
func (l *GormTenantLookup) BySubdomain(ctx context.Context, label string) (*models.Tenant, error) {
	var t models.Tenant
	err := l.db.WithContext(ctx).Where("subdomain = ?", label).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("tenant %q", label)
	}
	if err != nil {
		return nil, errs.Transient("tenant lookup", err)
	}
	return &t, nil
}

// ByCustomDomain implements TenantLookup. Only verified custom domains
// resolve; an unverified domain is not an address.
func (l *GormTenantLookup) ByCustomDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	var t models.Tenant
	err := l.db.WithContext(ctx).
		Where("custom_domain = ? AND custom_domain_verified = ?", domain, true).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("tenant for domain %q", domain)
	}
	if err != nil {
		return nil, errs.Transient("tenant lookup", err)
	}
	return &t, nil
}
