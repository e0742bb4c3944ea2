// Package sitedata holds the tenant-scoped repositories for a tenant's site
// content. Every query is built on tenancy.Scoped, so an unbound context or
// another tenant's record always reads as not found.
package sitedata

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brickfolio/control-plane/shared/errs"
	"github.com/brickfolio/control-plane/shared/models"
	"github.com/brickfolio/control-plane/shared/tenancy"
)

// Repo provides access to the current tenant's site data.
type Repo struct {
	db *gorm.DB
}

// NewRepo creates a Repo on db.
func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Agency returns the current tenant's agency profile.
func (r *Repo) Agency(ctx context.Context) (*models.Agency, error) {
	var a models.Agency
	if err := tenancy.FirstScoped(ctx, r.db, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAgency creates the agency profile for the current tenant.
func (r *Repo) CreateAgency(ctx context.Context, name, email string) (*models.Agency, error) {
	t, err := tenancy.MustTenant(ctx)
	if err != nil {
		return nil, err
	}
	a := &models.Agency{ID: uuid.New(), TenantID: t.ID, Name: name, Email: email}
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, errs.Transient("agency create", err)
	}
	return a, nil
}

// Links returns the current tenant's navigation links in display order.
func (r *Repo) Links(ctx context.Context) ([]models.SiteLink, error) {
	scoped, err := tenancy.Scoped(ctx, r.db)
	if err != nil {
		return nil, err
	}
	var links []models.SiteLink
	if err := scoped.Order("position ASC").Find(&links).Error; err != nil {
		return nil, errs.Transient("link query", err)
	}
	return links, nil
}

// CreateLinks inserts navigation links for the current tenant.
func (r *Repo) CreateLinks(ctx context.Context, links []models.SiteLink) error {
	t, err := tenancy.MustTenant(ctx)
	if err != nil {
		return err
	}
	for i := range links {
		links[i].ID = uuid.New()
		links[i].TenantID = t.ID
	}
	if err := r.db.WithContext(ctx).Create(&links).Error; err != nil {
		return errs.Transient("link create", err)
	}
	return nil
}

// FieldKeys returns the current tenant's listing field definitions.
func (r *Repo) FieldKeys(ctx context.Context) ([]models.FieldKey, error) {
	scoped, err := tenancy.Scoped(ctx, r.db)
	if err != nil {
		return nil, err
	}
	var keys []models.FieldKey
	if err := scoped.Order("key ASC").Find(&keys).Error; err != nil {
		return nil, errs.Transient("field key query", err)
	}
	return keys, nil
}

// CreateFieldKeys inserts field definitions for the current tenant.
func (r *Repo) CreateFieldKeys(ctx context.Context, keys []models.FieldKey) error {
	t, err := tenancy.MustTenant(ctx)
	if err != nil {
		return err
	}
	for i := range keys {
		keys[i].ID = uuid.New()
		keys[i].TenantID = t.ID
	}
	if err := r.db.WithContext(ctx).Create(&keys).Error; err != nil {
		return errs.Transient("field key create", err)
	}
	return nil
}

// Properties returns the current tenant's listings.
func (r *Repo) Properties(ctx context.Context) ([]models.Property, error) {
	scoped, err := tenancy.Scoped(ctx, r.db)
	if err != nil {
		return nil, err
	}
	var props []models.Property
	if err := scoped.Order("created_at ASC").Find(&props).Error; err != nil {
		return nil, errs.Transient("property query", err)
	}
	return props, nil
}

// PropertyByID returns one listing by primary key, still filtered by the
// current tenant: another tenant's listing is ENotFound, never forbidden.
func (r *Repo) PropertyByID(ctx context.Context, id uuid.UUID) (*models.Property, error) {
	var p models.Property
	if err := tenancy.FirstScoped(ctx, r.db, &p, "id = ?", id); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProperties inserts listings for the current tenant.
func (r *Repo) CreateProperties(ctx context.Context, props []models.Property) error {
	t, err := tenancy.MustTenant(ctx)
	if err != nil {
		return err
	}
	for i := range props {
		props[i].ID = uuid.New()
		props[i].TenantID = t.ID
	}
	if err := r.db.WithContext(ctx).Create(&props).Error; err != nil {
		return errs.Transient("property create", err)
	}
	return nil
}

// SeededPropertyCount counts the sample listings the pipeline inserted.
func (r *Repo) SeededPropertyCount(ctx context.Context) (int64, error) {
	scoped, err := tenancy.Scoped(ctx, r.db)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := scoped.Model(&models.Property{}).Where("seeded = ?", true).Count(&count).Error; err != nil {
		return 0, errs.Transient("property count", err)
	}
	return count, nil
}

// OwnerUser returns the current tenant's owner account row, if present.
func (r *Repo) OwnerUser(ctx context.Context) (*models.User, error) {
	var u models.User
	if err := tenancy.FirstScoped(ctx, r.db, &u, "role = ?", models.RoleTenantOwner); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateOwnerUser records the owner account created in the directory.
func (r *Repo) CreateOwnerUser(ctx context.Context, cognitoID, email string) (*models.User, error) {
	t, err := tenancy.MustTenant(ctx)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		CognitoID: cognitoID,
		TenantID:  t.ID,
		Email:     email,
		Role:      models.RoleTenantOwner,
	}
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, errs.Transient("owner user create", err)
	}
	return u, nil
}
