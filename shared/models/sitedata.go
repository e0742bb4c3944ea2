package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant-scoped site data. Every row carries a tenant_id and is only ever
// read or written through a tenancy-scoped query; a row belonging to a
// different tenant is indistinguishable from a missing row.

// Agency is the tenant's agency profile, created by the create_agency step.
type Agency struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;uniqueIndex"`
	Name     string    `json:"name" gorm:"not null"`
	Email    string    `json:"email"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Agency) TableName() string {
	return "agencies"
}

// SiteLink is one navigation link on the tenant's site. The
// create_default_links step seeds the standard set.
type SiteLink struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Label    string    `json:"label" gorm:"not null"`
	Path     string    `json:"path" gorm:"not null"`
	Position int       `json:"position"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SiteLink) TableName() string {
	return "site_links"
}

// FieldKey defines one custom listing attribute for the tenant
// (e.g. bedrooms, floor area). Seeded by the create_field_keys step.
type FieldKey struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;index:idx_field_keys_tenant_key,unique"`
	Key      string    `json:"key" gorm:"not null;index:idx_field_keys_tenant_key,unique"`
	Label    string    `json:"label" gorm:"not null"`
	Type     string    `json:"type" gorm:"not null;default:'text'"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (FieldKey) TableName() string {
	return "field_keys"
}

// Property is one listing on the tenant's site. The seed_properties step
// inserts sample listings so a new site is never empty.
type Property struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Title    string    `json:"title" gorm:"not null"`
	Address  string    `json:"address"`
	Price    int64     `json:"price"`
	Seeded   bool      `json:"seeded" gorm:"default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Property) TableName() string {
	return "properties"
}
