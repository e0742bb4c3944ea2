package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tenant represents one customer's isolated instance of the hosted platform.
// A tenant is addressed by exactly one bound subdomain at any time; a custom
// domain is optional and independently verified.
type Tenant struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name      string    `json:"name" gorm:"not null"`
	Subdomain string    `json:"subdomain" gorm:"uniqueIndex;not null"`

	// OwnerEmail is the signup identity; the create_owner step turns it
	// into the tenant's owner account.
	OwnerEmail string `json:"owner_email" gorm:"not null"`

	CustomDomain         *string `json:"custom_domain,omitempty" gorm:"uniqueIndex"`
	CustomDomainVerified bool    `json:"custom_domain_verified" gorm:"default:false"`

	// Shard is mutated only through the audited migration procedure.
	Shard string `json:"shard" gorm:"not null"`

	ProvisioningState       ProvisioningState `json:"provisioning_state" gorm:"type:varchar(32);not null;default:'pending';index"`
	FailedStep              string            `json:"failed_step,omitempty"`
	ProvisioningError       string            `json:"provisioning_error,omitempty"`
	ProvisioningStartedAt   *time.Time        `json:"provisioning_started_at,omitempty"`
	ProvisioningCompletedAt *time.Time        `json:"provisioning_completed_at,omitempty"`
	FailedAt                *time.Time        `json:"failed_at,omitempty"`

	// LastStateChangeAt makes time-in-state observable so stuck tenants
	// can be found by the provisioner's stats endpoint.
	LastStateChangeAt time.Time `json:"last_state_change_at"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`
}

// TableName returns the table name for the Tenant model
func (Tenant) TableName() string {
	return "tenants"
}

// TimeInState returns how long the tenant has been in its current
// provisioning state.
func (t *Tenant) TimeInState(now time.Time) time.Duration {
	return now.Sub(t.LastStateChangeAt)
}

// Live reports whether the tenant is serving traffic.
func (t *Tenant) Live() bool {
	return t.ProvisioningState == StateLive
}
