package models

import (
	"time"

	"github.com/google/uuid"
)

// SubdomainState is the lifecycle state of a subdomain name. Names cycle
// available -> reserved -> allocated -> released -> available.
type SubdomainState string

const (
	SubdomainAvailable SubdomainState = "available"
	SubdomainReserved  SubdomainState = "reserved"
	SubdomainAllocated SubdomainState = "allocated"
	SubdomainReleased  SubdomainState = "released"
)

// Subdomain is one human-readable label under the platform base domain.
// Name is globally unique. A reserved entry records the reserving identity
// and an expiry; an allocated entry is bound to exactly one tenant.
type Subdomain struct {
	ID    uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name  string         `json:"name" gorm:"uniqueIndex;not null"`
	State SubdomainState `json:"state" gorm:"type:varchar(16);not null;default:'available';index"`

	TenantID             *uuid.UUID `json:"tenant_id,omitempty" gorm:"type:uuid;index"`
	ReservedBy           string     `json:"reserved_by,omitempty" gorm:"index"`
	ReservationExpiresAt *time.Time `json:"reservation_expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for the Subdomain model
func (Subdomain) TableName() string {
	return "subdomains"
}

// ReservationExpired reports whether a reserved entry's TTL has passed.
// An expired-but-unswept reservation is treated as available by allocation.
func (s *Subdomain) ReservationExpired(now time.Time) bool {
	return s.State == SubdomainReserved &&
		s.ReservationExpiresAt != nil &&
		!now.Before(*s.ReservationExpiresAt)
}
