package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a tenant user record. The directory of record is Cognito;
// this row keeps the tenant relationship for scoped queries.
type User struct {
	CognitoID   string     `json:"cognito_id" gorm:"type:varchar(255);primaryKey"`
	TenantID    uuid.UUID  `json:"tenant_id" gorm:"type:uuid;index"`
	Email       string     `json:"email" gorm:"index"`
	Role        UserRole   `json:"role" gorm:"type:varchar(32);default:'user'"`
	CreatedAt   time.Time  `json:"created_at" gorm:"default:CURRENT_TIMESTAMP"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

type UserRole string

const (
	RoleTenantOwner UserRole = "tenant_owner"
	RoleUser        UserRole = "user"
)

func (User) TableName() string {
	return "users"
}

func (u *User) GetID() string {
	return u.CognitoID
}
