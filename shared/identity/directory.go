package identity

import (
	"context"

	"github.com/google/uuid"
)

// Directory creates owner accounts in the platform's user directory. The
// create_owner provisioning step is the only caller.
type Directory interface {
	// CreateOwner creates (or finds) the owner account for email, tagged
	// with the tenant id, and returns the directory user id.
	CreateOwner(ctx context.Context, email string, tenantID uuid.UUID) (string, error)
}
