package tenancy

import (
	"context"

	"github.com/brickfolio/control-plane/shared/errs"
	"github.com/brickfolio/control-plane/shared/models"
)

// The current tenant rides on the request context, never on a package-level
// variable: worker reuse can never leak one request's tenant into the next,
// and teardown is the context's own lifetime.

type contextKey struct{}

var tenantKey contextKey

// WithTenant binds the resolved tenant to ctx. The binding is
// single-assignment: binding a second tenant to the same context chain is an
// invariant violation and returns EInternal.
func WithTenant(ctx context.Context, t *models.Tenant) (context.Context, error) {
	if existing, ok := CurrentTenant(ctx); ok {
		if existing.ID == t.ID {
			return ctx, nil
		}
		return ctx, errs.Internal("tenant context already bound", nil)
	}
	return context.WithValue(ctx, tenantKey, t), nil
}

// CurrentTenant returns the tenant bound to ctx, if any.
func CurrentTenant(ctx context.Context) (*models.Tenant, bool) {
	t, ok := ctx.Value(tenantKey).(*models.Tenant)
	return t, ok
}

// MustTenant returns the bound tenant or an ENotFound error. Data accessors
// call this before building any query; an unbound context resolves nothing.
func MustTenant(ctx context.Context) (*models.Tenant, error) {
	t, ok := CurrentTenant(ctx)
	if !ok {
		return nil, errs.NotFound("no tenant in request context")
	}
	return t, nil
}
