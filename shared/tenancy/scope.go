package tenancy

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/brickfolio/control-plane/shared/errs"
)

// Scoped returns db filtered to the current tenant's rows. Every
// tenant-scoped repository builds its queries on top of this, including
// primary-key lookups, so one tenant's request can never read or write
// another tenant's data.
func Scoped(ctx context.Context, db *gorm.DB) (*gorm.DB, error) {
	t, err := MustTenant(ctx)
	if err != nil {
		return nil, err
	}
	return db.WithContext(ctx).Where("tenant_id = ?", t.ID), nil
}

// FirstScoped loads a single record into dest with the given conditions,
// scoped to the current tenant. A record that exists but belongs to another
// tenant is reported as ENotFound, identical to a record that does not exist.
func FirstScoped(ctx context.Context, db *gorm.DB, dest interface{}, conds ...interface{}) error {
	scoped, err := Scoped(ctx, db)
	if err != nil {
		return err
	}
	err = scoped.First(dest, conds...).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.NotFound("record not found")
	}
	if err != nil {
		return errs.Transient("query", err)
	}
	return nil
}
