package subdomains

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/brickfolio/control-plane/shared/errs"
	"github.com/brickfolio/control-plane/shared/models"
)

// openTestDB opens an in-memory sqlite database. The schema is created by
// hand because the production models carry postgres-only column defaults.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`CREATE TABLE subdomains (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		state TEXT NOT NULL DEFAULT 'available',
		tenant_id TEXT,
		reserved_by TEXT DEFAULT '',
		reservation_expires_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`).Error)
	return db
}

func TestGormStoreClaimReserve(t *testing.T) {
	db := openTestDB(t)
	store := NewGormStore(db)
	ctx := context.Background()
	now := time.Now()
	expires := now.Add(15 * time.Minute)

	require.NoError(t, store.Create(ctx, &models.Subdomain{
		Name: "acme", State: models.SubdomainAvailable,
	}))

	changed, err := store.ClaimReserve(ctx, "acme", "owner@test", expires, now)
	require.NoError(t, err)
	assert.True(t, changed)

	// A second identity loses the conditional write.
	changed, err = store.ClaimReserve(ctx, "acme", "intruder@test", expires, now)
	require.NoError(t, err)
	assert.False(t, changed)

	// The holder refreshes its own reservation.
	changed, err = store.ClaimReserve(ctx, "acme", "owner@test", expires.Add(time.Hour), now)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestGormStoreClaimReserveExpired(t *testing.T) {
	db := openTestDB(t)
	store := NewGormStore(db)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Create(ctx, &models.Subdomain{
		Name: "acme", State: models.SubdomainAvailable,
	}))
	changed, err := store.ClaimReserve(ctx, "acme", "slow@test", now.Add(-time.Minute), now.Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, changed)

	// The TTL has passed; a different identity claims without a sweep.
	changed, err = store.ClaimReserve(ctx, "acme", "fast@test", now.Add(15*time.Minute), now)
	require.NoError(t, err)
	assert.True(t, changed)

	sub, err := store.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "fast@test", sub.ReservedBy)
}

func TestGormStoreClaimAllocate(t *testing.T) {
	db := openTestDB(t)
	store := NewGormStore(db)
	ctx := context.Background()
	now := time.Now()
	tenantID := uuid.New()

	require.NoError(t, store.Create(ctx, &models.Subdomain{
		Name: "acme", State: models.SubdomainAvailable,
	}))
	changed, err := store.ClaimReserve(ctx, "acme", "owner@test", now.Add(15*time.Minute), now)
	require.NoError(t, err)
	require.True(t, changed)

	// The reservation holder allocates; an allocated name is not claimable.
	changed, err = store.ClaimAllocate(ctx, "acme", "owner@test", tenantID, now)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.ClaimAllocate(ctx, "acme", "other@test", uuid.New(), now)
	require.NoError(t, err)
	assert.False(t, changed)

	sub, err := store.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, models.SubdomainAllocated, sub.State)
	require.NotNil(t, sub.TenantID)
	assert.Equal(t, tenantID, *sub.TenantID)
	assert.Empty(t, sub.ReservedBy)
	assert.Nil(t, sub.ReservationExpiresAt)
}

func TestGormStoreCreateDuplicateConflicts(t *testing.T) {
	db := openTestDB(t)
	store := NewGormStore(db)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &models.Subdomain{Name: "acme", State: models.SubdomainAvailable}))
	err := store.Create(ctx, &models.Subdomain{Name: "acme", State: models.SubdomainAvailable})
	require.Error(t, err)
	assert.True(t, errs.IsConflict(err))
}

func TestGormStoreReleaseAndSweep(t *testing.T) {
	db := openTestDB(t)
	store := NewGormStore(db)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Create(ctx, &models.Subdomain{Name: "held", State: models.SubdomainAvailable}))
	changed, err := store.ClaimAllocate(ctx, "held", "", uuid.New(), now)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = store.Release(ctx, "held")
	require.NoError(t, err)
	assert.True(t, changed)

	// Releasing a released name changes nothing.
	changed, err = store.Release(ctx, "held")
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, store.Create(ctx, &models.Subdomain{Name: "stale", State: models.SubdomainAvailable}))
	changed, err = store.ClaimReserve(ctx, "stale", "slow@test", now.Add(-time.Minute), now.Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, changed)

	swept, err := store.ReleaseExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), swept)

	sub, err := store.Get(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, models.SubdomainAvailable, sub.State)
}

func TestGormStoreGetMissing(t *testing.T) {
	db := openTestDB(t)
	store := NewGormStore(db)

	_, err := store.Get(context.Background(), "nothing")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

// Full lifecycle against real storage: reserve, lose a contending reserve,
// allocate, release, reclaim.
func TestAllocatorLifecycleOnSQL(t *testing.T) {
	db := openTestDB(t)
	a := NewAllocator(NewGormStore(db), 15*time.Minute)
	ctx := context.Background()
	tenantID := uuid.New()

	_, err := a.Reserve(ctx, "acme", "owner@test", 0)
	require.NoError(t, err)

	_, err = a.Reserve(ctx, "acme", "rival@test", 0)
	assert.True(t, errs.IsConflict(err))

	sub, err := a.Allocate(ctx, "acme", "owner@test", tenantID)
	require.NoError(t, err)
	assert.Equal(t, models.SubdomainAllocated, sub.State)

	require.NoError(t, a.Release(ctx, "acme"))

	reclaimed, err := a.Reserve(ctx, "acme", "rival@test", 0)
	require.NoError(t, err)
	assert.Equal(t, "rival@test", reclaimed.ReservedBy)
}
