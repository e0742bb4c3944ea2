package tenancy

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brickfolio/control-plane/shared/errs"
	"github.com/brickfolio/control-plane/shared/models"
)

// countingLookup wraps fakeLookup, counting trips to the source.
type countingLookup struct {
	fakeLookup
	calls int
}

func (c *countingLookup) BySubdomain(ctx context.Context, label string) (*models.Tenant, error) {
	c.calls++
	return c.fakeLookup.BySubdomain(ctx, label)
}

func (c *countingLookup) ByCustomDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	c.calls++
	return c.fakeLookup.ByCustomDomain(ctx, domain)
}

func newTestCachedLookup(next TenantLookup) (*CachedLookup, map[string]string) {
	entries := map[string]string{}
	c := &CachedLookup{
		next: next,
		ttl:  time.Minute,
		get: func(_ context.Context, key string) (string, error) {
			if v, ok := entries[key]; ok {
				return v, nil
			}
			return "", fmt.Errorf("key not found")
		},
		set: func(_ context.Context, key, value string, _ time.Duration) error {
			entries[key] = value
			return nil
		},
	}
	return c, entries
}

func TestCachedLookupServesSecondHitFromCache(t *testing.T) {
	acme := &models.Tenant{ID: uuid.New(), Subdomain: "acme"}
	source := &countingLookup{fakeLookup: fakeLookup{
		bySubdomain: map[string]*models.Tenant{"acme": acme},
	}}
	cached, _ := newTestCachedLookup(source)
	ctx := context.Background()

	first, err := cached.BySubdomain(ctx, "acme")
	require.NoError(t, err)
	second, err := cached.BySubdomain(ctx, "acme")
	require.NoError(t, err)

	assert.Equal(t, 1, source.calls, "second hit must come from the cache")
	assert.Equal(t, first.ID, second.ID)
}

func TestCachedLookupDoesNotCacheMisses(t *testing.T) {
	source := &countingLookup{}
	cached, entries := newTestCachedLookup(source)
	ctx := context.Background()

	_, err := cached.BySubdomain(ctx, "nobody")
	require.True(t, errs.IsNotFound(err))
	_, err = cached.BySubdomain(ctx, "nobody")
	require.True(t, errs.IsNotFound(err))

	assert.Equal(t, 2, source.calls, "a miss goes back to the source every time")
	assert.Empty(t, entries)
}

func TestCachedLookupRecoversFromCorruptEntry(t *testing.T) {
	acme := &models.Tenant{ID: uuid.New(), Subdomain: "acme"}
	source := &countingLookup{fakeLookup: fakeLookup{
		bySubdomain: map[string]*models.Tenant{"acme": acme},
	}}
	cached, entries := newTestCachedLookup(source)
	entries[subdomainCacheKey("acme")] = "{not json"

	got, err := cached.BySubdomain(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, acme.ID, got.ID)
	assert.Equal(t, 1, source.calls)

	// The bad entry got rewritten with the fresh result.
	_, err = cached.BySubdomain(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)
}

func TestCachedLookupByCustomDomain(t *testing.T) {
	domain := "homes.acme.com"
	acme := &models.Tenant{ID: uuid.New(), Subdomain: "acme", CustomDomain: &domain, CustomDomainVerified: true}
	source := &countingLookup{fakeLookup: fakeLookup{
		byDomain: map[string]*models.Tenant{domain: acme},
	}}
	cached, _ := newTestCachedLookup(source)
	ctx := context.Background()

	_, err := cached.ByCustomDomain(ctx, domain)
	require.NoError(t, err)
	got, err := cached.ByCustomDomain(ctx, domain)
	require.NoError(t, err)
	assert.Equal(t, acme.ID, got.ID)
	assert.Equal(t, 1, source.calls)
}
