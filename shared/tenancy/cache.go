package tenancy

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brickfolio/control-plane/shared/models"
	"github.com/brickfolio/control-plane/shared/utils"
)

// CachedLookup fronts a TenantLookup with the shared Redis cache. Only
// positive results are cached, so a freshly created tenant resolves on its
// first request. Entries age out on their TTL; administrative transitions
// drop them eagerly through DropCached.
type CachedLookup struct {
	next TenantLookup
	ttl  time.Duration

	// Redis accessors, swappable in tests.
	get func(ctx context.Context, key string) (string, error)
	set func(ctx context.Context, key, value string, expiration time.Duration) error
}

// NewCachedLookup wraps next with the shared Redis cache.
func NewCachedLookup(next TenantLookup, ttl time.Duration) *CachedLookup {
	return &CachedLookup{next: next, ttl: ttl, get: utils.CacheGet, set: utils.CacheSet}
}

// BySubdomain implements TenantLookup.
func (c *CachedLookup) BySubdomain(ctx context.Context, label string) (*models.Tenant, error) {
	return c.lookup(ctx, subdomainCacheKey(label), func() (*models.Tenant, error) {
		return c.next.BySubdomain(ctx, label)
	})
}

// ByCustomDomain implements TenantLookup.
func (c *CachedLookup) ByCustomDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	return c.lookup(ctx, domainCacheKey(domain), func() (*models.Tenant, error) {
		return c.next.ByCustomDomain(ctx, domain)
	})
}

func (c *CachedLookup) lookup(ctx context.Context, key string, source func() (*models.Tenant, error)) (*models.Tenant, error) {
	if raw, err := c.get(ctx, key); err == nil {
		var t models.Tenant
		if jsonErr := json.Unmarshal([]byte(raw), &t); jsonErr == nil {
			return &t, nil
		}
		// An unreadable entry falls through to the source and gets rewritten.
	}

	t, err := source()
	if err != nil {
		return nil, err
	}
	if raw, jsonErr := json.Marshal(t); jsonErr == nil {
		if setErr := c.set(ctx, key, string(raw), c.ttl); setErr != nil {
			logrus.WithError(setErr).WithField("key", key).Warn("Failed to cache tenant lookup")
		}
	}
	return t, nil
}

func subdomainCacheKey(label string) string { return "resolve:sub:" + label }
func domainCacheKey(domain string) string   { return "resolve:dom:" + domain }

// DropCached removes t's cached resolver entries so the gateway picks up an
// administrative transition or shard move before the TTL runs out. Cache
// trouble is logged, never surfaced; the entry would age out anyway.
func DropCached(ctx context.Context, t *models.Tenant) {
	keys := []string{subdomainCacheKey(t.Subdomain)}
	if t.CustomDomain != nil && *t.CustomDomain != "" {
		keys = append(keys, domainCacheKey(*t.CustomDomain))
	}
	for _, key := range keys {
		if err := utils.CacheDelete(ctx, key); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("Failed to drop cached tenant lookup")
		}
	}
}
