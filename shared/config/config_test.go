package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sites.brickfolio.dev", cfg.BaseDomain)
	assert.Equal(t, FallbackStrict, cfg.Fallback, "the resolver fails closed unless told otherwise")
	assert.Equal(t, 15*time.Minute, cfg.ReservationTTL)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, []string{"shard-a", "shard-b"}, cfg.Shards)
}

func TestLoadShardListParsing(t *testing.T) {
	t.Setenv("DATA_SHARDS", " shard-x , shard-y ,, shard-z ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"shard-x", "shard-y", "shard-z"}, cfg.Shards)
}

func TestLoadRejectsEmptyShardList(t *testing.T) {
	t.Setenv("DATA_SHARDS", " , ")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATA_SHARDS")
}

func TestLoadDefaultTenantFallbackNeedsSlug(t *testing.T) {
	t.Setenv("RESOLVER_FALLBACK", "default-tenant")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("RESOLVER_DEFAULT_TENANT", "demo")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, FallbackDefaultTenant, cfg.Fallback)
	assert.Equal(t, "demo", cfg.DefaultTenantSlug)
}

func TestLoadRejectsUnknownFallback(t *testing.T) {
	t.Setenv("RESOLVER_FALLBACK", "open")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RESOLVER_FALLBACK")
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("RESERVATION_TTL", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RESERVATION_TTL")
}
