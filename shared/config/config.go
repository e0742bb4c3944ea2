package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// FallbackPolicy controls what the resolver does when every resolution level
// is exhausted.
type FallbackPolicy string

const (
	// FallbackStrict fails closed with NotFound. Production default.
	FallbackStrict FallbackPolicy = "strict"
	// FallbackDefaultTenant serves one designated tenant. Explicit opt-in
	// for non-production deployments; requires DefaultTenantSlug.
	FallbackDefaultTenant FallbackPolicy = "default-tenant"
)

// Config holds the control-plane configuration, read from the environment.
type Config struct {
	// BaseDomain is the platform domain subdomains hang off,
	// e.g. "sites.brickfolio.com".
	BaseDomain string

	Fallback          FallbackPolicy
	DefaultTenantSlug string

	// ReservationTTL is the default subdomain reservation lifetime.
	ReservationTTL time.Duration
	SweepInterval  time.Duration

	// Shards lists the physical data shards new tenants are spread over.
	Shards []string

	KafkaBroker    string
	RelocationURL  string
	AWSRegion      string
	UserPoolID     string
	InternalSecret string
}

// Load reads the configuration from environment variables, applying
// development defaults where a value is optional.
func Load() (*Config, error) {
	cfg := &Config{
		BaseDomain:        getEnv("BASE_DOMAIN", "sites.brickfolio.dev"),
		Fallback:          FallbackPolicy(getEnv("RESOLVER_FALLBACK", string(FallbackStrict))),
		DefaultTenantSlug: os.Getenv("RESOLVER_DEFAULT_TENANT"),
		KafkaBroker:       getEnv("KAFKA_BROKER", "localhost:9092"),
		RelocationURL:     getEnv("RELOCATION_ENDPOINT", "http://localhost:8090"),
		AWSRegion:         os.Getenv("AWS_REGION"),
		UserPoolID:        os.Getenv("COGNITO_USER_POOL_ID"),
		InternalSecret:    os.Getenv("INTERNAL_TOKEN_SECRET"),
	}

	var err error
	if cfg.ReservationTTL, err = getDuration("RESERVATION_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}

	shards := getEnv("DATA_SHARDS", "shard-a,shard-b")
	for _, s := range strings.Split(shards, ",") {
		if s = strings.TrimSpace(s); s != "" {
			cfg.Shards = append(cfg.Shards, s)
		}
	}
	if len(cfg.Shards) == 0 {
		return nil, fmt.Errorf("config: DATA_SHARDS must name at least one shard")
	}

	switch cfg.Fallback {
	case FallbackStrict:
	case FallbackDefaultTenant:
		if cfg.DefaultTenantSlug == "" {
			return nil, fmt.Errorf("config: RESOLVER_FALLBACK=default-tenant requires RESOLVER_DEFAULT_TENANT")
		}
	default:
		return nil, fmt.Errorf("config: unknown RESOLVER_FALLBACK %q", cfg.Fallback)
	}

	return cfg, nil
}

// getDuration parses a duration environment variable with a default value
func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
