package tenancy

import (
	"context"
	"net"
	"strings"

	"github.com/brickfolio/control-plane/shared/config"
	"github.com/brickfolio/control-plane/shared/errs"
	"github.com/brickfolio/control-plane/shared/models"
)

// TenantLookup is the single indexed lookup the resolver performs per level.
type TenantLookup interface {
	// BySubdomain returns the tenant bound to a subdomain label.
	BySubdomain(ctx context.Context, label string) (*models.Tenant, error)
	// ByCustomDomain returns the tenant owning a verified custom domain.
	ByCustomDomain(ctx context.Context, domain string) (*models.Tenant, error)
}

// RequestInfo is the addressing information carried by an inbound request.
type RequestInfo struct {
	// Host is the HTTP Host header, possibly with a port.
	Host string
	// TenantSlug is the trusted internal tenant-slug header. The middleware
	// only populates it for authenticated internal callers.
	TenantSlug string
}

// Resolver maps request addressing info to exactly one tenant. It is a pure
// lookup: no side effects, one indexed query per precedence level.
type Resolver struct {
	lookup     TenantLookup
	baseDomain string
	fallback   config.FallbackPolicy
	defaultSlug string
}

// NewResolver creates a Resolver for the configured base domain and
// fallback policy.
func NewResolver(lookup TenantLookup, cfg *config.Config) *Resolver {
	return &Resolver{
		lookup:      lookup,
		baseDomain:  strings.ToLower(cfg.BaseDomain),
		fallback:    cfg.Fallback,
		defaultSlug: cfg.DefaultTenantSlug,
	}
}

// Resolve applies the precedence order: internal tenant-slug header, then
// verified custom domain, then subdomain label under the base domain. A
// non-match at one level falls through to the next; a header naming a
// nonexistent tenant falls through rather than erroring. Exhausting every
// level applies the fallback policy: strict fails closed with ENotFound,
// default-tenant serves the designated tenant.
func (r *Resolver) Resolve(ctx context.Context, req RequestInfo) (*models.Tenant, error) {
	if slug := strings.ToLower(strings.TrimSpace(req.TenantSlug)); slug != "" {
		if t, err := r.lookup.BySubdomain(ctx, slug); err == nil {
			return t, nil
		} else if !errs.IsNotFound(err) {
			return nil, err
		}
	}

	host := normalizeHost(req.Host)
	if host != "" {
		if t, err := r.lookup.ByCustomDomain(ctx, host); err == nil {
			return t, nil
		} else if !errs.IsNotFound(err) {
			return nil, err
		}

		if label, ok := r.subdomainLabel(host); ok {
			if t, err := r.lookup.BySubdomain(ctx, label); err == nil {
				return t, nil
			} else if !errs.IsNotFound(err) {
				return nil, err
			}
		}
	}

	if r.fallback == config.FallbackDefaultTenant && r.defaultSlug != "" {
		if t, err := r.lookup.BySubdomain(ctx, r.defaultSlug); err == nil {
			return t, nil
		} else if !errs.IsNotFound(err) {
			return nil, err
		}
	}

	return nil, errs.NotFound("no tenant for host %q", host)
}

// subdomainLabel extracts the single label in front of the base domain.
// "acme.sites.example.com" under base "sites.example.com" yields "acme";
// nested labels and the bare base domain do not.
func (r *Resolver) subdomainLabel(host string) (string, bool) {
	suffix := "." + r.baseDomain
	if !strings.HasSuffix(host, suffix) {
		return "", false
	}
	label := strings.TrimSuffix(host, suffix)
	if label == "" || strings.Contains(label, ".") {
		return "", false
	}
	return label, true
}

// normalizeHost lowercases the host and strips any port.
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}
