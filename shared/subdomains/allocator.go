package subdomains

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/brickfolio/control-plane/shared/errs"
	"github.com/brickfolio/control-plane/shared/models"
)

// labelPattern is a DNS label: lowercase alphanumerics and hyphens, no
// leading/trailing hyphen.
var labelPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{1,61}[a-z0-9])$`)

// reservedNames are labels the platform keeps for itself.
var reservedNames = map[string]bool{
	"www": true, "api": true, "admin": true, "app": true,
	"mail": true, "status": true, "assets": true, "cdn": true,
}

// Allocator manages the lifecycle of subdomain names: available -> reserved
// -> allocated -> released -> available. All state changes go through the
// Store's atomic conditional writes, so the allocator itself carries no
// locks and is safe under arbitrary concurrent contention.
type Allocator struct {
	store      Store
	defaultTTL time.Duration
	now        func() time.Time
}

// NewAllocator creates an Allocator with the given default reservation TTL.
func NewAllocator(store Store, defaultTTL time.Duration) *Allocator {
	return &Allocator{store: store, defaultTTL: defaultTTL, now: time.Now}
}

// Reserve places a time-bound claim on name for identity. It fails with
// EConflict when the name is held by someone else. An identity holds at most
// one outstanding reservation: reserving a second name releases the first.
func (a *Allocator) Reserve(ctx context.Context, name, identity string, ttl time.Duration) (*models.Subdomain, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if identity == "" {
		return nil, errs.Invalid("reserving identity is required")
	}
	if ttl <= 0 {
		ttl = a.defaultTTL
	}

	now := a.now()
	expires := now.Add(ttl)

	changed, err := a.store.ClaimReserve(ctx, name, identity, expires, now)
	if err != nil {
		return nil, err
	}
	if !changed {
		_, err := a.store.Get(ctx, name)
		if errs.IsNotFound(err) {
			// First claim on a brand-new name. A lost insert race falls
			// through to one more conditional claim attempt.
			sub := &models.Subdomain{
				Name:                 name,
				State:                models.SubdomainReserved,
				ReservedBy:           identity,
				ReservationExpiresAt: &expires,
			}
			if createErr := a.store.Create(ctx, sub); createErr == nil {
				return a.reserved(ctx, sub, identity)
			} else if !errs.IsConflict(createErr) {
				return nil, createErr
			}
			if changed, err = a.store.ClaimReserve(ctx, name, identity, expires, now); err != nil {
				return nil, err
			}
			if !changed {
				return nil, errs.Conflict("subdomain %q is not available", name)
			}
		} else if err != nil {
			return nil, err
		} else {
			return nil, errs.Conflict("subdomain %q is not available", name)
		}
	}

	sub, err := a.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return a.reserved(ctx, sub, identity)
}

// reserved finishes a successful claim. The replace-never-stack rule runs
// only here, once the new reservation is in place, so a claim that lost
// with a conflict leaves the identity's prior reservation untouched.
func (a *Allocator) reserved(ctx context.Context, sub *models.Subdomain, identity string) (*models.Subdomain, error) {
	if err := a.store.ReleaseReservationsFor(ctx, identity, sub.Name); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"subdomain": sub.Name, "identity": identity}).
		Info("Subdomain reserved")
	return sub, nil
}

// Allocate finally binds name to tenantID. Permitted from available, or from
// reserved only by the owning identity; a reservation past its TTL counts as
// available even before the sweeper has run. The underlying conditional
// write guarantees exactly one winner; everyone else gets EConflict.
func (a *Allocator) Allocate(ctx context.Context, name, identity string, tenantID uuid.UUID) (*models.Subdomain, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if tenantID == uuid.Nil {
		return nil, errs.Invalid("tenant id is required")
	}

	changed, err := a.store.ClaimAllocate(ctx, name, identity, tenantID, a.now())
	if err != nil {
		return nil, err
	}
	if !changed {
		if _, getErr := a.store.Get(ctx, name); errs.IsNotFound(getErr) {
			// Unknown name: allocating directly from available.
			sub := &models.Subdomain{
				Name:     name,
				State:    models.SubdomainAllocated,
				TenantID: &tenantID,
			}
			if createErr := a.store.Create(ctx, sub); createErr == nil {
				return sub, nil
			} else if !errs.IsConflict(createErr) {
				return nil, createErr
			}
		}
		return nil, errs.Conflict("subdomain %q is not available for allocation", name)
	}

	logrus.WithFields(logrus.Fields{"subdomain": name, "tenant_id": tenantID}).
		Info("Subdomain allocated")
	return a.store.Get(ctx, name)
}

// Release returns name to the pool and clears its bindings. Used on tenant
// termination and by the expiry sweeper.
func (a *Allocator) Release(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	changed, err := a.store.Release(ctx, name)
	if err != nil {
		return err
	}
	if !changed {
		if _, getErr := a.store.Get(ctx, name); getErr != nil {
			return getErr
		}
		return nil // already released
	}
	logrus.WithField("subdomain", name).Info("Subdomain released")
	return nil
}

// ExpireSweep releases every reservation past its expiry and returns how
// many were swept. The provisioner runs this on an interval.
func (a *Allocator) ExpireSweep(ctx context.Context) (int64, error) {
	swept, err := a.store.ReleaseExpired(ctx, a.now())
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		logrus.WithField("count", swept).Info("Expired subdomain reservations released")
	}
	return swept, nil
}

// Status returns the current state of a name.
func (a *Allocator) Status(ctx context.Context, name string) (*models.Subdomain, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return a.store.Get(ctx, name)
}

// ValidateName rejects anything that is not a usable DNS label or collides
// with a platform-reserved name.
func ValidateName(name string) error {
	if name == "" {
		return errs.Invalid("subdomain name is required")
	}
	if len(name) < 3 || len(name) > 63 {
		return errs.Invalid("subdomain %q must be 3-63 characters", name)
	}
	if !labelPattern.MatchString(name) {
		return errs.Invalid("subdomain %q is not a valid DNS label", name)
	}
	if reservedNames[name] {
		return errs.Invalid("subdomain %q is reserved by the platform", name)
	}
	return nil
}
