package sharding

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/brickfolio/control-plane/shared/audit"
	"github.com/brickfolio/control-plane/shared/errs"
	"github.com/brickfolio/control-plane/shared/events"
	"github.com/brickfolio/control-plane/shared/models"
	"github.com/brickfolio/control-plane/shared/utils"
)

// Store is the router's view of tenant shard assignments. UpdateShard is an
// atomic conditional write keyed on the observed shard.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	UpdateShard(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
}

// GormStore implements Store.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a GormStore on db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Get implements Store.
func (s *GormStore) Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("tenant %s", id)
	}
	if err != nil {
		return nil, errs.Transient("tenant lookup", err)
	}
	return &t, nil
}

// UpdateShard implements Store.
func (s *GormStore) UpdateShard(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ? AND shard = ?", id, from).
		Update("shard", to)
	if res.Error != nil {
		return false, errs.Transient("shard update", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Router maps tenants to physical data shards. Assignments change only
// through Migrate, which holds an exclusive per-tenant lock, confirms the
// bulk relocation, and appends an immutable audit entry either way.
type Router struct {
	store    Store
	auditLog audit.Store
	mover    Mover
	locker   utils.Locker
	events   events.Publisher
	shards   []string
	lockTTL  time.Duration
}

// NewRouter creates a Router over the configured shard list.
func NewRouter(store Store, auditLog audit.Store, mover Mover, locker utils.Locker, pub events.Publisher, shards []string) *Router {
	return &Router{
		store:    store,
		auditLog: auditLog,
		mover:    mover,
		locker:   locker,
		events:   pub,
		shards:   shards,
		lockTTL:  15 * time.Minute,
	}
}

// CurrentShard returns the tenant's shard. Pure read.
func (r *Router) CurrentShard(t *models.Tenant) string {
	return t.Shard
}

// AssignInitial picks the shard for a new tenant by hashing its id over the
// shard list. Deterministic, so a replayed signup lands on the same shard.
func (r *Router) AssignInitial(tenantID uuid.UUID) string {
	h := fnv.New32a()
	h.Write(tenantID[:])
	return r.shards[int(h.Sum32())%len(r.shards)]
}

// MigrationInFlight reports whether the tenant is currently being migrated.
// Data paths consult this and surface a transient-retry signal instead of
// serving against a half-migrated state.
func (r *Router) MigrationInFlight(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	return r.locker.Held(ctx, "migrate:"+tenantID.String())
}

// Migrate relocates the tenant's data to destShard. Only a confirmed
// successful relocation flips the assignment; a failed one leaves the shard
// untouched but still appends a failed audit entry for observability.
// A migration already in flight for the tenant is EConflict.
func (r *Router) Migrate(ctx context.Context, tenantID uuid.UUID, destShard, actor, note string) (*models.AuditEntry, error) {
	if actor == "" {
		return nil, errs.Invalid("actor is required for migration")
	}
	if !r.validShard(destShard) {
		return nil, errs.Invalid("unknown shard %q", destShard)
	}

	release, ok, err := r.locker.Acquire(ctx, "migrate:"+tenantID.String(), r.lockTTL)
	if err != nil {
		return nil, errs.Transient("migration lock", err)
	}
	if !ok {
		return nil, errs.Conflict("migration already in flight for tenant %s", tenantID)
	}
	defer release()

	t, err := r.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t.Shard == destShard {
		return nil, errs.Invalid("tenant %s is already on shard %s", tenantID, destShard)
	}

	entry := &models.AuditEntry{
		TenantID: tenantID,
		Kind:     models.AuditShardMigration,
		OldValue: t.Shard,
		NewValue: destShard,
		Actor:    actor,
		Note:     note,
	}

	if moveErr := r.mover.Relocate(ctx, tenantID, t.Shard, destShard); moveErr != nil {
		entry.Status = models.AuditFailed
		r.append(ctx, entry)
		r.publish(ctx, events.TypeMigrationError, tenantID, t.Shard, destShard, actor, moveErr.Error())
		return entry, errs.Transient("bulk relocation failed", moveErr)
	}

	changed, err := r.store.UpdateShard(ctx, tenantID, t.Shard, destShard)
	if err != nil {
		return nil, err
	}
	if !changed {
		entry.Status = models.AuditFailed
		r.append(ctx, entry)
		return entry, errs.Conflict("tenant %s shard changed concurrently", tenantID)
	}

	entry.Status = models.AuditCompleted
	r.append(ctx, entry)
	r.publish(ctx, events.TypeShardMigrated, tenantID, t.Shard, destShard, actor, "")

	logrus.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"from":      t.Shard,
		"to":        destShard,
		"actor":     actor,
	}).Info("Tenant shard migrated")

	return entry, nil
}

// AuditLog returns the tenant's migration trail, oldest first.
func (r *Router) AuditLog(ctx context.Context, tenantID uuid.UUID) ([]models.AuditEntry, error) {
	return r.auditLog.ForTenant(ctx, tenantID, models.AuditShardMigration)
}

func (r *Router) validShard(shard string) bool {
	for _, s := range r.shards {
		if s == shard {
			return true
		}
	}
	return false
}

func (r *Router) append(ctx context.Context, entry *models.AuditEntry) {
	if err := r.auditLog.Append(ctx, entry); err != nil {
		logrus.WithError(err).Error("Failed to append shard migration audit entry")
	}
}

func (r *Router) publish(ctx context.Context, eventType string, tenantID uuid.UUID, from, to, actor, errMsg string) {
	ev := events.New(eventType, tenantID)
	ev.FromState, ev.ToState = from, to
	ev.Actor, ev.Error = actor, errMsg
	if err := r.events.Publish(ctx, ev); err != nil {
		logrus.WithError(err).Warn("Failed to publish migration event")
	}
}
