package sharding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brickfolio/control-plane/shared/errs"
	"github.com/brickfolio/control-plane/shared/events"
	"github.com/brickfolio/control-plane/shared/models"
)

var testShards = []string{"shard-a", "shard-b", "shard-c"}

// fakeStore keeps tenants in memory with conditional shard updates.
// afterGet, when set, runs once after a Get to interpose between the
// router's read and its conditional write.
type fakeStore struct {
	mu       sync.Mutex
	tenants  map[uuid.UUID]*models.Tenant
	afterGet func()
}

func newFakeStore(ts ...*models.Tenant) *fakeStore {
	s := &fakeStore{tenants: map[uuid.UUID]*models.Tenant{}}
	for _, t := range ts {
		s.tenants[t.ID] = t
	}
	return s
}

func (s *fakeStore) Get(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	s.mu.Lock()
	t, ok := s.tenants[id]
	if !ok {
		s.mu.Unlock()
		return nil, errs.NotFound("tenant %s", id)
	}
	cp := *t
	s.mu.Unlock()
	if s.afterGet != nil {
		hook := s.afterGet
		s.afterGet = nil
		hook()
	}
	return &cp, nil
}

func (s *fakeStore) UpdateShard(_ context.Context, id uuid.UUID, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok || t.Shard != from {
		return false, nil
	}
	t.Shard = to
	return true, nil
}

// fakeMover confirms or rejects relocations.
type fakeMover struct {
	err   error
	calls int
}

func (m *fakeMover) Relocate(_ context.Context, _ uuid.UUID, _, _ string) error {
	m.calls++
	return m.err
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]bool{}}
}

func (l *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, true, nil
}

func (l *fakeLocker) Held(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[key], nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (a *fakeAudit) Append(_ context.Context, e *models.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, *e)
	return nil
}

func (a *fakeAudit) ForTenant(_ context.Context, tenantID uuid.UUID, kind models.AuditKind) ([]models.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.AuditEntry
	for _, e := range a.entries {
		if e.TenantID == tenantID && (kind == "" || e.Kind == kind) {
			out = append(out, e)
		}
	}
	return out, nil
}

type routerFixture struct {
	router   *Router
	store    *fakeStore
	mover    *fakeMover
	locker   *fakeLocker
	auditLog *fakeAudit
	tenant   *models.Tenant
}

func newRouterFixture() *routerFixture {
	tenant := &models.Tenant{
		ID:                uuid.New(),
		Subdomain:         "acme",
		Shard:             "shard-a",
		ProvisioningState: models.StateLive,
	}
	f := &routerFixture{
		store:    newFakeStore(tenant),
		mover:    &fakeMover{},
		locker:   newFakeLocker(),
		auditLog: &fakeAudit{},
		tenant:   tenant,
	}
	f.router = NewRouter(f.store, f.auditLog, f.mover, f.locker, events.Nop{}, testShards)
	return f
}

func TestAssignInitialIsDeterministic(t *testing.T) {
	f := newRouterFixture()

	id := uuid.New()
	first := f.router.AssignInitial(id)
	assert.Contains(t, testShards, first)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, f.router.AssignInitial(id))
	}
}

func TestAssignInitialSpreadsTenants(t *testing.T) {
	f := newRouterFixture()

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		seen[f.router.AssignInitial(uuid.New())] = true
	}
	assert.Len(t, seen, len(testShards), "200 tenants should hit every shard")
}

func TestMigrateSuccess(t *testing.T) {
	f := newRouterFixture()
	ctx := context.Background()

	entry, err := f.router.Migrate(ctx, f.tenant.ID, "shard-b", "ops@brickfolio", "rebalance")
	require.NoError(t, err)
	assert.Equal(t, models.AuditCompleted, entry.Status)
	assert.Equal(t, "shard-a", entry.OldValue)
	assert.Equal(t, "shard-b", entry.NewValue)
	assert.Equal(t, 1, f.mover.calls)

	moved, err := f.store.Get(ctx, f.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "shard-b", moved.Shard)

	trail, err := f.router.AuditLog(ctx, f.tenant.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, models.AuditShardMigration, trail[0].Kind)
}

func TestMigrateMoverFailureLeavesShardUntouched(t *testing.T) {
	f := newRouterFixture()
	f.mover.err = assert.AnError
	ctx := context.Background()

	entry, err := f.router.Migrate(ctx, f.tenant.ID, "shard-b", "ops@brickfolio", "")
	require.Error(t, err)
	assert.True(t, errs.IsTransient(err))
	require.NotNil(t, entry)
	assert.Equal(t, models.AuditFailed, entry.Status)

	unchanged, getErr := f.store.Get(ctx, f.tenant.ID)
	require.NoError(t, getErr)
	assert.Equal(t, "shard-a", unchanged.Shard, "a failed relocation must not flip the assignment")

	trail, trailErr := f.router.AuditLog(ctx, f.tenant.ID)
	require.NoError(t, trailErr)
	require.Len(t, trail, 1, "exactly one failed entry")
	assert.Equal(t, models.AuditFailed, trail[0].Status)
}

func TestMigrateConcurrentMigrationConflicts(t *testing.T) {
	f := newRouterFixture()
	f.locker.held["migrate:"+f.tenant.ID.String()] = true

	_, err := f.router.Migrate(context.Background(), f.tenant.ID, "shard-b", "ops@brickfolio", "")
	require.Error(t, err)
	assert.True(t, errs.IsConflict(err))
	assert.Equal(t, 0, f.mover.calls, "no relocation starts while another is in flight")
}

func TestMigrateSameShardIsInvalid(t *testing.T) {
	f := newRouterFixture()

	_, err := f.router.Migrate(context.Background(), f.tenant.ID, "shard-a", "ops@brickfolio", "")
	require.Error(t, err)
	assert.True(t, errs.IsInvalid(err))
}

func TestMigrateUnknownShardIsInvalid(t *testing.T) {
	f := newRouterFixture()

	_, err := f.router.Migrate(context.Background(), f.tenant.ID, "shard-z", "ops@brickfolio", "")
	require.Error(t, err)
	assert.True(t, errs.IsInvalid(err))
}

func TestMigrateRequiresActor(t *testing.T) {
	f := newRouterFixture()

	_, err := f.router.Migrate(context.Background(), f.tenant.ID, "shard-b", "", "")
	require.Error(t, err)
	assert.True(t, errs.IsInvalid(err))
}

func TestMigrateLostShardRaceConflicts(t *testing.T) {
	f := newRouterFixture()
	ctx := context.Background()

	// The shard changes between the router's read and its conditional write.
	f.store.afterGet = func() {
		f.store.mu.Lock()
		f.store.tenants[f.tenant.ID].Shard = "shard-c"
		f.store.mu.Unlock()
	}

	entry, err := f.router.Migrate(ctx, f.tenant.ID, "shard-b", "ops@brickfolio", "")
	require.Error(t, err)
	assert.True(t, errs.IsConflict(err))
	require.NotNil(t, entry)
	assert.Equal(t, models.AuditFailed, entry.Status)

	current, getErr := f.store.Get(ctx, f.tenant.ID)
	require.NoError(t, getErr)
	assert.Equal(t, "shard-c", current.Shard, "the lost write never lands")
}

func TestMigrationInFlight(t *testing.T) {
	f := newRouterFixture()
	ctx := context.Background()

	inflight, err := f.router.MigrationInFlight(ctx, f.tenant.ID)
	require.NoError(t, err)
	assert.False(t, inflight)

	f.locker.held["migrate:"+f.tenant.ID.String()] = true
	inflight, err = f.router.MigrationInFlight(ctx, f.tenant.ID)
	require.NoError(t, err)
	assert.True(t, inflight)
}

func TestMigrateUnknownTenant(t *testing.T) {
	f := newRouterFixture()

	_, err := f.router.Migrate(context.Background(), uuid.New(), "shard-b", "ops@brickfolio", "")
	assert.True(t, errs.IsNotFound(err))
}
