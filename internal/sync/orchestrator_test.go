package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/datalake/internal/models"
	"github.com/xelth-com/datalake/internal/testutil"
)

func resultFor(t *testing.T, res *TierResult, kind EntityKind) *EntityResult {
	t.Helper()
	for _, r := range res.Entities {
		if r.Entity == kind {
			return r
		}
	}
	t.Fatalf("no result for %s", kind)
	return nil
}

func TestStartRunsStaleFullSyncAndSkipsFreshOne(t *testing.T) {
	db := testutil.NewTestDB(t)
	fake := newFakeConnector(50)
	ctx := context.Background()

	o, _ := newTestOrchestrator(t, db, fake)
	require.NoError(t, o.state.Init(ctx))
	require.NoError(t, db.Model(&models.SyncState{}).
		Where("connection_id = ?", testConn).
		Update("last_full_sync_at", time.Now().Add(-90*time.Minute)).Error)

	require.NoError(t, o.Start(ctx))
	assert.True(t, o.IsRunning())
	assert.Equal(t, 1, fake.callCount(EntityCompanies), "90 minutes old: initial full sync runs")
	assert.ErrorIs(t, o.Start(ctx), ErrAlreadyRunning)

	select {
	case <-o.Stop().Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not drain")
	}
	assert.False(t, o.IsRunning())

	// a new process ten minutes later sees a fresh full sync
	restarted, _ := newTestOrchestrator(t, db, fake)
	restarted.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	require.NoError(t, restarted.Start(ctx))
	assert.Equal(t, 1, fake.callCount(EntityCompanies), "10 minutes old: initial full sync skipped")

	var count int64
	require.NoError(t, db.Model(&models.Transport{}).Count(&count).Error)
	assert.Equal(t, int64(50), count)
}

func TestStopDuringInitialSyncLeavesSchedulerDisarmed(t *testing.T) {
	db := testutil.NewTestDB(t)
	fake := newFakeConnector(5)
	fake.block = make(chan struct{})
	fake.entered = make(chan struct{}, 1)
	ctx := context.Background()

	o, _ := newTestOrchestrator(t, db, fake)

	started := make(chan error, 1)
	go func() { started <- o.Start(ctx) }()
	<-fake.entered

	stopped := o.Stop()
	assert.False(t, o.IsRunning())
	close(fake.block)

	select {
	case err := <-started:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("start did not return")
	}
	select {
	case <-stopped.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not drain")
	}

	assert.False(t, o.IsRunning())
	o.mu.Lock()
	assert.Nil(t, o.cron, "no scheduler armed after stop")
	o.mu.Unlock()

	// the orchestrator can be started again
	fake.block = nil
	require.NoError(t, o.Start(ctx))
	assert.True(t, o.IsRunning())
	o.mu.Lock()
	assert.NotNil(t, o.cron)
	o.mu.Unlock()
}

func TestStartWithCancelledContextDoesNotArm(t *testing.T) {
	db := testutil.NewTestDB(t)
	o, _ := newTestOrchestrator(t, db, newFakeConnector(5))
	require.NoError(t, o.state.Init(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, o.Start(ctx))
	assert.False(t, o.IsRunning())
	o.mu.Lock()
	assert.Nil(t, o.cron)
	o.mu.Unlock()
}

func TestIncrementalWritesOnlyChangedTransports(t *testing.T) {
	db := testutil.NewTestDB(t)
	fake := newFakeConnector(50)
	ctx := context.Background()

	o, events := newTestOrchestrator(t, db, fake)
	require.NoError(t, o.state.Init(ctx))

	_, err := o.TriggerManualSync(ctx, TierFull)
	require.NoError(t, err)

	for _, i := range []int{3, 17, 42} {
		fake.setStatus(i, models.TransportCompleted)
	}

	res, err := o.TriggerManualSync(ctx, TierIncremental)
	require.NoError(t, err)

	transports := resultFor(t, res, EntityTransports)
	assert.Equal(t, 50, transports.Fetched)
	assert.Equal(t, 3, transports.Changed)
	assert.Equal(t, 3, transports.Written)
	assert.Equal(t, 0, resultFor(t, res, EntityCounters).Written)

	snap, err := o.state.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Entities[EntityTransports].SyncedCount)
	assert.Equal(t, 50, snap.Entities[EntityTransports].TotalCount)
	assert.NotNil(t, snap.State.LastIncrementalSyncAt)

	var changed models.Transport
	require.NoError(t, db.Where("external_id = ?", "t-17").First(&changed).Error)
	assert.Equal(t, models.TransportCompleted, changed.Status)
	assert.Equal(t, 2, changed.SyncVersion)

	var untouched models.Transport
	require.NoError(t, db.Where("external_id = ?", "t-18").First(&untouched).Error)
	assert.Equal(t, 1, untouched.SyncVersion)

	completed := events.ofType(EventTierCompleted)
	require.NotEmpty(t, completed)
	last := completed[len(completed)-1]
	assert.Equal(t, TierIncremental, last.Tier)
	assert.Equal(t, []EntityKind{EntityTransports}, last.Changed)
	assert.Equal(t, 3, last.Written)
}

func TestEntityFailureDoesNotStopTheRun(t *testing.T) {
	db := testutil.NewTestDB(t)
	fake := newFakeConnector(5)
	fake.failures[EntityCompanies] = &attemptsError{attempts: 4}
	ctx := context.Background()

	o, events := newTestOrchestrator(t, db, fake)
	require.NoError(t, o.state.Init(ctx))

	res, err := o.TriggerManualSync(ctx, TierPeriodic)
	require.Error(t, err)
	assert.Equal(t, []EntityKind{EntityCompanies}, res.Failed)
	assert.Equal(t, 1, resultFor(t, res, EntityVehicles).Written)
	assert.Equal(t, 1, resultFor(t, res, EntityDrivers).Written)

	snap, err := o.state.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(StatusIdle), snap.State.Status)
	assert.Equal(t, string(StatusError), snap.Entities[EntityCompanies].Status)
	assert.Equal(t, string(StatusIdle), snap.Entities[EntityVehicles].Status)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, string(EntityCompanies), snap.Errors[0].Entity)
	assert.Equal(t, 3, snap.Errors[0].RetryCount)
	assert.Nil(t, snap.State.LastSuccessfulSyncAt)
	assert.NotNil(t, snap.State.LastPeriodicSyncAt)
	assert.Len(t, events.ofType(EventEntityFailed), 1)
	assert.Len(t, events.ofType(EventTierFailed), 1)

	for i := 0; i < 54; i++ {
		_, err := o.TriggerManualSync(ctx, TierPeriodic)
		require.Error(t, err)
	}
	snap, err = o.state.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Errors, DefaultMaxErrors)
}

func TestFullSyncContinuesPastFailingMiddleKind(t *testing.T) {
	db := testutil.NewTestDB(t)
	fake := newFakeConnector(5)
	fake.failures[EntityTrailers] = errors.New("trailers endpoint down")
	ctx := context.Background()

	o, _ := newTestOrchestrator(t, db, fake)
	require.NoError(t, o.state.Init(ctx))

	res, err := o.TriggerManualSync(ctx, TierFull)
	require.Error(t, err)
	assert.Equal(t, []EntityKind{EntityTrailers}, res.Failed)
	assert.Equal(t, 5, resultFor(t, res, EntityTransports).Written)

	snap, err := o.state.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(StatusError), snap.Entities[EntityTrailers].Status)
	for _, kind := range []EntityKind{EntityDrivers, EntityContacts, EntityTransports, EntityInvoices, EntityAddresses} {
		assert.Equal(t, string(StatusIdle), snap.Entities[kind].Status, kind)
		assert.Equal(t, 1, fake.callCount(kind), kind)
	}
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, string(EntityTrailers), snap.Errors[0].Entity)
	assert.NotNil(t, snap.State.LastFullSyncAt)
}

func TestBusyTierIsSkippedNotQueued(t *testing.T) {
	db := testutil.NewTestDB(t)
	fake := newFakeConnector(5)
	fake.block = make(chan struct{})
	fake.entered = make(chan struct{}, 1)
	ctx := context.Background()

	o, events := newTestOrchestrator(t, db, fake)
	require.NoError(t, o.state.Init(ctx))

	done := make(chan error, 1)
	go func() {
		_, err := o.TriggerManualSync(ctx, TierTransports)
		done <- err
	}()
	<-fake.entered

	assert.True(t, o.IsTierRunning(TierTransports))
	_, err := o.TriggerManualSync(ctx, TierTransports)
	assert.ErrorIs(t, err, ErrTierInProgress)
	assert.Len(t, events.ofType(EventTierSkipped), 1)

	// other tiers are not blocked
	_, err = o.TriggerManualSync(ctx, TierPeriodic)
	require.NoError(t, err)

	close(fake.block)
	require.NoError(t, <-done)
	assert.False(t, o.IsTierRunning(TierTransports))
	assert.Equal(t, 1, fake.callCount(EntityTransports))
}

func TestAsyncTriggerClaimsTierImmediately(t *testing.T) {
	db := testutil.NewTestDB(t)
	fake := newFakeConnector(5)
	fake.block = make(chan struct{})
	fake.entered = make(chan struct{}, 1)

	o, events := newTestOrchestrator(t, db, fake)
	require.NoError(t, o.state.Init(context.Background()))

	require.NoError(t, o.TriggerManualSyncAsync(TierTransports))
	assert.True(t, o.IsTierRunning(TierTransports))
	assert.ErrorIs(t, o.TriggerManualSyncAsync(TierTransports), ErrTierInProgress)
	assert.ErrorIs(t, o.TriggerManualSyncAsync(Tier("weekly")), ErrUnknownTier)

	<-fake.entered
	close(fake.block)
	require.Eventually(t, func() bool {
		return len(events.ofType(EventTierCompleted)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return !o.IsTierRunning(TierTransports) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, fake.callCount(EntityTransports))
}

func TestPauseIsPersistedAndRestored(t *testing.T) {
	db := testutil.NewTestDB(t)
	fake := newFakeConnector(5)
	ctx := context.Background()

	o, _ := newTestOrchestrator(t, db, fake)
	require.NoError(t, o.state.Init(ctx))
	require.NoError(t, o.Pause(ctx, "upstream maintenance"))
	assert.True(t, o.IsPaused())

	// ticks idle while paused
	o.tick(TierPeriodic)
	assert.Equal(t, 0, fake.callCount(EntityCompanies))

	restarted, _ := newTestOrchestrator(t, db, fake)
	require.NoError(t, restarted.Start(ctx))
	assert.True(t, restarted.IsPaused())
	assert.Equal(t, 0, fake.callCount(EntityCompanies), "no initial sync while paused")

	// manual syncs still run
	_, err := restarted.TriggerManualSync(ctx, TierPeriodic)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.callCount(EntityCompanies))

	snap, err := restarted.state.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(StatusPaused), snap.State.Status)
	assert.Equal(t, "upstream maintenance", snap.State.PausedReason)

	require.NoError(t, restarted.Resume(ctx))
	snap, err = restarted.state.Get(ctx)
	require.NoError(t, err)
	assert.False(t, snap.State.IsPaused)
	assert.Empty(t, snap.State.PausedReason)
	assert.Equal(t, string(StatusIdle), snap.State.Status)

	restarted.tick(TierPeriodic)
	assert.Equal(t, 2, fake.callCount(EntityCompanies))
}

func TestUnknownTier(t *testing.T) {
	db := testutil.NewTestDB(t)
	o, _ := newTestOrchestrator(t, db, newFakeConnector(0))

	_, err := o.TriggerManualSync(context.Background(), Tier("hourly"))
	assert.ErrorIs(t, err, ErrUnknownTier)

	_, err = ParseTier("hourly")
	assert.ErrorIs(t, err, ErrUnknownTier)
	tier, err := ParseTier("transports")
	require.NoError(t, err)
	assert.Equal(t, TierTransports, tier)
}

func TestPanicInTierSetsErrorStatus(t *testing.T) {
	db := testutil.NewTestDB(t)
	fake := newFakeConnector(1)
	fake.panics[EntityVehicles] = true
	ctx := context.Background()

	o, _ := newTestOrchestrator(t, db, fake)
	require.NoError(t, o.state.Init(ctx))

	_, err := o.TriggerManualSync(ctx, TierPeriodic)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vehicles exploded")
	assert.False(t, o.IsTierRunning(TierPeriodic))

	snap, err := o.state.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(StatusError), snap.State.Status)

	// the next clean run recovers
	delete(fake.panics, EntityVehicles)
	_, err = o.TriggerManualSync(ctx, TierPeriodic)
	require.NoError(t, err)
	snap, err = o.state.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(StatusIdle), snap.State.Status)
}

func TestEntityDelayIsAwaitedBetweenKinds(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	o, _ := newTestOrchestrator(t, db, newFakeConnector(1))
	require.NoError(t, o.state.Init(ctx))
	o.cfg.EntityDelay = 3 * time.Second

	var slept []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	_, err := o.TriggerManualSync(ctx, TierFull)
	require.NoError(t, err)
	assert.Len(t, slept, len(Plan(TierFull))-1)
	assert.Equal(t, 3*time.Second, slept[0])

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, sleepCtx(cancelled, time.Hour), context.Canceled)
}

func TestGetStats(t *testing.T) {
	db := testutil.NewTestDB(t)
	fake := newFakeConnector(7)
	ctx := context.Background()

	o, _ := newTestOrchestrator(t, db, fake)
	require.NoError(t, o.state.Init(ctx))
	_, err := o.TriggerManualSync(ctx, TierFull)
	require.NoError(t, err)

	stats, err := o.GetStats(ctx)
	require.NoError(t, err)
	assert.False(t, stats.IsRunning)
	assert.False(t, stats.IsPaused)
	assert.Equal(t, "fake", stats.Connector)
	assert.Equal(t, int64(7), stats.Collections[EntityTransports])
	assert.Equal(t, int64(3), stats.Collections[EntityCompanies])
	assert.Equal(t, int64(1), stats.Collections[EntityCounters])
	assert.Equal(t, int64(0), stats.Collections[EntityInvoices])
	assert.NotNil(t, stats.LastSync.Full)
	assert.Nil(t, stats.LastSync.Periodic)
	assert.Equal(t, int64(1), stats.Metrics.SyncRunsTotal)
	assert.Equal(t, int64(len(Plan(TierFull))), stats.Metrics.APICallsTotal)
	assert.Empty(t, stats.ActiveTiers)
}

func TestManager(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	o, _ := newTestOrchestrator(t, db, newFakeConnector(1))

	m := NewManager()
	require.NoError(t, m.Add(o))
	assert.Error(t, m.Add(o))

	got, ok := m.Get(testConn)
	require.True(t, ok)
	assert.Same(t, o, got)
	_, ok = m.Get("missing")
	assert.False(t, ok)

	require.NoError(t, m.StartAll(ctx))
	assert.True(t, o.IsRunning())
	err := m.StartAll(ctx)
	assert.True(t, errors.Is(err, ErrAlreadyRunning))

	select {
	case <-m.StopAll().Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not drain")
	}
	assert.False(t, o.IsRunning())
}
