package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/datalake/internal/config"
	"github.com/xelth-com/datalake/internal/connector"
	"github.com/xelth-com/datalake/internal/metrics"
	"github.com/xelth-com/datalake/internal/models"
	"golang.org/x/sync/errgroup"
)

// Options wires an Orchestrator
type Options struct {
	OrganizationID string
	ConnectionID   string
	Config         *config.SyncConfig
	Connector      connector.Connector
	Syncers        map[EntityKind]EntitySyncer
	State          *StateStore
	Publisher      EventPublisher
	Metrics        *metrics.Collector
	Logger         logrus.FieldLogger
}

// Orchestrator schedules the sync tiers of one connection
type Orchestrator struct {
	org       string
	conn      string
	cfg       *config.SyncConfig
	connector connector.Connector
	syncers   map[EntityKind]EntitySyncer
	state     *StateStore
	publisher EventPublisher
	metrics   *metrics.Collector
	log       logrus.FieldLogger

	mu      sync.Mutex
	running bool
	gen     uint64 // bumped by Start and Stop
	cron    *cron.Cron
	runCtx  context.Context
	cancel  context.CancelFunc

	paused   atomic.Bool
	active   map[Tier]*atomic.Bool
	syncing  atomic.Int32
	inflight sync.WaitGroup

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewOrchestrator creates an orchestrator; nothing runs until Start
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Config == nil || opts.Connector == nil || opts.State == nil {
		return nil, errors.New("orchestrator needs config, connector and state store")
	}
	if opts.Publisher == nil {
		opts.Publisher = NopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	active := make(map[Tier]*atomic.Bool, len(Tiers))
	for _, t := range Tiers {
		active[t] = &atomic.Bool{}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		org:       opts.OrganizationID,
		conn:      opts.ConnectionID,
		cfg:       opts.Config,
		connector: opts.Connector,
		syncers:   opts.Syncers,
		state:     opts.State,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		log: opts.Logger.WithFields(logrus.Fields{
			"organization": opts.OrganizationID,
			"connection":   opts.ConnectionID,
		}),
		runCtx: runCtx,
		cancel: cancel,
		active: active,
		sleep:  sleepCtx,
		now:    time.Now,
	}, nil
}

// OrganizationID returns the organization the connection belongs to
func (o *Orchestrator) OrganizationID() string { return o.org }

// ConnectionID returns the mirrored connection
func (o *Orchestrator) ConnectionID() string { return o.conn }

// ConnectorName returns the upstream connector type
func (o *Orchestrator) ConnectorName() string { return o.connector.Name() }

// IsRunning reports whether the scheduler is armed
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// IsPaused reports whether scheduled ticks are suspended
func (o *Orchestrator) IsPaused() bool {
	return o.paused.Load()
}

// IsTierRunning reports whether a run of tier is in flight
func (o *Orchestrator) IsTierRunning(t Tier) bool {
	guard, ok := o.active[t]
	return ok && guard.Load()
}

// Start initializes the sync state, runs the initial full sync unless the
// last one is recent enough, then arms the scheduler
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	o.running = true
	o.gen++
	gen := o.gen
	o.mu.Unlock()

	if err := o.start(ctx, gen); err != nil {
		o.mu.Lock()
		if o.gen == gen {
			o.running = false
		}
		o.mu.Unlock()
		return err
	}
	return nil
}

// Prepare creates or recovers the persisted sync state and restores the
// pause flag. Start calls it; one-shot callers that only trigger manual
// syncs call it directly.
func (o *Orchestrator) Prepare(ctx context.Context) (*Snapshot, error) {
	if err := o.state.Init(ctx); err != nil {
		return nil, err
	}
	snap, err := o.state.Get(ctx)
	if err != nil {
		return nil, err
	}

	o.paused.Store(snap.State.IsPaused)
	if snap.State.IsPaused {
		o.log.WithField("reason", snap.State.PausedReason).Warn("⏸️ Sync is paused, scheduled tiers will idle until resumed")
	}
	return snap, nil
}

func (o *Orchestrator) start(ctx context.Context, gen uint64) error {
	o.log.Info("🔄 Data lake sync starting...")

	snap, err := o.Prepare(ctx)
	if err != nil {
		return err
	}

	switch {
	case snap.State.IsPaused:
		o.log.Info("⏭️ Initial full sync skipped: paused")
	case o.initialSyncFresh(snap.State.LastFullSyncAt):
		o.log.WithField("lastFullSyncAt", snap.State.LastFullSyncAt).Info("⏭️ Initial full sync skipped: data is fresh")
		o.metrics.TierSkipped(o.conn, string(TierFull), "fresh")
	default:
		o.log.Info("📥 Running initial full sync")
		if _, err := o.runTier(ctx, TierFull); err != nil {
			o.log.WithError(err).Warn("⚠️ Initial full sync finished with errors")
		}
	}

	c := cron.New()
	if o.cfg.EnableIncremental {
		o.schedule(c, TierIncremental, o.cfg.IncrementalInterval)
	}
	o.schedule(c, TierPeriodic, o.cfg.PeriodicInterval)
	if o.cfg.FullSchedule != "" {
		if _, err := c.AddFunc(o.cfg.FullSchedule, func() { o.tick(TierFull) }); err != nil {
			return fmt.Errorf("invalid full sync schedule %q: %w", o.cfg.FullSchedule, err)
		}
	} else {
		o.schedule(c, TierFull, o.cfg.FullInterval)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Stop may have run during the initial sync
	o.mu.Lock()
	if !o.running || o.gen != gen {
		o.mu.Unlock()
		o.log.Info("⏹️ Stopped during initial sync, scheduler not armed")
		return nil
	}
	c.Start()
	o.cron = c
	o.mu.Unlock()

	o.log.WithFields(logrus.Fields{
		"incremental": o.cfg.IncrementalInterval,
		"periodic":    o.cfg.PeriodicInterval,
		"full":        o.cfg.FullInterval,
	}).Info("✅ Data lake sync started")
	return nil
}

func (o *Orchestrator) initialSyncFresh(lastFull *time.Time) bool {
	if !o.cfg.SkipInitialSyncIfFresh || lastFull == nil {
		return false
	}
	return o.now().Sub(*lastFull) < o.cfg.FreshnessThreshold
}

func (o *Orchestrator) schedule(c *cron.Cron, t Tier, every time.Duration) {
	c.Schedule(cron.Every(every), cron.FuncJob(func() { o.tick(t) }))
}

// tick is the scheduler entry point of a tier
func (o *Orchestrator) tick(t Tier) {
	if o.paused.Load() {
		o.log.WithField("tier", t).Debug("⏸️ Tick skipped: paused")
		o.metrics.TierSkipped(o.conn, string(t), "paused")
		return
	}
	if _, err := o.runTier(o.runCtx, t); err != nil && !errors.Is(err, ErrTierInProgress) {
		o.log.WithField("tier", t).WithError(err).Warn("⚠️ Tier finished with errors")
	}
}

// Stop removes the scheduler entries. The returned context is done once
// in-flight runs, scheduled or manual, have finished.
func (o *Orchestrator) Stop() context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()

	done, finish := context.WithCancel(context.Background())
	if !o.running {
		// manual runs may still be in flight
		go func() {
			o.inflight.Wait()
			finish()
		}()
		return done
	}

	o.log.Info("🛑 Stopping data lake sync...")
	o.running = false
	o.gen++
	var cronDone <-chan struct{}
	if o.cron != nil {
		cronDone = o.cron.Stop().Done()
		o.cron = nil
	}

	go func() {
		if cronDone != nil {
			<-cronDone
		}
		o.inflight.Wait()
		o.log.Info("✅ Data lake sync stopped")
		finish()
	}()
	return done
}

// Close cancels in-flight runs; used when Stop did not drain in time
func (o *Orchestrator) Close() {
	o.cancel()
}

// Pause suspends scheduled ticks and persists the flag
func (o *Orchestrator) Pause(ctx context.Context, reason string) error {
	o.paused.Store(true)
	paused := true
	status := StatusPaused
	if err := o.state.SetGlobalState(ctx, GlobalStateUpdate{Status: &status, IsPaused: &paused, PausedReason: &reason}); err != nil {
		return err
	}

	o.log.WithField("reason", reason).Info("⏸️ Sync paused")
	e := newEvent(EventPaused, o.org, o.conn)
	e.Message = reason
	o.publisher.Publish(e)
	return nil
}

// Resume re-enables scheduled ticks
func (o *Orchestrator) Resume(ctx context.Context) error {
	o.paused.Store(false)
	paused := false
	reason := ""
	status := StatusIdle
	if o.syncing.Load() > 0 {
		status = StatusSyncing
	}
	if err := o.state.SetGlobalState(ctx, GlobalStateUpdate{Status: &status, IsPaused: &paused, PausedReason: &reason}); err != nil {
		return err
	}

	o.log.Info("▶️ Sync resumed")
	o.publisher.Publish(newEvent(EventResumed, o.org, o.conn))
	return nil
}

// TriggerManualSync runs tier now and waits for it. It works whether or not
// the scheduler is running, and while paused.
func (o *Orchestrator) TriggerManualSync(ctx context.Context, t Tier) (*TierResult, error) {
	if _, ok := tierPlans[t]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, t)
	}
	o.log.WithField("tier", t).Info("📥 Manual sync requested")
	return o.runTier(ctx, t)
}

// TriggerManualSyncAsync claims tier and runs it in the background on the
// orchestrator's own context. Busy and unknown tiers are reported at once.
func (o *Orchestrator) TriggerManualSyncAsync(t Tier) error {
	if _, ok := tierPlans[t]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTier, t)
	}
	if !o.claim(t) {
		return ErrTierInProgress
	}
	o.log.WithField("tier", t).Info("📥 Manual sync requested (async)")
	go func() {
		defer o.release(t)
		if _, err := o.execute(o.runCtx, t); err != nil {
			o.log.WithError(err).WithField("tier", t).Warn("manual sync finished with errors")
		}
	}()
	return nil
}

// runTier claims the tier guard and executes its plan
func (o *Orchestrator) runTier(ctx context.Context, t Tier) (*TierResult, error) {
	if !o.claim(t) {
		return nil, ErrTierInProgress
	}
	defer o.release(t)
	return o.execute(ctx, t)
}

// claim sets the tier guard; a busy tier is logged and reported as skipped
func (o *Orchestrator) claim(t Tier) bool {
	if !o.active[t].CompareAndSwap(false, true) {
		o.log.WithField("tier", t).Info("⏳ Tier already in progress, skipping")
		o.metrics.TierSkipped(o.conn, string(t), "busy")
		e := newEvent(EventTierSkipped, o.org, o.conn)
		e.Tier = t
		o.publisher.Publish(e)
		return false
	}
	o.inflight.Add(1)
	return true
}

func (o *Orchestrator) release(t Tier) {
	o.active[t].Store(false)
	o.inflight.Done()
}

// execute runs the steps of a tier in order with the entity delay between
// them. Entity failures are collected and the run moves on.
func (o *Orchestrator) execute(ctx context.Context, t Tier) (result *TierResult, err error) {
	log := o.log.WithField("tier", t)
	start := o.now()
	callsBefore := o.connector.APICalls()
	result = &TierResult{Tier: t}

	o.enter(ctx)
	started := newEvent(EventTierStarted, o.org, o.conn)
	started.Tier = t
	o.publisher.Publish(started)

	var fatal error
	defer func() {
		if r := recover(); r != nil {
			fatal = fmt.Errorf("panic in %s sync: %v", t, r)
			err = multierror.Append(err, fatal)
		}
		result.Duration = o.now().Sub(start)
		result.APICalls = o.connector.APICalls() - callsBefore
		if leaveErr := o.leave(ctx, result, err, fatal); leaveErr != nil {
			err = multierror.Append(err, leaveErr)
		}
		if err != nil {
			log.WithError(err).WithField("duration", result.Duration).Warnf("⚠️ %s sync finished with %d failed entities", t, len(result.Failed))
		} else {
			log.WithFields(logrus.Fields{
				"duration": result.Duration,
				"written":  result.Written(),
				"apiCalls": result.APICalls,
			}).Infof("✅ %s sync completed", t)
		}
	}()

	var errs *multierror.Error
	for i, step := range Plan(t) {
		if i > 0 {
			if err := o.sleep(ctx, o.cfg.EntityDelay); err != nil {
				errs = multierror.Append(errs, err)
				break
			}
		}

		syncer, ok := o.syncers[step.Entity]
		if !ok {
			errs = multierror.Append(errs, fmt.Errorf("%w: %s", ErrUnknownEntity, step.Entity))
			result.Failed = append(result.Failed, step.Entity)
			continue
		}

		res, syncErr := syncer.Sync(ctx, step.Mode)
		if res != nil {
			result.Entities = append(result.Entities, res)
		}
		if syncErr != nil {
			errs = multierror.Append(errs, syncErr)
			result.Failed = append(result.Failed, step.Entity)
			e := newEvent(EventEntityFailed, o.org, o.conn)
			e.Tier, e.Entity, e.Message = t, step.Entity, syncErr.Error()
			o.publisher.Publish(e)
			continue
		}
		if res.Written > 0 {
			e := newEvent(EventEntitySynced, o.org, o.conn)
			e.Tier, e.Entity, e.Written = t, step.Entity, res.Written
			o.publisher.Publish(e)
		}
	}
	return result, errs.ErrorOrNil()
}

// enter marks the connection syncing when the first tier starts
func (o *Orchestrator) enter(ctx context.Context) {
	if o.syncing.Add(1) != 1 || o.paused.Load() {
		return
	}
	status := StatusSyncing
	if err := o.state.SetGlobalState(ctx, GlobalStateUpdate{Status: &status}); err != nil {
		o.log.WithError(err).Error("failed to mark connection syncing")
	}
}

// leave records the run and settles the global status. Entity failures
// leave the status idle; orchestrator failures set it to error.
func (o *Orchestrator) leave(ctx context.Context, result *TierResult, runErr, fatal error) error {
	ctx = context.WithoutCancel(ctx)
	remaining := o.syncing.Add(-1)

	metricsErr := o.state.RecordMetrics(ctx, result.Tier, result.Duration, runErr == nil, result.APICalls)
	o.metrics.ObserveRun(o.conn, string(result.Tier), result.Duration, runErr != nil)

	var status *Status
	switch {
	case fatal != nil || metricsErr != nil:
		s := StatusError
		status = &s
	case remaining > 0:
	case o.paused.Load():
		s := StatusPaused
		status = &s
	default:
		s := StatusIdle
		status = &s
	}
	if status != nil {
		if err := o.state.SetGlobalState(ctx, GlobalStateUpdate{Status: status}); err != nil {
			metricsErr = multierror.Append(metricsErr, err)
		}
	}

	e := newEvent(EventTierCompleted, o.org, o.conn)
	if runErr != nil {
		e = newEvent(EventTierFailed, o.org, o.conn)
		e.Message = runErr.Error()
	}
	e.Tier = result.Tier
	e.Written = result.Written()
	for _, r := range result.Entities {
		if r.Written > 0 {
			e.Changed = append(e.Changed, r.Entity)
		}
	}
	o.publisher.Publish(e)
	return metricsErr
}

// Stats is the operational view of a connection
type Stats struct {
	OrganizationID string                                 `json:"organizationId"`
	ConnectionID   string                                 `json:"connectionId"`
	Connector      string                                 `json:"connector"`
	IsRunning      bool                                   `json:"isRunning"`
	IsPaused       bool                                   `json:"isPaused"`
	PausedReason   string                                 `json:"pausedReason,omitempty"`
	Status         string                                 `json:"status"`
	ActiveTiers    []Tier                                 `json:"activeTiers"`
	Collections    map[EntityKind]int64                   `json:"collections"`
	LastSync       LastSync                               `json:"lastSync"`
	Metrics        StatsMetrics                           `json:"metrics"`
	Entities       map[EntityKind]*models.SyncEntityState `json:"entities"`
	RecentErrors   []models.SyncError                     `json:"recentErrors"`
}

// LastSync holds the completion time of every scheduled tier
type LastSync struct {
	Full        *time.Time `json:"full"`
	Incremental *time.Time `json:"incremental"`
	Periodic    *time.Time `json:"periodic"`
}

// StatsMetrics are the persisted aggregate metrics
type StatsMetrics struct {
	APICallsTotal        int64      `json:"apiCallsTotal"`
	LastSyncDurationMs   int64      `json:"lastSyncDurationMs"`
	AvgSyncDurationMs    float64    `json:"avgSyncDurationMs"`
	SyncRunsTotal        int64      `json:"syncRunsTotal"`
	LastSuccessfulSyncAt *time.Time `json:"lastSuccessfulSyncAt"`
	ErrorsLastHour       int        `json:"errorsLastHour"`
}

const recentErrorsInStats = 10

var collectionModels = map[EntityKind]interface{}{
	EntityCounters:   &models.Counter{},
	EntityTransports: &models.Transport{},
	EntityCompanies:  &models.Company{},
	EntityVehicles:   &models.Vehicle{},
	EntityTrailers:   &models.Trailer{},
	EntityDrivers:    &models.Driver{},
	EntityContacts:   &models.Contact{},
	EntityInvoices:   &models.Invoice{},
	EntityAddresses:  &models.Address{},
}

// GetStats assembles run state, persisted metrics and collection sizes
func (o *Orchestrator) GetStats(ctx context.Context) (*Stats, error) {
	snap, err := o.state.Get(ctx)
	if err != nil {
		return nil, err
	}

	counts := make([]int64, len(EntityKinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range EntityKinds {
		i, kind := i, kind
		g.Go(func() error {
			return o.state.db.WithContext(gctx).
				Model(collectionModels[kind]).
				Where("connection_id = ?", o.conn).
				Count(&counts[i]).Error
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("count collections: %w", err)
	}

	stats := &Stats{
		OrganizationID: o.org,
		ConnectionID:   o.conn,
		Connector:      o.connector.Name(),
		IsRunning:      o.IsRunning(),
		IsPaused:       o.paused.Load(),
		PausedReason:   snap.State.PausedReason,
		Status:         snap.State.Status,
		ActiveTiers:    []Tier{},
		Collections:    make(map[EntityKind]int64, len(EntityKinds)),
		LastSync: LastSync{
			Full:        snap.State.LastFullSyncAt,
			Incremental: snap.State.LastIncrementalSyncAt,
			Periodic:    snap.State.LastPeriodicSyncAt,
		},
		Metrics: StatsMetrics{
			APICallsTotal:        snap.State.APICallsTotal,
			LastSyncDurationMs:   snap.State.LastSyncDurationMs,
			AvgSyncDurationMs:    snap.State.AvgSyncDurationMs,
			SyncRunsTotal:        snap.State.SyncRunsTotal,
			LastSuccessfulSyncAt: snap.State.LastSuccessfulSyncAt,
			ErrorsLastHour:       snap.ErrorsLastHour,
		},
		Entities:     snap.Entities,
		RecentErrors: snap.Errors,
	}
	if len(stats.RecentErrors) > recentErrorsInStats {
		stats.RecentErrors = stats.RecentErrors[:recentErrorsInStats]
	}
	for i, kind := range EntityKinds {
		stats.Collections[kind] = counts[i]
	}
	for _, t := range Tiers {
		if o.IsTierRunning(t) {
			stats.ActiveTiers = append(stats.ActiveTiers, t)
		}
	}
	return stats, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
