package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xelth-com/datalake/internal/config"
	"github.com/xelth-com/datalake/internal/connector"
	"github.com/xelth-com/datalake/internal/metrics"
	"github.com/xelth-com/datalake/internal/models"
)

// EntitySyncer mirrors one entity kind of a connection
type EntitySyncer interface {
	Entity() EntityKind
	Sync(ctx context.Context, mode SyncMode) (*EntityResult, error)
}

// SyncerDeps are shared by every syncer of a connection
type SyncerDeps struct {
	OrganizationID string
	ConnectionID   string
	Config         *config.SyncConfig
	Writer         *BulkWriter
	State          *StateStore
	Logger         logrus.FieldLogger
	Metrics        *metrics.Collector
}

type entitySyncer[T models.Mirrored] struct {
	kind     EntityKind
	table    string
	list     connector.ListFunc[T]
	ordering string
	pageSize int
	maxPages int
	fields   []string
	deps     SyncerDeps
	log      logrus.FieldLogger
	now      func() time.Time
}

func newEntitySyncer[T models.Mirrored](kind EntityKind, table string, list connector.ListFunc[T], deps SyncerDeps) *entitySyncer[T] {
	s := &entitySyncer[T]{
		kind:     kind,
		table:    table,
		list:     list,
		pageSize: deps.Config.PageSizeFor(string(kind)),
		maxPages: deps.Config.MaxPages,
		fields:   FingerprintFields(kind),
		deps:     deps,
		log:      deps.Logger.WithField("entity", kind),
		now:      time.Now,
	}
	if kind == EntityTransports {
		s.ordering = connector.OrderRecentlyUpdated
	}
	return s
}

// NewSyncers builds one syncer per entity kind on top of conn
func NewSyncers(conn connector.Connector, deps SyncerDeps) map[EntityKind]EntitySyncer {
	counters := func(ctx context.Context, _ connector.ListOptions) (*connector.Page[*models.Counter], error) {
		c, err := conn.GetCounters(ctx)
		if err != nil {
			return nil, err
		}
		return &connector.Page[*models.Counter]{Results: []*models.Counter{c}, Count: 1}, nil
	}

	return map[EntityKind]EntitySyncer{
		EntityCounters:   newEntitySyncer[*models.Counter](EntityCounters, models.Counter{}.TableName(), counters, deps),
		EntityTransports: newEntitySyncer[*models.Transport](EntityTransports, models.Transport{}.TableName(), conn.ListTransports, deps),
		EntityCompanies:  newEntitySyncer[*models.Company](EntityCompanies, models.Company{}.TableName(), conn.ListCompanies, deps),
		EntityVehicles:   newEntitySyncer[*models.Vehicle](EntityVehicles, models.Vehicle{}.TableName(), conn.ListVehicles, deps),
		EntityTrailers:   newEntitySyncer[*models.Trailer](EntityTrailers, models.Trailer{}.TableName(), conn.ListTrailers, deps),
		EntityDrivers:    newEntitySyncer[*models.Driver](EntityDrivers, models.Driver{}.TableName(), conn.ListDrivers, deps),
		EntityContacts:   newEntitySyncer[*models.Contact](EntityContacts, models.Contact{}.TableName(), conn.ListContacts, deps),
		EntityInvoices:   newEntitySyncer[*models.Invoice](EntityInvoices, models.Invoice{}.TableName(), conn.ListInvoices, deps),
		EntityAddresses:  newEntitySyncer[*models.Address](EntityAddresses, models.Address{}.TableName(), conn.ListAddresses, deps),
	}
}

func (s *entitySyncer[T]) Entity() EntityKind {
	return s.kind
}

// Sync fetches, filters and writes one entity kind, keeping the entity state
// current. Failures are recorded in the error ring and returned.
func (s *entitySyncer[T]) Sync(ctx context.Context, mode SyncMode) (*EntityResult, error) {
	start := s.now()
	syncing := StatusSyncing
	if err := s.deps.State.SetEntityState(ctx, s.kind, EntityStateUpdate{Status: &syncing}); err != nil {
		return nil, err
	}

	result, err := s.run(ctx, mode)
	result.Duration = s.now().Sub(start)
	if err != nil {
		s.fail(ctx, err)
		return result, fmt.Errorf("%s: %w", s.kind, err)
	}

	idle := StatusIdle
	finished := s.now().UTC()
	if err := s.deps.State.SetEntityState(ctx, s.kind, EntityStateUpdate{
		Status:      &idle,
		LastSyncAt:  &finished,
		TotalCount:  &result.Total,
		SyncedCount: &result.Written,
		LastPage:    &result.LastPage,
	}); err != nil {
		err = fmt.Errorf("failed to record %s state: %w", s.kind, err)
		s.fail(ctx, err)
		return result, fmt.Errorf("%s: %w", s.kind, err)
	}

	s.deps.Metrics.ObserveEntity(s.deps.ConnectionID, string(s.kind), result.Written, result.Fetched-result.Changed)
	s.log.WithFields(logrus.Fields{
		"mode":    mode,
		"fetched": result.Fetched,
		"changed": result.Changed,
		"written": result.Written,
	}).Debugf("✅ %s synced", s.kind)
	return result, nil
}

func (s *entitySyncer[T]) run(ctx context.Context, mode SyncMode) (*EntityResult, error) {
	result := &EntityResult{Entity: s.kind, Mode: mode}

	opts := connector.ListOptions{Page: 1, PageSize: s.pageSize}
	var rows []T
	if mode == ModeIncremental {
		opts.Ordering = s.ordering
		page, err := s.list(ctx, opts)
		if err != nil {
			return result, err
		}
		rows = page.Results
		result.Total = page.Count
		result.LastPage = 1
	} else {
		collected, err := connector.ListAll(ctx, s.list, opts, s.maxPages)
		if err != nil {
			return result, err
		}
		rows = collected.Results
		result.Total = collected.Count
		result.LastPage = collected.LastPage
		result.Truncated = collected.Truncated
		if collected.Truncated {
			s.log.Warnf("⚠️ %s stopped at %d pages, upstream has more", s.kind, collected.LastPage)
		}
	}
	if result.Total == 0 {
		result.Total = len(rows)
	}
	result.Fetched = len(rows)

	for _, row := range rows {
		meta := row.Meta()
		meta.OrganizationID = s.deps.OrganizationID
		meta.ConnectionID = s.deps.ConnectionID
		sum, err := Fingerprint(row, s.fields)
		if err != nil {
			return result, fmt.Errorf("fingerprint %s: %w", meta.ExternalID, err)
		}
		meta.Checksum = sum
	}

	changed := rows
	if mode == ModeIncremental && len(rows) > 0 {
		var err error
		if changed, err = s.changedOnly(ctx, rows); err != nil {
			return result, err
		}
	}
	result.Changed = len(changed)

	written, err := Upsert(ctx, s.deps.Writer, changed)
	if written != nil {
		result.Written = written.Written
	}
	return result, err
}

// changedOnly drops rows whose stored checksum equals the fresh one
func (s *entitySyncer[T]) changedOnly(ctx context.Context, rows []T) ([]T, error) {
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.Meta().ExternalID
	}
	stored, err := s.deps.Writer.ExistingChecksums(ctx, s.table, s.deps.ConnectionID, ids)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(rows))
	for _, row := range rows {
		meta := row.Meta()
		if sum, ok := stored[meta.ExternalID]; ok && sum == meta.Checksum {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *entitySyncer[T]) fail(ctx context.Context, syncErr error) {
	s.deps.Metrics.EntityFailed(s.deps.ConnectionID, string(s.kind))
	s.log.WithError(syncErr).Errorf("❌ %s sync failed", s.kind)

	retries := 0
	var counted interface{ Attempts() int }
	if errors.As(syncErr, &counted) && counted.Attempts() > 0 {
		retries = counted.Attempts() - 1
	}

	// a cancelled run must still leave a trace
	ctx = context.WithoutCancel(ctx)
	failed := StatusError
	if err := s.deps.State.SetEntityState(ctx, s.kind, EntityStateUpdate{Status: &failed}); err != nil {
		s.log.WithError(err).Error("failed to mark entity error")
	}
	if err := s.deps.State.AppendError(ctx, s.kind, syncErr, retries); err != nil {
		s.log.WithError(err).Error("failed to record sync error")
	}
}
