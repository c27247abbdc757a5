package sync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/datalake/internal/config"
	"github.com/xelth-com/datalake/internal/connector"
	"github.com/xelth-com/datalake/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	testOrg  = "org-1"
	testConn = "conn-1"
)

// fakeConnector serves in-memory collections and counts calls per kind
type fakeConnector struct {
	mu         sync.Mutex
	transports []models.Transport
	companies  []models.Company
	vehicles   []models.Vehicle
	drivers    []models.Driver
	failures   map[EntityKind]error
	panics     map[EntityKind]bool
	calls      map[EntityKind]int
	apiCalls   atomic.Int64

	// when set, ListTransports signals entered and waits for block
	block   chan struct{}
	entered chan struct{}
}

func newFakeConnector(transports int) *fakeConnector {
	f := &fakeConnector{
		failures: map[EntityKind]error{},
		panics:   map[EntityKind]bool{},
		calls:    map[EntityKind]int{},
	}
	updated := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < transports; i++ {
		f.transports = append(f.transports, models.Transport{
			MirrorMeta:        models.MirrorMeta{ExternalID: fmt.Sprintf("t-%d", i), RawPayload: datatypes.JSON(`{"uid":"x"}`)},
			SequentialID:      fmt.Sprintf("%d", 1000+i),
			Status:            models.TransportPending,
			UpstreamUpdatedAt: &updated,
		})
	}
	for i := 0; i < 3; i++ {
		f.companies = append(f.companies, models.Company{
			MirrorMeta: models.MirrorMeta{ExternalID: fmt.Sprintf("c-%d", i)},
			Name:       fmt.Sprintf("Company %d", i),
			IsCarrier:  i%2 == 0,
		})
	}
	f.vehicles = []models.Vehicle{{MirrorMeta: models.MirrorMeta{ExternalID: "v-1"}, LicensePlate: "AB-123-CD", Type: "truck"}}
	f.drivers = []models.Driver{{MirrorMeta: models.MirrorMeta{ExternalID: "d-1"}, FirstName: "Ana", LastName: "Lopez", IsActive: true}}
	return f
}

func (f *fakeConnector) call(kind EntityKind) error {
	f.mu.Lock()
	f.calls[kind]++
	err := f.failures[kind]
	panics := f.panics[kind]
	f.mu.Unlock()

	f.apiCalls.Add(1)
	if panics {
		panic(fmt.Sprintf("%s exploded", kind))
	}
	return err
}

func (f *fakeConnector) callCount(kind EntityKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kind]
}

func (f *fakeConnector) setStatus(i int, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transports[i].Status = status
}

func paginate[T any](f *fakeConnector, items []T, opts connector.ListOptions) *connector.Page[*T] {
	f.mu.Lock()
	defer f.mu.Unlock()

	size := opts.PageSize
	if size <= 0 {
		size = len(items)
	}
	page := opts.Page
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * size
	if start > len(items) {
		start = len(items)
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}

	out := &connector.Page[*T]{Count: len(items), HasMore: end < len(items)}
	for _, it := range items[start:end] {
		c := it
		out.Results = append(out.Results, &c)
	}
	return out
}

func (f *fakeConnector) Name() string    { return "fake" }
func (f *fakeConnector) APICalls() int64 { return f.apiCalls.Load() }

func (f *fakeConnector) GetCounters(ctx context.Context) (*models.Counter, error) {
	if err := f.call(EntityCounters); err != nil {
		return nil, err
	}
	return &models.Counter{
		MirrorMeta: models.MirrorMeta{ExternalID: models.CounterExternalID},
		Counters:   datatypes.JSONMap{"transports": map[string]interface{}{"total": len(f.transports)}},
	}, nil
}

func (f *fakeConnector) ListTransports(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Transport], error) {
	if err := f.call(EntityTransports); err != nil {
		return nil, err
	}
	if f.block != nil {
		f.entered <- struct{}{}
		<-f.block
	}
	return paginate(f, f.transports, opts), nil
}

func (f *fakeConnector) ListCompanies(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Company], error) {
	if err := f.call(EntityCompanies); err != nil {
		return nil, err
	}
	return paginate(f, f.companies, opts), nil
}

func (f *fakeConnector) ListVehicles(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Vehicle], error) {
	if err := f.call(EntityVehicles); err != nil {
		return nil, err
	}
	return paginate(f, f.vehicles, opts), nil
}

func (f *fakeConnector) ListTrailers(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Trailer], error) {
	if err := f.call(EntityTrailers); err != nil {
		return nil, err
	}
	return &connector.Page[*models.Trailer]{}, nil
}

func (f *fakeConnector) ListDrivers(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Driver], error) {
	if err := f.call(EntityDrivers); err != nil {
		return nil, err
	}
	return paginate(f, f.drivers, opts), nil
}

func (f *fakeConnector) ListContacts(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Contact], error) {
	if err := f.call(EntityContacts); err != nil {
		return nil, err
	}
	return &connector.Page[*models.Contact]{}, nil
}

func (f *fakeConnector) ListInvoices(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Invoice], error) {
	if err := f.call(EntityInvoices); err != nil {
		return nil, err
	}
	return &connector.Page[*models.Invoice]{}, nil
}

func (f *fakeConnector) ListAddresses(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Address], error) {
	if err := f.call(EntityAddresses); err != nil {
		return nil, err
	}
	return &connector.Page[*models.Address]{}, nil
}

// attemptsError mimics a connector error that went through retries
type attemptsError struct{ attempts int }

func (e *attemptsError) Error() string { return fmt.Sprintf("upstream unavailable after %d attempts", e.attempts) }
func (e *attemptsError) Attempts() int { return e.attempts }

// recorder collects published events
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func testSyncConfig() *config.SyncConfig {
	return &config.SyncConfig{
		IncrementalInterval:    time.Hour,
		PeriodicInterval:       time.Hour,
		FullInterval:           time.Hour,
		EnableIncremental:      true,
		FreshnessThreshold:     time.Hour,
		SkipInitialSyncIfFresh: true,
		TransportPageSize:      50,
		CompanyPageSize:        50,
		DefaultPageSize:        50,
		MaxPages:               10,
		BatchSize:              20,
		MaxErrors:              DefaultMaxErrors,
	}
}

func newTestOrchestrator(t *testing.T, db *gorm.DB, conn connector.Connector) (*Orchestrator, *recorder) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	cfg := testSyncConfig()

	state := NewStateStore(db, testOrg, testConn, cfg.MaxErrors)
	syncers := NewSyncers(conn, SyncerDeps{
		OrganizationID: testOrg,
		ConnectionID:   testConn,
		Config:         cfg,
		Writer:         NewBulkWriter(db, cfg.BatchSize),
		State:          state,
		Logger:         logger,
	})

	events := &recorder{}
	o, err := NewOrchestrator(Options{
		OrganizationID: testOrg,
		ConnectionID:   testConn,
		Config:         cfg,
		Connector:      conn,
		Syncers:        syncers,
		State:          state,
		Publisher:      events,
		Logger:         logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { <-o.Stop().Done() })
	return o, events
}
