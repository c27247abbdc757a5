package testutil

import (
	"context"
	"sync"

	"github.com/xelth-com/datalake/internal/connector"
	"github.com/xelth-com/datalake/internal/models"
)

// StubConnector serves a fixed single page per collection. When Block is
// set, ListTransports signals Entered and waits for Block to close.
type StubConnector struct {
	Transports []*models.Transport
	Companies  []*models.Company

	Block   chan struct{}
	Entered chan struct{}

	mu    sync.Mutex
	calls int64
}

// NewStubConnector returns a connector with one pending transport (t-1,
// sequential id T-001) and one carrier company (c-1)
func NewStubConnector() *StubConnector {
	return &StubConnector{
		Transports: []*models.Transport{{
			MirrorMeta:   models.MirrorMeta{ExternalID: "t-1"},
			SequentialID: "T-001",
			Status:       models.TransportPending,
		}},
		Companies: []*models.Company{{
			MirrorMeta: models.MirrorMeta{ExternalID: "c-1"},
			Name:       "Rapid Freight",
			IsCarrier:  true,
		}},
	}
}

var _ connector.Connector = (*StubConnector)(nil)

func page[T any](items []T) *connector.Page[T] {
	return &connector.Page[T]{Results: items, Count: len(items)}
}

func (s *StubConnector) tick() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *StubConnector) Name() string { return "stub" }

func (s *StubConnector) APICalls() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *StubConnector) GetCounters(ctx context.Context) (*models.Counter, error) {
	s.tick()
	return &models.Counter{MirrorMeta: models.MirrorMeta{ExternalID: models.CounterExternalID}}, nil
}

func (s *StubConnector) ListTransports(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Transport], error) {
	s.tick()
	if s.Block != nil {
		s.Entered <- struct{}{}
		select {
		case <-s.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return page(s.Transports), nil
}

func (s *StubConnector) ListCompanies(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Company], error) {
	s.tick()
	return page(s.Companies), nil
}

func (s *StubConnector) ListVehicles(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Vehicle], error) {
	s.tick()
	return page[*models.Vehicle](nil), nil
}

func (s *StubConnector) ListTrailers(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Trailer], error) {
	s.tick()
	return page[*models.Trailer](nil), nil
}

func (s *StubConnector) ListDrivers(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Driver], error) {
	s.tick()
	return page[*models.Driver](nil), nil
}

func (s *StubConnector) ListContacts(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Contact], error) {
	s.tick()
	return page[*models.Contact](nil), nil
}

func (s *StubConnector) ListInvoices(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Invoice], error) {
	s.tick()
	return page[*models.Invoice](nil), nil
}

func (s *StubConnector) ListAddresses(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Address], error) {
	s.tick()
	return page[*models.Address](nil), nil
}
