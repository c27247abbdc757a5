package sync

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Manager holds the orchestrators of every configured connection
type Manager struct {
	mu            sync.RWMutex
	orchestrators map[string]*Orchestrator
	order         []string
}

// NewManager creates an empty manager
func NewManager() *Manager {
	return &Manager{orchestrators: make(map[string]*Orchestrator)}
}

// Add registers an orchestrator under its connection id
func (m *Manager) Add(o *Orchestrator) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orchestrators[o.ConnectionID()]; exists {
		return fmt.Errorf("connection %s already registered", o.ConnectionID())
	}
	m.orchestrators[o.ConnectionID()] = o
	m.order = append(m.order, o.ConnectionID())
	return nil
}

// Get returns the orchestrator of a connection
func (m *Manager) Get(connectionID string) (*Orchestrator, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orchestrators[connectionID]
	return o, ok
}

// List returns every orchestrator in registration order
func (m *Manager) List() []*Orchestrator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Orchestrator, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.orchestrators[id])
	}
	return out
}

// StartAll starts every orchestrator in turn. A connection that fails to
// start does not prevent the others from starting.
func (m *Manager) StartAll(ctx context.Context) error {
	var errs *multierror.Error
	for _, o := range m.List() {
		if err := o.Start(ctx); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("start %s: %w", o.ConnectionID(), err))
		}
	}
	return errs.ErrorOrNil()
}

// StopAll stops every orchestrator; the returned context is done when all
// of them have drained
func (m *Manager) StopAll() context.Context {
	orchestrators := m.List()
	done, finish := context.WithCancel(context.Background())

	stopped := make([]context.Context, 0, len(orchestrators))
	for _, o := range orchestrators {
		stopped = append(stopped, o.Stop())
	}
	go func() {
		for _, c := range stopped {
			<-c.Done()
		}
		finish()
	}()
	return done
}

// CloseAll cancels in-flight runs of every orchestrator
func (m *Manager) CloseAll() {
	for _, o := range m.List() {
		o.Close()
	}
}
