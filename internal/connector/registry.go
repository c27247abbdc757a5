package connector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/xelth-com/datalake/internal/config"
	"github.com/xelth-com/datalake/internal/metrics"
)

// Deps are the shared collaborators handed to every connector factory
type Deps struct {
	Sync    *config.SyncConfig
	Logger  logrus.FieldLogger
	Metrics *metrics.Collector
}

// Factory builds a connector for one configured connection
type Factory func(conn config.ConnectionConfig, deps Deps) (Connector, error)

// Registry maps connection types to connector factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty factory registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register registers a factory for a connection type
func (r *Registry) Register(kind string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if kind == "" {
		return fmt.Errorf("connector type cannot be empty")
	}
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("connector %s is already registered", kind)
	}

	r.factories[kind] = factory
	return nil
}

// Build instantiates the connector configured for conn
func (r *Registry) Build(conn config.ConnectionConfig, deps Deps) (Connector, error) {
	r.mu.RLock()
	factory, exists := r.factories[conn.Type]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("connector %s not found", conn.Type)
	}
	return factory(conn, deps)
}

// Types returns the registered connection types, sorted
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		types = append(types, kind)
	}
	sort.Strings(types)
	return types
}

// Has checks if a connection type is registered
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.factories[kind]
	return exists
}
