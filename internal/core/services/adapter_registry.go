package services

import (
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driven"
)

// Ensure AdapterRegistry implements the interface.
var _ driven.AdapterRegistry = (*AdapterRegistry)(nil)

// AdapterRegistry maps source types to their adapters.
// Only types in the closed domain.SourceType set can be registered.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[domain.SourceType]driven.Adapter
}

// NewAdapterRegistry creates a registry holding the given adapters.
func NewAdapterRegistry(adapters ...driven.Adapter) *AdapterRegistry {
	r := &AdapterRegistry{adapters: make(map[domain.SourceType]driven.Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds an adapter. Adapters for unknown source types are ignored.
func (r *AdapterRegistry) Register(adapter driven.Adapter) {
	if adapter == nil || !adapter.SourceType().IsValid() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.SourceType()] = adapter
}

// Get returns the adapter for a source type.
func (r *AdapterRegistry) Get(sourceType domain.SourceType) (driven.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[sourceType]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for source type %q", domain.ErrUnsupportedType, sourceType)
	}
	return a, nil
}

// Types returns the registered source types sorted by name.
func (r *AdapterRegistry) Types() []domain.SourceType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]domain.SourceType, 0, len(r.adapters))
	for t := range r.adapters {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// CheckSources verifies that every source has a registered adapter.
// Called once at configuration load so a missing adapter fails fast
// instead of surfacing as a job failure.
func (r *AdapterRegistry) CheckSources(sources []domain.Source) error {
	for i := range sources {
		if _, err := r.Get(sources[i].Type); err != nil {
			return fmt.Errorf("source %s: %w", sources[i].ID, err)
		}
	}
	return nil
}
