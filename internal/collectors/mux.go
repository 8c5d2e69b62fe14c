package collectors

import (
	"context"
	"fmt"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driven"
)

// Ensure Mux implements the interface.
var _ driven.Collector = (*Mux)(nil)

// Mux dispatches Collect to the collector registered for the source's kind.
type Mux struct {
	collectors map[domain.CollectorKind]driven.Collector
}

// NewMux creates an empty mux.
func NewMux() *Mux {
	return &Mux{collectors: make(map[domain.CollectorKind]driven.Collector)}
}

// Register adds or replaces the collector for kind.
func (m *Mux) Register(kind domain.CollectorKind, c driven.Collector) {
	m.collectors[kind] = c
}

// Collect implements driven.Collector.
func (m *Mux) Collect(ctx context.Context, source *domain.Source) ([]domain.RawRecord, error) {
	c, ok := m.collectors[source.Collector.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: collector %q", domain.ErrUnsupportedType, source.Collector.Kind)
	}
	return c.Collect(ctx, source)
}
