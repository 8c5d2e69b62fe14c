package driven

import (
	"context"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

// Collector fetches raw records for a source.
// Collectors own transport concerns (files, HTTP, throttling) and know
// nothing about record schemas.
type Collector interface {
	// Collect returns the source's current records in collection order.
	// Transient failures should wrap domain.ErrSourceUnavailable or
	// domain.ErrRateLimited so the orchestrator can retry them.
	Collect(ctx context.Context, source *domain.Source) ([]domain.RawRecord, error)
}
