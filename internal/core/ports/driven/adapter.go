package driven

import (
	"context"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

// Adapter transforms one source schema's raw records into civic events.
// Normalise must be pure: identical input yields identical events,
// including content hash and raw payload.
type Adapter interface {
	// SourceType returns the schema this adapter handles.
	SourceType() domain.SourceType

	// Normalise converts records. Malformed records are skipped and
	// reported in the result; they never abort the batch.
	Normalise(ctx context.Context, source *domain.Source, records []domain.RawRecord) *NormaliseResult
}

// NormaliseResult contains the output of normalisation.
type NormaliseResult struct {
	// Events are the well-formed events in record order.
	Events []domain.CivicEvent

	// Errors describe skipped records.
	Errors []*domain.AdapterError
}

// AdapterRegistry selects the adapter for a source type.
type AdapterRegistry interface {
	// Register adds an adapter. Registering a type twice replaces it.
	Register(adapter Adapter)

	// Get returns the adapter for the type, or an error wrapping
	// domain.ErrUnsupportedType.
	Get(sourceType domain.SourceType) (Adapter, error)

	// Types returns the registered source types in stable order.
	Types() []domain.SourceType
}
