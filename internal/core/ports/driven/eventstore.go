package driven

import (
	"context"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

// EventStore persists civic events and classifies each save.
type EventStore interface {
	// Save stores the event keyed on its natural key and reports whether it
	// was new, updated or unchanged. On return the event carries its stored
	// ID and ingestion metadata. Failures are *domain.StoreError.
	Save(ctx context.Context, event *domain.CivicEvent) (domain.SaveOutcome, error)

	// Get retrieves an event by ID.
	Get(ctx context.Context, id string) (*domain.CivicEvent, error)

	// GetByNaturalKey retrieves an event by natural key.
	GetByNaturalKey(ctx context.Context, naturalKey string) (*domain.CivicEvent, error)

	// Query returns events matching the filter, newest first.
	Query(ctx context.Context, query domain.EventQuery) ([]domain.CivicEvent, error)

	// MarkEvaluated records that alerts for the event's content hash are
	// stored. A hash the event no longer carries is ignored.
	MarkEvaluated(ctx context.Context, id, contentHash string) error
}

// AlertStore persists alerts. Alerts are never updated or deleted.
type AlertStore interface {
	// SaveAlerts inserts alerts, ignoring any whose (rule, event, event hash)
	// already exists. Returns the number actually inserted.
	SaveAlerts(ctx context.Context, alerts []domain.Alert) (int, error)

	// ListAlerts returns alerts matching the filter, newest first.
	ListAlerts(ctx context.Context, query domain.AlertQuery) ([]domain.Alert, error)
}
