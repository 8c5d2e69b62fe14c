package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

// EventService answers queries over stored events.
type EventService interface {
	// Get retrieves an event by ID.
	Get(ctx context.Context, id string) (*domain.CivicEvent, error)

	// Query returns events matching an arbitrary filter.
	Query(ctx context.Context, query domain.EventQuery) ([]domain.CivicEvent, error)

	// WhatsNew returns events that are new within the window, according
	// to the configured policy.
	WhatsNew(ctx context.Context, window time.Duration) ([]domain.CivicEvent, error)

	// Upcoming returns future meetings and notices.
	Upcoming(ctx context.Context) ([]domain.CivicEvent, error)

	// ByEntity returns events mentioning an entity whose name contains name.
	ByEntity(ctx context.Context, name string) ([]domain.CivicEvent, error)

	// ByRegion returns events in a region.
	ByRegion(ctx context.Context, region string) ([]domain.CivicEvent, error)
}

// AlertService answers queries over stored alerts.
type AlertService interface {
	List(ctx context.Context, query domain.AlertQuery) ([]domain.Alert, error)
}
