package driven

import (
	"context"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

// Replicator copies stored events to a secondary store.
// Replication is best effort and never affects the primary save.
type Replicator interface {
	// Name identifies the target in logs and metrics.
	Name() string

	// Replicate upserts the event by ID.
	Replicate(ctx context.Context, event *domain.CivicEvent) error
}
