package driving

import (
	"context"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

// RunService exposes run history and source schedules.
type RunService interface {
	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]domain.PipelineRun, error)

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, id string) (*domain.PipelineRun, error)

	// Schedules returns the last-run state of every configured source,
	// in configuration order.
	Schedules(ctx context.Context) ([]domain.SourceSchedule, error)
}
