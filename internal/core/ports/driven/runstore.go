package driven

import (
	"context"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

// RunStore persists pipeline run summaries.
type RunStore interface {
	// SaveRun stores or replaces a run and its job results.
	SaveRun(ctx context.Context, run *domain.PipelineRun) error

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, id string) (*domain.PipelineRun, error)

	// ListRuns returns the most recent runs first. Zero limit means all.
	ListRuns(ctx context.Context, limit int) ([]domain.PipelineRun, error)

	// PruneRuns deletes all but the most recent keep runs.
	PruneRuns(ctx context.Context, keep int) error
}

// ScheduleStore tracks when each source last ran.
type ScheduleStore interface {
	// GetSchedule returns the schedule for a source, or domain.ErrNotFound.
	GetSchedule(ctx context.Context, sourceID string) (*domain.SourceSchedule, error)

	// SaveSchedule stores or replaces a source schedule.
	SaveSchedule(ctx context.Context, schedule *domain.SourceSchedule) error

	// ListSchedules returns all schedules.
	ListSchedules(ctx context.Context) ([]domain.SourceSchedule, error)
}
