package services

import (
	"context"
	"errors"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driven"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driving"
)

// Ensure RunService implements the interface.
var _ driving.RunService = (*RunService)(nil)

// RunService exposes run history and source schedules.
type RunService struct {
	runs      driven.RunStore
	schedules driven.ScheduleStore
	sources   []domain.Source
}

// NewRunService creates a run service for the configured sources.
func NewRunService(runs driven.RunStore, schedules driven.ScheduleStore, sources []domain.Source) *RunService {
	return &RunService{runs: runs, schedules: schedules, sources: sources}
}

// ListRuns returns the most recent runs first.
func (s *RunService) ListRuns(ctx context.Context, limit int) ([]domain.PipelineRun, error) {
	return s.runs.ListRuns(ctx, limit)
}

// GetRun retrieves a run by ID.
func (s *RunService) GetRun(ctx context.Context, id string) (*domain.PipelineRun, error) {
	return s.runs.GetRun(ctx, id)
}

// Schedules returns one entry per configured source. Sources that never
// ran get an empty schedule.
func (s *RunService) Schedules(ctx context.Context) ([]domain.SourceSchedule, error) {
	out := make([]domain.SourceSchedule, 0, len(s.sources))
	for i := range s.sources {
		sch, err := s.schedules.GetSchedule(ctx, s.sources[i].ID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			out = append(out, domain.SourceSchedule{SourceID: s.sources[i].ID})
		case err != nil:
			return nil, err
		default:
			out = append(out, *sch)
		}
	}
	return out, nil
}
