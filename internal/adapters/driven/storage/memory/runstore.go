package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driven"
)

// Ensure RunStore and ScheduleStore implement the interfaces.
var (
	_ driven.RunStore      = (*RunStore)(nil)
	_ driven.ScheduleStore = (*ScheduleStore)(nil)
)

// RunStore is an in-memory implementation of driven.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]domain.PipelineRun
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]domain.PipelineRun)}
}

// SaveRun stores or replaces a run.
func (s *RunStore) SaveRun(_ context.Context, run *domain.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// GetRun retrieves a run by ID.
func (s *RunStore) GetRun(_ context.Context, id string) (*domain.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneRun(&run)
	return &out, nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(_ context.Context, limit int) ([]domain.PipelineRun, error) {
	s.mu.RLock()
	out := make([]domain.PipelineRun, 0, len(s.runs))
	for id := range s.runs {
		run := s.runs[id]
		out = append(out, cloneRun(&run))
	}
	s.mu.RUnlock()

	sortRuns(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PruneRuns keeps only the most recent keep runs.
func (s *RunStore) PruneRuns(ctx context.Context, keep int) error {
	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		return err
	}
	if keep <= 0 || len(runs) <= keep {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, run := range runs[keep:] {
		delete(s.runs, run.ID)
	}
	return nil
}

func sortRuns(runs []domain.PipelineRun) {
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}

func cloneRun(run *domain.PipelineRun) domain.PipelineRun {
	out := *run
	out.Jobs = make([]domain.JobResult, len(run.Jobs))
	for i := range run.Jobs {
		out.Jobs[i] = run.Jobs[i]
		out.Jobs[i].Errors = append([]string(nil), run.Jobs[i].Errors...)
	}
	return out
}

// ScheduleStore is an in-memory implementation of driven.ScheduleStore.
type ScheduleStore struct {
	mu        sync.RWMutex
	schedules map[string]domain.SourceSchedule
}

// NewScheduleStore creates a new in-memory schedule store.
func NewScheduleStore() *ScheduleStore {
	return &ScheduleStore{schedules: make(map[string]domain.SourceSchedule)}
}

// GetSchedule returns the schedule for a source.
func (s *ScheduleStore) GetSchedule(_ context.Context, sourceID string) (*domain.SourceSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sch, ok := s.schedules[sourceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &sch, nil
}

// SaveSchedule stores or replaces a schedule.
func (s *ScheduleStore) SaveSchedule(_ context.Context, schedule *domain.SourceSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[schedule.SourceID] = *schedule
	return nil
}

// ListSchedules returns all schedules sorted by source ID.
func (s *ScheduleStore) ListSchedules(_ context.Context) ([]domain.SourceSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SourceSchedule, 0, len(s.schedules))
	for _, sch := range s.schedules {
		out = append(out, sch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out, nil
}
