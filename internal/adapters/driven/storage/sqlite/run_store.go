package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driven"
)

// runStore implements driven.RunStore.
type runStore struct {
	store *Store
}

var _ driven.RunStore = (*runStore)(nil)

// SaveRun stores or replaces a run.
func (s *runStore) SaveRun(ctx context.Context, run *domain.PipelineRun) error {
	if run == nil || run.ID == "" {
		return domain.ErrInvalidInput
	}
	jobs, err := json.Marshal(nonNil(run.Jobs))
	if err != nil {
		return fmt.Errorf("marshalling jobs: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, ended_at, status, jobs)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			started_at = excluded.started_at,
			ended_at = excluded.ended_at,
			status = excluded.status,
			jobs = excluded.jobs
	`, run.ID, toNanos(run.StartedAt), toNanos(run.EndedAt), string(run.Status), string(jobs))
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *runStore) GetRun(ctx context.Context, id string) (*domain.PipelineRun, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, started_at, ended_at, status, jobs FROM runs WHERE id = ?
	`, id)
	return scanRun(row)
}

// ListRuns returns runs newest first. A limit of zero returns all runs.
func (s *runStore) ListRuns(ctx context.Context, limit int) ([]domain.PipelineRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, started_at, ended_at, status, jobs
		FROM runs
		ORDER BY started_at DESC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.PipelineRun //nolint:prealloc // size unknown from query
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// PruneRuns keeps only the most recent keep runs.
func (s *runStore) PruneRuns(ctx context.Context, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM runs
		WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, id ASC LIMIT ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("pruning runs: %w", err)
	}
	return nil
}

// scheduleStore implements driven.ScheduleStore.
type scheduleStore struct {
	store *Store
}

var _ driven.ScheduleStore = (*scheduleStore)(nil)

// GetSchedule returns the schedule for a source, or domain.ErrNotFound.
func (s *scheduleStore) GetSchedule(ctx context.Context, sourceID string) (*domain.SourceSchedule, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT source_id, last_run, last_success, last_error
		FROM source_schedules WHERE source_id = ?
	`, sourceID)
	return scanSchedule(row)
}

// SaveSchedule creates or replaces a source schedule.
func (s *scheduleStore) SaveSchedule(ctx context.Context, schedule *domain.SourceSchedule) error {
	if schedule == nil || schedule.SourceID == "" {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO source_schedules (source_id, last_run, last_success, last_error)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			last_run = excluded.last_run,
			last_success = excluded.last_success,
			last_error = excluded.last_error
	`, schedule.SourceID, toNanos(schedule.LastRun), toNanos(schedule.LastSuccess), nullString(schedule.LastError))
	if err != nil {
		return fmt.Errorf("saving schedule: %w", err)
	}
	return nil
}

// ListSchedules returns all stored schedules ordered by source ID.
func (s *scheduleStore) ListSchedules(ctx context.Context) ([]domain.SourceSchedule, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT source_id, last_run, last_success, last_error
		FROM source_schedules ORDER BY source_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying schedules: %w", err)
	}
	defer rows.Close()

	var schedules []domain.SourceSchedule //nolint:prealloc // size unknown from query
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *sch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schedules: %w", err)
	}
	return schedules, nil
}

// ==================== Helper Functions ====================

// scanRun scans a single run row.
func scanRun(row rowScanner) (*domain.PipelineRun, error) {
	var run domain.PipelineRun
	var started, ended int64
	var status, jobs string

	if err := row.Scan(&run.ID, &started, &ended, &status, &jobs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	run.StartedAt = fromNanos(started)
	run.EndedAt = fromNanos(ended)
	run.Status = domain.RunStatus(status)
	if err := unmarshalList(jobs, &run.Jobs); err != nil {
		return nil, fmt.Errorf("unmarshalling jobs: %w", err)
	}
	return &run, nil
}

// scanSchedule scans a single schedule row.
func scanSchedule(row rowScanner) (*domain.SourceSchedule, error) {
	var sch domain.SourceSchedule
	var lastRun, lastSuccess int64
	var lastError sql.NullString

	if err := row.Scan(&sch.SourceID, &lastRun, &lastSuccess, &lastError); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning schedule: %w", err)
	}

	sch.LastRun = fromNanos(lastRun)
	sch.LastSuccess = fromNanos(lastSuccess)
	if lastError.Valid {
		sch.LastError = lastError.String
	}
	return &sch, nil
}
