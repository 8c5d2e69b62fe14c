package domain

import (
	"fmt"
	"strings"
	"time"
)

// RunStatus is the state of a pipeline run.
type RunStatus string

const (
	// RunPending is a run that has been created but not started.
	RunPending RunStatus = "PENDING"

	// RunRunning is a run in progress.
	RunRunning RunStatus = "RUNNING"

	// RunSuccess means every job succeeded.
	RunSuccess RunStatus = "SUCCESS"

	// RunPartial means at least one job succeeded and at least one failed.
	RunPartial RunStatus = "PARTIAL"

	// RunFailed means every job failed.
	RunFailed RunStatus = "FAILED"
)

// IsTerminal reports whether the run has finished.
func (s RunStatus) IsTerminal() bool {
	return s == RunSuccess || s == RunPartial || s == RunFailed
}

// JobStatus is the outcome of one source's job.
type JobStatus string

const (
	// JobSuccess means the source was collected and processed.
	JobSuccess JobStatus = "SUCCESS"

	// JobFailed means the job could not complete.
	JobFailed JobStatus = "FAILED"
)

// JobResult is the outcome record of one source's processing within a run.
type JobResult struct {
	SourceID string
	Status   JobStatus

	EventsCreated   int
	EventsUpdated   int
	EventsUnchanged int
	AlertsGenerated int

	// RecordErrors counts raw records skipped by the adapter.
	RecordErrors int

	// StoreErrors counts events whose save failed.
	StoreErrors int

	// AlertErrors counts saved events whose alerts could not be recorded.
	// Those events are re-evaluated on the next run.
	AlertErrors int

	// Errors holds per-record and per-event error messages.
	Errors []string

	// Error is the job-level failure, empty on success.
	Error string

	// Attempts is the number of collection attempts made.
	Attempts int

	StartedAt time.Time
	EndedAt   time.Time
}

// Succeeded reports whether the job completed.
func (j *JobResult) Succeeded() bool {
	return j.Status == JobSuccess
}

// ErrorCount returns the number of record, store and alert errors.
func (j *JobResult) ErrorCount() int {
	return j.RecordErrors + j.StoreErrors + j.AlertErrors
}

// PipelineRun is the aggregate record of one orchestrator invocation.
type PipelineRun struct {
	ID        string
	StartedAt time.Time
	EndedAt   time.Time
	Status    RunStatus
	Jobs      []JobResult
}

// ComputeRunStatus derives the run status from its job results.
// A run with no jobs is a success: nothing was due and nothing failed.
func ComputeRunStatus(jobs []JobResult) RunStatus {
	var ok, failed int
	for i := range jobs {
		if jobs[i].Succeeded() {
			ok++
		} else {
			failed++
		}
	}
	switch {
	case failed == 0:
		return RunSuccess
	case ok == 0:
		return RunFailed
	default:
		return RunPartial
	}
}

// Totals sums the counters over all jobs.
func (r *PipelineRun) Totals() JobResult {
	var t JobResult
	for i := range r.Jobs {
		j := &r.Jobs[i]
		t.EventsCreated += j.EventsCreated
		t.EventsUpdated += j.EventsUpdated
		t.EventsUnchanged += j.EventsUnchanged
		t.AlertsGenerated += j.AlertsGenerated
		t.RecordErrors += j.RecordErrors
		t.StoreErrors += j.StoreErrors
		t.AlertErrors += j.AlertErrors
	}
	return t
}

// FailedJobs returns the number of failed jobs.
func (r *PipelineRun) FailedJobs() int {
	n := 0
	for i := range r.Jobs {
		if !r.Jobs[i].Succeeded() {
			n++
		}
	}
	return n
}

// RetryPolicy bounds collection retries. Attempts is the total number of
// tries; Backoff[i] is the wait after failed attempt i+1. When Backoff is
// shorter than Attempts-1 its last entry repeats.
type RetryPolicy struct {
	Attempts int
	Backoff  []time.Duration
}

// Delay returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if len(p.Backoff) == 0 || attempt < 1 {
		return 0
	}
	if attempt > len(p.Backoff) {
		return p.Backoff[len(p.Backoff)-1]
	}
	return p.Backoff[attempt-1]
}

// MaxAttempts returns Attempts, at least 1.
func (p RetryPolicy) MaxAttempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

// WhatsNewPolicy decides which events appear in "what's new" results.
type WhatsNewPolicy string

const (
	// WhatsNewFirstSeen lists only events first stored within the window.
	WhatsNewFirstSeen WhatsNewPolicy = "first_seen"

	// WhatsNewAnyChange also lists events whose content changed within the window.
	WhatsNewAnyChange WhatsNewPolicy = "any_change"
)

// ParseWhatsNewPolicy converts a configuration string to a policy.
// Empty selects WhatsNewFirstSeen.
func ParseWhatsNewPolicy(s string) (WhatsNewPolicy, error) {
	switch p := WhatsNewPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return WhatsNewFirstSeen, nil
	case WhatsNewFirstSeen, WhatsNewAnyChange:
		return p, nil
	default:
		return "", fmt.Errorf("%w: whats-new policy %q", ErrInvalidInput, s)
	}
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	// Concurrency is the maximum number of source jobs running at once.
	Concurrency int

	// CollectTimeout bounds each collection attempt.
	CollectTimeout time.Duration

	// Retry bounds collection retries.
	Retry RetryPolicy

	// AnalysisMinSeverity selects events for the deep-analysis hook.
	// Empty disables the hook.
	AnalysisMinSeverity Severity

	// AnalysisTimeout bounds each deep-analysis call.
	AnalysisTimeout time.Duration

	// KeepRuns is how many runs the run store retains. Zero keeps all.
	KeepRuns int
}

// DefaultPipelineConfig returns sensible defaults for the orchestrator.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Concurrency:    1,
		CollectTimeout: 30 * time.Second,
		Retry: RetryPolicy{
			Attempts: 3,
			Backoff:  []time.Duration{2 * time.Second, 10 * time.Second},
		},
		AnalysisMinSeverity: SeverityWarning,
		AnalysisTimeout:     10 * time.Second,
		KeepRuns:            100,
	}
}
