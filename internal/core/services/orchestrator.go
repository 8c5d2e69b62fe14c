package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driven"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driving"
	"github.com/custodia-labs/civicwatch/internal/logger"
)

// Ensure Orchestrator implements the interface.
var _ driving.Orchestrator = (*Orchestrator)(nil)

// OrchestratorDeps are the collaborators of an Orchestrator.
// Analyzer and Metrics are optional.
type OrchestratorDeps struct {
	Sources   []domain.Source
	Collector driven.Collector
	Adapters  driven.AdapterRegistry
	Events    driven.EventStore
	Alerts    driven.AlertStore
	Rules     driving.RulesEngine
	Runs      driven.RunStore
	Schedules driven.ScheduleStore
	Analyzer  driven.DeepAnalyzer
	Metrics   driven.PipelineMetrics
}

// Orchestrator sequences per-source collection jobs and aggregates their
// results into a PipelineRun. A failure in one source's job never stops
// other jobs.
type Orchestrator struct {
	deps   OrchestratorDeps
	config domain.PipelineConfig

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string

	running atomic.Bool
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithClock sets the clock used for run and job timestamps.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// WithSleep replaces the backoff wait between collection attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) OrchestratorOption {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// WithRunIDs sets the run ID generator.
func WithRunIDs(newID func() string) OrchestratorOption {
	return func(o *Orchestrator) { o.newID = newID }
}

// NewOrchestrator creates an orchestrator over the given sources.
func NewOrchestrator(deps OrchestratorDeps, config domain.PipelineConfig, opts ...OrchestratorOption) *Orchestrator {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	o := &Orchestrator{
		deps:   deps,
		config: config,
		now:    time.Now,
		sleep:  sleepContext,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Sources returns the configured sources in configuration order.
func (o *Orchestrator) Sources() []domain.Source {
	out := make([]domain.Source, len(o.deps.Sources))
	copy(out, o.deps.Sources)
	return out
}

// Run executes one pipeline run over the due sources.
//
// Cancelling ctx stops new jobs from starting. Jobs already started run to
// completion on a detached context, bounded by the collection timeout and
// retry policy. Jobs that never started are recorded as failed with
// domain.ErrRunCancelled.
func (o *Orchestrator) Run(ctx context.Context, opts driving.RunOptions) (*domain.PipelineRun, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, domain.ErrRunInProgress
	}
	defer o.running.Store(false)

	run := &domain.PipelineRun{
		ID:        o.newID(),
		StartedAt: o.now(),
		Status:    domain.RunPending,
	}

	sources, err := o.selectSources(ctx, opts)
	if err != nil {
		return nil, err
	}

	logger.Section("Pipeline run " + run.ID)
	logger.Info("Running %d of %d sources", len(sources), len(o.deps.Sources))

	run.Status = domain.RunRunning
	if err := o.deps.Runs.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		return nil, fmt.Errorf("record run start: %w", err)
	}

	run.Jobs = o.runJobs(ctx, sources)
	run.EndedAt = o.now()
	run.Status = domain.ComputeRunStatus(run.Jobs)

	// The run record must be written even if the caller gave up.
	saveCtx := context.WithoutCancel(ctx)
	if err := o.deps.Runs.SaveRun(saveCtx, run); err != nil {
		return run, fmt.Errorf("record run result: %w", err)
	}
	if o.config.KeepRuns > 0 {
		if err := o.deps.Runs.PruneRuns(saveCtx, o.config.KeepRuns); err != nil {
			logger.Warn("prune run history: %v", err)
		}
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.RunFinished(run)
	}

	totals := run.Totals()
	logger.Info("Run %s %s: %d created, %d updated, %d alerts, %d failed jobs",
		run.ID, run.Status, totals.EventsCreated, totals.EventsUpdated, totals.AlertsGenerated, run.FailedJobs())
	return run, nil
}

// runJobs executes jobs with bounded concurrency. Results keep the order of
// sources regardless of completion order.
func (o *Orchestrator) runJobs(ctx context.Context, sources []domain.Source) []domain.JobResult {
	results := make([]domain.JobResult, len(sources))
	jobCtx := context.WithoutCancel(ctx)

	sem := make(chan struct{}, o.config.Concurrency)
	var wg sync.WaitGroup

	next := 0
	for ; next < len(sources); next++ {
		if ctx.Err() != nil {
			break
		}
		acquired := false
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
			acquired = true
		}
		// select picks randomly when both are ready; cancellation wins.
		if ctx.Err() != nil {
			if acquired {
				<-sem
			}
			break
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = o.runSource(jobCtx, &sources[i])
		}(next)
	}

	for i := next; i < len(sources); i++ {
		now := o.now()
		results[i] = domain.JobResult{
			SourceID:  sources[i].ID,
			Status:    domain.JobFailed,
			Error:     domain.ErrRunCancelled.Error(),
			StartedAt: now,
			EndedAt:   now,
		}
		logger.Info("Source %s not started: run cancelled", sources[i].ID)
	}

	wg.Wait()
	return results
}

// runSource runs one job, updates the source schedule and invokes the
// analysis hook. Nothing it does can alter another source's job.
func (o *Orchestrator) runSource(ctx context.Context, source *domain.Source) domain.JobResult {
	result, flagged := o.runJob(ctx, source)

	o.recordSchedule(ctx, source, &result)
	if o.deps.Metrics != nil {
		o.deps.Metrics.JobFinished(&result)
	}
	o.analyse(ctx, source, flagged)
	return result
}

// flaggedEvent is an event whose alerts reach the analysis threshold.
type flaggedEvent struct {
	event  domain.CivicEvent
	alerts []domain.Alert
}

// runJob collects, normalises, stores and evaluates one source.
//
//nolint:gocognit // Pipeline orchestration with sequential steps
func (o *Orchestrator) runJob(ctx context.Context, source *domain.Source) (result domain.JobResult, flagged []flaggedEvent) {
	result = domain.JobResult{SourceID: source.ID, StartedAt: o.now()}
	defer func() {
		if r := recover(); r != nil {
			result.Status = domain.JobFailed
			result.Error = fmt.Sprintf("panic: %v", r)
			flagged = nil
			logger.Error("source %s: job panicked: %v", source.ID, r)
		}
		result.EndedAt = o.now()
	}()

	logger.Info("Starting job for source %s", source.ID)

	// 1. RESOLVE ADAPTER
	adapter, err := o.deps.Adapters.Get(source.Type)
	if err != nil {
		o.failJob(&result, err)
		return result, nil
	}

	// 2. COLLECT (time-boxed, bounded retries)
	records, attempts, err := o.collect(ctx, source)
	result.Attempts = attempts
	if err != nil {
		o.failJob(&result, err)
		return result, nil
	}

	// 3. NORMALISE (malformed records are skipped and counted)
	norm := adapter.Normalise(ctx, source, records)
	for _, ae := range norm.Errors {
		result.RecordErrors++
		result.Errors = append(result.Errors, ae.Error())
		logger.Debug("%v", ae)
	}

	// 4. SAVE AND EVALUATE, in collection order
	for i := range norm.Events {
		event := &norm.Events[i]
		alerts, err := o.processEvent(ctx, event, &result)
		if err != nil {
			result.StoreErrors++
			result.Errors = append(result.Errors, err.Error())
			logger.Debug("source %s: %v", source.ID, err)
			continue
		}
		if o.shouldAnalyse(alerts) {
			flagged = append(flagged, flaggedEvent{event: *event, alerts: alerts})
		}
	}

	if len(norm.Events) > 0 && result.StoreErrors == len(norm.Events) {
		o.failJob(&result, fmt.Errorf("all %d events failed to save", len(norm.Events)))
		return result, nil
	}

	result.Status = domain.JobSuccess
	logger.Info("Source %s: %d new, %d updated, %d unchanged, %d alerts, %d errors",
		source.ID, result.EventsCreated, result.EventsUpdated, result.EventsUnchanged,
		result.AlertsGenerated, result.ErrorCount())
	return result, flagged
}

// processEvent saves one event and, if its content is new, changed or was
// never fully evaluated, evaluates rules and stores the resulting alerts.
// The returned error is a save failure; alert failures are recorded on
// result and leave the event pending for the next run.
func (o *Orchestrator) processEvent(ctx context.Context, event *domain.CivicEvent, result *domain.JobResult) ([]domain.Alert, error) {
	outcome, err := o.deps.Events.Save(ctx, event)
	if err != nil {
		return nil, err
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.EventSaved(event.SourceID, outcome)
	}

	switch outcome {
	case domain.SaveNew:
		result.EventsCreated++
	case domain.SaveUpdated:
		result.EventsUpdated++
	default:
		result.EventsUnchanged++
		if event.EvaluatedHash == event.ContentHash {
			return nil, nil
		}
		logger.Debug("source %s: re-evaluating %s", event.SourceID, event.NaturalKey)
	}

	alerts := o.deps.Rules.Evaluate(event)
	if len(alerts) > 0 {
		inserted, err := o.deps.Alerts.SaveAlerts(ctx, alerts)
		if err != nil {
			o.alertFailed(result, &domain.StoreError{NaturalKey: event.NaturalKey, Op: "save alerts", Err: err})
			return nil, nil
		}
		result.AlertsGenerated += inserted
		if o.deps.Metrics != nil {
			for i := range alerts {
				o.deps.Metrics.AlertsRaised(event.SourceID, alerts[i].Severity, 1)
			}
		}
	}

	// Alerts are deduplicated per revision, so a failed mark only costs a
	// repeat evaluation.
	if err := o.deps.Events.MarkEvaluated(ctx, event.ID, event.ContentHash); err != nil {
		o.alertFailed(result, &domain.StoreError{NaturalKey: event.NaturalKey, Op: "mark evaluated", Err: err})
	} else {
		event.EvaluatedHash = event.ContentHash
	}
	return alerts, nil
}

func (o *Orchestrator) alertFailed(result *domain.JobResult, err error) {
	result.AlertErrors++
	result.Errors = append(result.Errors, err.Error())
	logger.Debug("source %s: %v", result.SourceID, err)
}

// collect calls the collector with a per-attempt timeout, retrying
// transient failures on the configured backoff schedule.
func (o *Orchestrator) collect(ctx context.Context, source *domain.Source) ([]domain.RawRecord, int, error) {
	policy := o.config.Retry
	maxAttempts := policy.MaxAttempts()

	var lastErr error
	attempt := 0
	for attempt < maxAttempts {
		attempt++
		records, err := o.collectOnce(ctx, source)
		if err == nil {
			return records, attempt, nil
		}
		lastErr = err
		logger.Debug("source %s: collect attempt %d/%d failed: %v", source.ID, attempt, maxAttempts, err)

		if !isRetryable(err) || attempt == maxAttempts {
			break
		}
		if err := o.sleep(ctx, policy.Delay(attempt)); err != nil {
			lastErr = err
			break
		}
	}
	return nil, attempt, &domain.CollectionError{SourceID: source.ID, Attempts: attempt, Err: lastErr}
}

func (o *Orchestrator) collectOnce(ctx context.Context, source *domain.Source) ([]domain.RawRecord, error) {
	if o.config.CollectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.CollectTimeout)
		defer cancel()
	}
	return o.deps.Collector.Collect(ctx, source)
}

// isRetryable reports whether a collection error may succeed on retry.
// Configuration errors never will.
func isRetryable(err error) bool {
	return !errors.Is(err, domain.ErrInvalidInput) &&
		!errors.Is(err, domain.ErrUnsupportedType) &&
		!errors.Is(err, context.Canceled)
}

func (o *Orchestrator) failJob(result *domain.JobResult, err error) {
	result.Status = domain.JobFailed
	result.Error = err.Error()
	logger.Warn("source %s failed: %v", result.SourceID, err)
}

// recordSchedule stores the source's last-run state.
func (o *Orchestrator) recordSchedule(ctx context.Context, source *domain.Source, result *domain.JobResult) {
	if o.deps.Schedules == nil {
		return
	}
	schedule, err := o.deps.Schedules.GetSchedule(ctx, source.ID)
	if err != nil {
		schedule = &domain.SourceSchedule{SourceID: source.ID}
	}
	schedule.LastRun = result.StartedAt
	if result.Succeeded() {
		schedule.LastSuccess = result.EndedAt
		schedule.LastError = ""
	} else {
		schedule.LastError = result.Error
	}
	if err := o.deps.Schedules.SaveSchedule(ctx, schedule); err != nil {
		logger.Warn("source %s: save schedule: %v", source.ID, err)
	}
}

func (o *Orchestrator) shouldAnalyse(alerts []domain.Alert) bool {
	if o.deps.Analyzer == nil || o.config.AnalysisMinSeverity == "" || len(alerts) == 0 {
		return false
	}
	return domain.HighestSeverity(alerts).AtLeast(o.config.AnalysisMinSeverity)
}

// analyse passes flagged events to the deep-analysis hook. Failures and
// panics are logged only.
func (o *Orchestrator) analyse(ctx context.Context, source *domain.Source, flagged []flaggedEvent) {
	for i := range flagged {
		func(f *flaggedEvent) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("source %s: analysis of %s panicked: %v", source.ID, f.event.ID, r)
				}
			}()
			actx := ctx
			if o.config.AnalysisTimeout > 0 {
				var cancel context.CancelFunc
				actx, cancel = context.WithTimeout(ctx, o.config.AnalysisTimeout)
				defer cancel()
			}
			res, err := o.deps.Analyzer.Analyze(actx, &f.event, f.alerts)
			if err != nil {
				logger.Warn("source %s: analysis of %s failed: %v", source.ID, f.event.ID, err)
				return
			}
			if res != nil {
				logger.Info("Analysis of %s: %s", f.event.ID, res.Summary)
			}
		}(&flagged[i])
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
