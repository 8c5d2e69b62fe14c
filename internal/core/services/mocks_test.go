package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driven"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driving"
)

// --- Mock implementations shared by the service tests ---

// mockCollector implements driven.Collector with per-source behaviour.
type mockCollector struct {
	mu    sync.Mutex
	calls map[string]int

	// records are returned when no handler is set for a source.
	records map[string][]domain.RawRecord

	// handlers receive the 1-based attempt number.
	handlers map[string]func(ctx context.Context, attempt int) ([]domain.RawRecord, error)
}

func newMockCollector() *mockCollector {
	return &mockCollector{
		calls:    make(map[string]int),
		records:  make(map[string][]domain.RawRecord),
		handlers: make(map[string]func(ctx context.Context, attempt int) ([]domain.RawRecord, error)),
	}
}

func (m *mockCollector) Collect(ctx context.Context, source *domain.Source) ([]domain.RawRecord, error) {
	m.mu.Lock()
	m.calls[source.ID]++
	attempt := m.calls[source.ID]
	handler := m.handlers[source.ID]
	records := m.records[source.ID]
	m.mu.Unlock()

	if handler != nil {
		return handler(ctx, attempt)
	}
	return records, nil
}

func (m *mockCollector) Calls(sourceID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[sourceID]
}

func (m *mockCollector) fail(sourceID string, err error) {
	m.handlers[sourceID] = func(context.Context, int) ([]domain.RawRecord, error) { return nil, err }
}

// mockAdapter implements driven.Adapter. Each record becomes an event from
// its "id", "title", "tags" and "date" fields; records without an id are
// reported as errors.
type mockAdapter struct {
	sourceType domain.SourceType
	panicMsg   string
}

func (m *mockAdapter) SourceType() domain.SourceType { return m.sourceType }

func (m *mockAdapter) Normalise(_ context.Context, source *domain.Source, records []domain.RawRecord) *driven.NormaliseResult {
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	res := &driven.NormaliseResult{}
	for i, rec := range records {
		id, _ := rec.Fields["id"].(string)
		if id == "" {
			res.Errors = append(res.Errors, &domain.AdapterError{SourceID: source.ID, Position: i, Err: domain.ErrMissingField})
			continue
		}
		title, _ := rec.Fields["title"].(string)
		e := domain.CivicEvent{
			NaturalKey: source.ID + ":meeting:" + id,
			Type:       domain.EventMeeting,
			SourceID:   source.ID,
			Timestamp:  time.Date(2026, 2, 10, 18, 0, 0, 0, time.UTC),
			Title:      title,
			Region:     source.Region,
		}
		if date, ok := rec.Fields["date"].(time.Time); ok {
			e.Timestamp = date
		}
		if tags, ok := rec.Fields["tags"].([]string); ok {
			e.Tags = tags
		}
		e.Seal()
		res.Events = append(res.Events, e)
	}
	return res
}

func rec(id, title string, tags ...string) domain.RawRecord {
	return domain.RawRecord{Fields: map[string]any{"id": id, "title": title, "tags": tags}}
}

// countingRules wraps a rules engine and counts evaluations.
type countingRules struct {
	driving.RulesEngine
	mu    sync.Mutex
	calls int
}

func (c *countingRules) Evaluate(event *domain.CivicEvent) []domain.Alert {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.RulesEngine.Evaluate(event)
}

func (c *countingRules) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// failingEventStore implements driven.EventStore and rejects every save.
type failingEventStore struct {
	driven.EventStore
	err error
}

func (f *failingEventStore) Save(_ context.Context, event *domain.CivicEvent) (domain.SaveOutcome, error) {
	return "", &domain.StoreError{NaturalKey: event.NaturalKey, Op: "save", Err: f.err}
}

// flakyAlertStore implements driven.AlertStore and rejects saves while err
// is set.
type flakyAlertStore struct {
	driven.AlertStore
	mu  sync.Mutex
	err error
}

func (f *flakyAlertStore) SaveAlerts(ctx context.Context, alerts []domain.Alert) (int, error) {
	f.mu.Lock()
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return f.AlertStore.SaveAlerts(ctx, alerts)
}

func (f *flakyAlertStore) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// mockAnalyzer implements driven.DeepAnalyzer.
type mockAnalyzer struct {
	mu       sync.Mutex
	analysed []string
	err      error
	panicMsg string
}

func (m *mockAnalyzer) Analyze(_ context.Context, event *domain.CivicEvent, alerts []domain.Alert) (*domain.AnalysisResult, error) {
	m.mu.Lock()
	m.analysed = append(m.analysed, event.NaturalKey)
	m.mu.Unlock()

	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &domain.AnalysisResult{EventID: event.ID, Summary: fmt.Sprintf("%d alerts", len(alerts))}, nil
}

func (m *mockAnalyzer) Analysed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.analysed...)
}

// mockMetrics implements driven.PipelineMetrics.
type mockMetrics struct {
	mu           sync.Mutex
	saved        map[domain.SaveOutcome]int
	alerts       map[domain.Severity]int
	jobs         []string
	runs         []domain.RunStatus
	replications int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{saved: make(map[domain.SaveOutcome]int), alerts: make(map[domain.Severity]int)}
}

func (m *mockMetrics) EventSaved(_ string, outcome domain.SaveOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[outcome]++
}

func (m *mockMetrics) AlertsRaised(_ string, severity domain.Severity, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[severity] += n
}

func (m *mockMetrics) JobFinished(job *domain.JobResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job.SourceID+"="+string(job.Status))
}

func (m *mockMetrics) RunFinished(run *domain.PipelineRun) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run.Status)
}

func (m *mockMetrics) Replicated(string, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replications++
}

// mockRuleSource implements driven.RuleSource with swappable contents.
type mockRuleSource struct {
	mu    sync.Mutex
	rules []domain.Rule
	err   error
}

func (m *mockRuleSource) Name() string { return "mock" }

func (m *mockRuleSource) Load(_ context.Context) ([]domain.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]domain.Rule(nil), m.rules...), nil
}

func (m *mockRuleSource) set(rules []domain.Rule, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = rules
	m.err = err
}

// stepClock advances by step on every call.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// sleepRecorder records backoff waits without sleeping.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

var errUpstream = errors.New("upstream unavailable")
