package cli

import (
	"bytes"
	"context"
	"time"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driving"
)

// mockOrchestrator implements driving.Orchestrator for testing.
type mockOrchestrator struct {
	run  *domain.PipelineRun
	err  error
	opts driving.RunOptions
}

func (m *mockOrchestrator) Run(_ context.Context, opts driving.RunOptions) (*domain.PipelineRun, error) {
	m.opts = opts
	return m.run, m.err
}

func (m *mockOrchestrator) Sources() []domain.Source {
	return nil
}

// mockEventService implements driving.EventService for testing.
type mockEventService struct {
	events []domain.CivicEvent
	err    error

	window time.Duration
	query  domain.EventQuery
	name   string
}

func (m *mockEventService) Get(_ context.Context, id string) (*domain.CivicEvent, error) {
	for i := range m.events {
		if m.events[i].ID == id {
			return &m.events[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockEventService) Query(_ context.Context, query domain.EventQuery) ([]domain.CivicEvent, error) {
	m.query = query
	return m.events, m.err
}

func (m *mockEventService) WhatsNew(_ context.Context, window time.Duration) ([]domain.CivicEvent, error) {
	m.window = window
	return m.events, m.err
}

func (m *mockEventService) Upcoming(_ context.Context) ([]domain.CivicEvent, error) {
	return m.events, m.err
}

func (m *mockEventService) ByEntity(_ context.Context, name string) ([]domain.CivicEvent, error) {
	m.name = name
	return m.events, m.err
}

func (m *mockEventService) ByRegion(_ context.Context, region string) ([]domain.CivicEvent, error) {
	m.name = region
	return m.events, m.err
}

// mockAlertService implements driving.AlertService for testing.
type mockAlertService struct {
	alerts []domain.Alert
	query  domain.AlertQuery
}

func (m *mockAlertService) List(_ context.Context, query domain.AlertQuery) ([]domain.Alert, error) {
	m.query = query
	return m.alerts, nil
}

// mockRulesEngine implements driving.RulesEngine for testing.
type mockRulesEngine struct {
	rules []domain.Rule
}

func (m *mockRulesEngine) Evaluate(_ *domain.CivicEvent) []domain.Alert {
	return nil
}

func (m *mockRulesEngine) Reload(_ context.Context) error {
	return nil
}

func (m *mockRulesEngine) Rules() []domain.Rule {
	return m.rules
}

// mockRunService implements driving.RunService for testing.
type mockRunService struct {
	runs      []domain.PipelineRun
	schedules []domain.SourceSchedule
	limit     int
}

func (m *mockRunService) ListRuns(_ context.Context, limit int) ([]domain.PipelineRun, error) {
	m.limit = limit
	return m.runs, nil
}

func (m *mockRunService) GetRun(_ context.Context, id string) (*domain.PipelineRun, error) {
	for i := range m.runs {
		if m.runs[i].ID == id {
			return &m.runs[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockRunService) Schedules(_ context.Context) ([]domain.SourceSchedule, error) {
	return m.schedules, nil
}

// mockWatchService implements driving.WatchService for testing. It reports
// each run to OnRun and returns.
type mockWatchService struct {
	runs []*domain.PipelineRun
	opts driving.WatchOptions
	err  error
}

func (m *mockWatchService) Watch(_ context.Context, opts driving.WatchOptions) error {
	m.opts = opts
	for _, r := range m.runs {
		if opts.OnRun != nil {
			opts.OnRun(r, nil)
		}
	}
	return m.err
}

// setupServices injects s and returns a cleanup func.
func setupServices(s *Services) func() {
	SetServices(s)
	return func() {
		SetServices(nil)
		SetBootstrap(nil)
	}
}

// resetFlags restores flag variables to their defaults. Cobra keeps parsed
// values between Execute calls.
func resetFlags() {
	configPath, verbose = "", false
	runForce, runJSON = false, false
	eventsJSON, newWindow = false, "7d"
	listSource, listTypes, listTags = "", nil, nil
	listEntity, listRegion, listFrom, listTo, listLimit = "", "", "", "", 50
	alertsRule, alertsEvent, alertsSource, alertsSeverity, alertsSince = "", "", "", "", ""
	alertsLimit, alertsJSON = 50, false
	rulesJSON = false
	runsLimit, runsJSON = 20, false
	watchInterval, watchSettle = 5*time.Minute, 2*time.Second
}

// execute runs the root command with args and returns its output.
func execute(args ...string) (string, error) {
	resetFlags()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

func testEvent() domain.CivicEvent {
	return domain.CivicEvent{
		ID:          "evt-1",
		NaturalKey:  "agenda:commission:2026-03-04",
		Type:        domain.EventMeeting,
		SourceID:    "commission",
		Title:       "City Commission Regular Meeting",
		Description: "Second reading of the Tara Avenue rezoning.",
		Timestamp:   time.Date(2026, 3, 4, 17, 0, 0, 0, time.UTC),
		Region:      "Key West",
		Tags:        []string{"rezoning"},
		Entities:    []domain.Entity{{Name: "Tara Avenue", Kind: domain.EntityAddress}},
		Documents:   []domain.Document{{URL: "https://example.gov/agenda.pdf", Kind: "agenda"}},
		FirstSeenAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Revision:    1,
	}
}

func testRun(status domain.RunStatus) *domain.PipelineRun {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &domain.PipelineRun{
		ID:        "run-1",
		StartedAt: start,
		EndedAt:   start.Add(1500 * time.Millisecond),
		Status:    status,
		Jobs: []domain.JobResult{
			{
				SourceID:        "commission",
				Status:          domain.JobSuccess,
				EventsCreated:   2,
				EventsUpdated:   1,
				AlertsGenerated: 1,
				RecordErrors:    1,
				Errors:          []string{"record 3: missing id"},
			},
			{
				SourceID: "permits",
				Status:   domain.JobFailed,
				Error:    "connection refused",
			},
		},
	}
}
