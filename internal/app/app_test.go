package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/civicwatch/internal/adapters/driven/config/file"
	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driving"
)

const testRules = `
version: "1"
rules:
  - id: rezoning
    category: land_use
    severity: warning
    condition:
      contains_tag: rezoning
`

const testMeetings = `[
  {"externalId":"CC-2026-02-10","title":"City Commission Regular Meeting","date":"2026-02-10T18:00:00Z",
   "body":"City Commission","agendaItems":["Tara April rezoning"]},
  {"title":"Missing id"}
]`

// setupApp writes a config with one spool source and returns the loaded config.
func setupApp(t *testing.T, rules string) (*file.Config, string) {
	t.Helper()
	dir := t.TempDir()
	spoolDir := filepath.Join(dir, "spool", "commission")
	require.NoError(t, os.MkdirAll(spoolDir, 0700))

	config := `
data_dir = "data"

[watchlist]
keywords = ["rezoning"]

[[sources]]
id = "commission"
type = "agenda"
region = "Key West"
collector = "spool"
path = "spool/commission"
`
	if rules != "" {
		config = "rules_file = \"rules.yaml\"\n" + config
		require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.yaml"), []byte(rules), 0600))
	}
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(config), 0600))

	cfg, err := file.Load(path)
	require.NoError(t, err)
	return cfg, spoolDir
}

// TestApp_RunEndToEnd tests a run from spool files to stored alerts
func TestApp_RunEndToEnd(t *testing.T) {
	cfg, spoolDir := setupApp(t, testRules)
	require.NoError(t, os.WriteFile(filepath.Join(spoolDir, "batch.json"), []byte(testMeetings), 0600))

	a, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)
	defer a.Close()

	run, err := a.Orchestrator.Run(context.Background(), driving.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.RunSuccess, run.Status)
	require.Len(t, run.Jobs, 1)
	assert.Equal(t, 1, run.Jobs[0].EventsCreated)
	assert.Equal(t, 1, run.Jobs[0].RecordErrors)
	assert.Equal(t, 1, run.Jobs[0].AlertsGenerated)

	alerts, err := a.Alerts.List(context.Background(), domain.AlertQuery{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "rezoning", alerts[0].RuleID)

	events, err := a.Events.ByRegion(context.Background(), "key west")
	require.NoError(t, err)
	assert.Len(t, events, 1)

	// A second forced run sees the same content and raises nothing new.
	run, err = a.Orchestrator.Run(context.Background(), driving.RunOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, run.Jobs[0].EventsUnchanged)
	assert.Equal(t, 0, run.Jobs[0].AlertsGenerated)

	runs, err := a.Runs.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

// TestApp_MissingDefaultRules tests running without a rules file
func TestApp_MissingDefaultRules(t *testing.T) {
	cfg, _ := setupApp(t, "")

	a, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)
	defer a.Close()
	assert.Empty(t, a.Rules.Rules())
}

// TestApp_MissingExplicitRules tests that a configured rules file must exist
func TestApp_MissingExplicitRules(t *testing.T) {
	cfg, _ := setupApp(t, testRules)
	cfg.RulesFile = filepath.Join(t.TempDir(), "absent.yaml")

	_, err := New(context.Background(), cfg, Options{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// TestApp_InvalidRules tests that invalid rules fail construction
func TestApp_InvalidRules(t *testing.T) {
	cfg, _ := setupApp(t, "rules:\n  - id: a\n    severity: loud\n    condition:\n      contains_tag: x\n")

	_, err := New(context.Background(), cfg, Options{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// TestRulesPath tests the default rules location
func TestRulesPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/etc/civicwatch", "rules.yaml"), RulesPath(&file.Config{Path: "/etc/civicwatch/config.toml"}))
	assert.Equal(t, "/srv/rules.yaml", RulesPath(&file.Config{RulesFile: "/srv/rules.yaml"}))
}

// TestNewRegistry tests that every source type has an adapter
func TestNewRegistry(t *testing.T) {
	assert.Equal(t, []domain.SourceType{domain.SourceAgenda, domain.SourceNotices, domain.SourcePermits}, NewRegistry(domain.Watchlist{}).Types())
}

// TestApp_WatchTriggersOnSpoolFile tests that a new spool file starts a run
func TestApp_WatchTriggersOnSpoolFile(t *testing.T) {
	cfg, spoolDir := setupApp(t, testRules)

	a, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	runs := make(chan *domain.PipelineRun, 4)
	done := make(chan error, 1)
	go func() {
		done <- a.Watch(ctx, driving.WatchOptions{
			Settle: 20 * time.Millisecond,
			OnRun: func(run *domain.PipelineRun, err error) {
				if err == nil {
					runs <- run
				}
			},
		})
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(spoolDir, "batch.json"), []byte(testMeetings), 0600))

	select {
	case run := <-runs:
		require.Len(t, run.Jobs, 1)
		assert.Equal(t, "commission", run.Jobs[0].SourceID)
		assert.Equal(t, 1, run.Jobs[0].EventsCreated)
	case <-time.After(5 * time.Second):
		t.Fatal("no run triggered")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
