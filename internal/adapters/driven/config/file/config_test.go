package file

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

const fullConfig = `
data_dir = "data"
rules_file = "rules.yaml"

[pipeline]
concurrency = 2
collect_timeout = "45s"
retry_attempts = 4
retry_backoff = ["1s", "5s"]
whats_new_policy = "any_change"
keep_runs = 20

[replica]
postgres_dsn = "postgres://civic@localhost/civic"
timeout = "3s"

[analysis]
webhook_url = "http://localhost:8080/analyze"
min_severity = "urgent"
timeout = "15s"

[metrics]
listen = ":9464"

[watchlist]
keywords = ["rezoning"]
entities = ["Tara April"]
places = ["Duval Street"]

[[watchlist.terms]]
term = "short-term rental"
tag = "str"

[[sources]]
id = "city-commission"
type = "agenda"
name = "City Commission"
region = "Gainesville"
frequency = "6h"
url = "https://example.org/agendas.json"
items_key = "meetings"
rate_per_second = 1.0
burst = 2

[[sources]]
id = "permits"
type = "permits"
enabled = false
collector = "spool"
path = "spool/permits"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// TestLoad_Full tests that every section is resolved
func TestLoad_Full(t *testing.T) {
	path := writeConfig(t, fullConfig)
	dir := filepath.Dir(path)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "rules.yaml"), cfg.RulesFile)

	assert.Equal(t, 2, cfg.Pipeline.Concurrency)
	assert.Equal(t, 45*time.Second, cfg.Pipeline.CollectTimeout)
	assert.Equal(t, domain.RetryPolicy{Attempts: 4, Backoff: []time.Duration{time.Second, 5 * time.Second}}, cfg.Pipeline.Retry)
	assert.Equal(t, 20, cfg.Pipeline.KeepRuns)
	assert.Equal(t, domain.SeverityUrgent, cfg.Pipeline.AnalysisMinSeverity)
	assert.Equal(t, 15*time.Second, cfg.Pipeline.AnalysisTimeout)
	assert.Equal(t, domain.WhatsNewAnyChange, cfg.WhatsNewPolicy)

	assert.Equal(t, "postgres://civic@localhost/civic", cfg.Replica.PostgresDSN)
	assert.Equal(t, 3*time.Second, cfg.Replica.Timeout)
	assert.Equal(t, "http://localhost:8080/analyze", cfg.Analysis.WebhookURL)
	assert.Equal(t, ":9464", cfg.MetricsListen)

	require.Len(t, cfg.Watchlist.Terms, 4)
	assert.Equal(t, domain.WatchTerm{Term: "Tara April", Kind: domain.WatchEntity}, cfg.Watchlist.Terms[1])
	assert.Equal(t, "str", cfg.Watchlist.Terms[3].TagName())

	require.Len(t, cfg.Sources, 2)
	commission := cfg.Sources[0]
	assert.Equal(t, domain.SourceAgenda, commission.Type)
	assert.True(t, commission.Enabled, "enabled defaults to true")
	assert.Equal(t, 6*time.Hour, commission.Frequency)
	assert.Equal(t, domain.CollectorHTTP, commission.Collector.Kind, "url implies http")
	assert.Equal(t, "meetings", commission.Collector.ItemsKey)
	assert.InDelta(t, 1.0, commission.Collector.RatePerSecond, 1e-9)

	permits := cfg.Sources[1]
	assert.False(t, permits.Enabled)
	assert.Equal(t, domain.CollectorSpool, permits.Collector.Kind)
	assert.Equal(t, filepath.Join(dir, "spool", "permits"), permits.Collector.Path)
}

// TestLoad_Defaults tests an empty file
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultPipelineConfig(), cfg.Pipeline)
	assert.Equal(t, domain.WhatsNewFirstSeen, cfg.WhatsNewPolicy)
	assert.Empty(t, cfg.Sources)
}

// TestLoad_Missing tests not-found handling
func TestLoad_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.toml")

	_, err := Load(path)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	cfg, err := LoadOrDefault(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, 1, cfg.Pipeline.Concurrency)
}

// TestLoad_ValidationNamesKeys tests that every problem names its key
func TestLoad_ValidationNamesKeys(t *testing.T) {
	path := writeConfig(t, `
[pipeline]
collect_timeout = "soon"
retry_backoff = ["1s", "-2s"]
whats_new_policy = "latest"

[analysis]
min_severity = "critical"

[[sources]]
id = "a"
type = "tweets"
url = "ftp://example.org"

[[sources]]
id = "a"
type = "agenda"
frequency = "daily"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, []string{
		`pipeline.collect_timeout: invalid duration "soon"`,
		`pipeline.retry_backoff[1]: invalid duration "-2s"`,
		`pipeline.whats_new_policy: unknown policy "latest"`,
		`analysis.min_severity: invalid severity "critical"`,
		`sources[a].type: unsupported source type "tweets"`,
		`sources[a].url: http collector needs an http(s) url`,
		`sources[a].id: duplicate source id`,
		`sources[a].frequency: invalid duration "daily"`,
		`sources[a].collector: set url or path`,
	}, cfgErr.Problems)
}

// TestLoad_UnknownKey tests strict decoding
func TestLoad_UnknownKey(t *testing.T) {
	_, err := Load(writeConfig(t, "[pipeline]\nconcurency = 2\n"))

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, []string{"unknown key pipeline.concurency"}, cfgErr.Problems)
}

// TestLoad_SyntaxError tests that decode errors carry a position
func TestLoad_SyntaxError(t *testing.T) {
	_, err := Load(writeConfig(t, "data_dir = \n"))

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Problems[0], "line 1")
}

// TestExpandHome tests tilde expansion
func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot determine home directory")
	}
	assert.Equal(t, filepath.Join(home, ".civicwatch"), ExpandHome("~/.civicwatch"))
	assert.Equal(t, home, ExpandHome("~"))
	assert.Equal(t, "/var/lib/civic", ExpandHome("/var/lib/civic"))
	assert.Equal(t, "~user/x", ExpandHome("~user/x"))
}

// TestWriteExample tests that the starter config loads back
func TestWriteExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	require.NoError(t, WriteExample(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, domain.CollectorSpool, cfg.Sources[0].Collector.Kind)
	assert.Equal(t, 2, cfg.Pipeline.Concurrency)

	assert.Error(t, WriteExample(path), "existing files are not overwritten")
}
