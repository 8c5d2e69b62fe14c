package file

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

// Config is the resolved application configuration.
type Config struct {
	// Path is the file the configuration was read from.
	Path string

	DataDir   string
	RulesFile string

	Pipeline       domain.PipelineConfig
	WhatsNewPolicy domain.WhatsNewPolicy

	Replica  ReplicaConfig
	Analysis AnalysisConfig

	// MetricsListen is the address of the Prometheus endpoint. Empty disables it.
	MetricsListen string

	Watchlist domain.Watchlist
	Sources   []domain.Source
}

// ReplicaConfig configures the optional Postgres replica.
type ReplicaConfig struct {
	PostgresDSN string
	Timeout     time.Duration
}

// AnalysisConfig configures the optional deep-analysis webhook.
type AnalysisConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

// ConfigError lists every problem found in a configuration file.
type ConfigError struct {
	Path     string
	Problems []string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Path, strings.Join(e.Problems, "; "))
}

// Unwrap lets callers test for domain.ErrInvalidInput.
func (e *ConfigError) Unwrap() error {
	return domain.ErrInvalidInput
}

// tomlConfig mirrors config.toml. Durations are strings.
type tomlConfig struct {
	DataDir   string        `toml:"data_dir"`
	RulesFile string        `toml:"rules_file"`
	Pipeline  tomlPipeline  `toml:"pipeline"`
	Replica   tomlReplica   `toml:"replica"`
	Analysis  tomlAnalysis  `toml:"analysis"`
	Metrics   tomlMetrics   `toml:"metrics"`
	Watchlist tomlWatchlist `toml:"watchlist"`
	Sources   []tomlSource  `toml:"sources"`
}

type tomlPipeline struct {
	Concurrency    int      `toml:"concurrency,omitempty"`
	CollectTimeout string   `toml:"collect_timeout,omitempty"`
	RetryAttempts  int      `toml:"retry_attempts,omitempty"`
	RetryBackoff   []string `toml:"retry_backoff,omitempty"`
	WhatsNewPolicy string   `toml:"whats_new_policy,omitempty"`
	KeepRuns       *int     `toml:"keep_runs,omitempty"`
}

type tomlReplica struct {
	PostgresDSN string `toml:"postgres_dsn"`
	Timeout     string `toml:"timeout,omitempty"`
}

type tomlAnalysis struct {
	WebhookURL  string `toml:"webhook_url"`
	MinSeverity string `toml:"min_severity,omitempty"`
	Timeout     string `toml:"timeout,omitempty"`
}

type tomlMetrics struct {
	Listen string `toml:"listen"`
}

type tomlWatchlist struct {
	Keywords []string        `toml:"keywords"`
	Entities []string        `toml:"entities"`
	Places   []string        `toml:"places"`
	Terms    []tomlWatchTerm `toml:"terms,omitempty"`
}

type tomlWatchTerm struct {
	Term string `toml:"term"`
	Tag  string `toml:"tag,omitempty"`
	Kind string `toml:"kind,omitempty"`
}

type tomlSource struct {
	ID            string            `toml:"id"`
	Type          string            `toml:"type"`
	Name          string            `toml:"name,omitempty"`
	Region        string            `toml:"region,omitempty"`
	Frequency     string            `toml:"frequency,omitempty"`
	Enabled       *bool             `toml:"enabled,omitempty"`
	Collector     string            `toml:"collector,omitempty"`
	URL           string            `toml:"url,omitempty"`
	Path          string            `toml:"path,omitempty"`
	ItemsKey      string            `toml:"items_key,omitempty"`
	Headers       map[string]string `toml:"headers,omitempty"`
	RatePerSecond float64           `toml:"rate_per_second,omitempty"`
	Burst         int               `toml:"burst,omitempty"`
}

// DefaultDir returns ~/.civicwatch.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".civicwatch"), nil
}

// DefaultPath returns ~/.civicwatch/config.toml.
func DefaultPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Pipeline:       domain.DefaultPipelineConfig(),
		WhatsNewPolicy: domain.WhatsNewFirstSeen,
		Replica:        ReplicaConfig{Timeout: 5 * time.Second},
		Analysis:       AnalysisConfig{Timeout: 10 * time.Second},
	}
}

// Load reads and validates a configuration file. A missing file is
// reported as domain.ErrNotFound.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s: %w", path, domain.ErrNotFound)
		}
		return nil, err
	}
	return Parse(path, data)
}

// LoadOrDefault reads path, falling back to Default when it does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, domain.ErrNotFound) {
		cfg = Default()
		cfg.Path = path
		return cfg, nil
	}
	return cfg, err
}

// Parse decodes TOML data. path is used to resolve relative paths and in
// error messages. Unknown keys are rejected.
func Parse(path string, data []byte) (*Config, error) {
	var raw tomlConfig
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, decodeError(path, err)
	}

	r := resolver{base: filepath.Dir(path)}
	cfg := r.resolve(&raw)
	cfg.Path = path
	if len(r.problems) > 0 {
		return nil, &ConfigError{Path: path, Problems: r.problems}
	}
	return cfg, nil
}

func decodeError(path string, err error) error {
	var strict *toml.StrictMissingError
	if errors.As(err, &strict) {
		problems := make([]string, 0, len(strict.Errors))
		for i := range strict.Errors {
			problems = append(problems, fmt.Sprintf("unknown key %s", strings.Join(strict.Errors[i].Key(), ".")))
		}
		return &ConfigError{Path: path, Problems: problems}
	}
	var de *toml.DecodeError
	if errors.As(err, &de) {
		row, col := de.Position()
		return &ConfigError{Path: path, Problems: []string{fmt.Sprintf("line %d column %d: %s", row, col, de.Error())}}
	}
	return fmt.Errorf("config %s: %w", path, err)
}

// resolver converts the raw file into a Config, collecting problems.
type resolver struct {
	base     string
	problems []string
}

func (r *resolver) addf(format string, args ...any) {
	r.problems = append(r.problems, fmt.Sprintf(format, args...))
}

func (r *resolver) duration(key, value string, def time.Duration) time.Duration {
	if strings.TrimSpace(value) == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		r.addf("%s: invalid duration %q", key, value)
		return def
	}
	return d
}

// path expands ~ and makes relative paths relative to the config file.
func (r *resolver) path(value string) string {
	if value == "" {
		return ""
	}
	p := ExpandHome(value)
	if !filepath.IsAbs(p) {
		p = filepath.Join(r.base, p)
	}
	return p
}

func (r *resolver) resolve(raw *tomlConfig) *Config {
	cfg := Default()
	cfg.DataDir = r.path(raw.DataDir)
	cfg.RulesFile = r.path(raw.RulesFile)
	cfg.MetricsListen = raw.Metrics.Listen

	r.pipeline(&raw.Pipeline, cfg)

	cfg.Replica.PostgresDSN = raw.Replica.PostgresDSN
	cfg.Replica.Timeout = r.duration("replica.timeout", raw.Replica.Timeout, cfg.Replica.Timeout)

	cfg.Analysis.WebhookURL = raw.Analysis.WebhookURL
	cfg.Analysis.Timeout = r.duration("analysis.timeout", raw.Analysis.Timeout, cfg.Analysis.Timeout)
	cfg.Pipeline.AnalysisTimeout = cfg.Analysis.Timeout
	if raw.Analysis.MinSeverity != "" {
		sev, err := domain.ParseSeverity(raw.Analysis.MinSeverity)
		if err != nil {
			r.addf("analysis.min_severity: invalid severity %q", raw.Analysis.MinSeverity)
		}
		cfg.Pipeline.AnalysisMinSeverity = sev
	}

	cfg.Watchlist = r.watchlist(&raw.Watchlist)
	cfg.Sources = r.sources(raw.Sources)
	return cfg
}

func (r *resolver) pipeline(raw *tomlPipeline, cfg *Config) {
	p := &cfg.Pipeline
	if raw.Concurrency < 0 {
		r.addf("pipeline.concurrency: must be at least 1")
	} else if raw.Concurrency > 0 {
		p.Concurrency = raw.Concurrency
	}
	p.CollectTimeout = r.duration("pipeline.collect_timeout", raw.CollectTimeout, p.CollectTimeout)

	if raw.RetryAttempts < 0 {
		r.addf("pipeline.retry_attempts: must be at least 1")
	} else if raw.RetryAttempts > 0 {
		p.Retry.Attempts = raw.RetryAttempts
	}
	if raw.RetryBackoff != nil {
		p.Retry.Backoff = make([]time.Duration, 0, len(raw.RetryBackoff))
		for i, b := range raw.RetryBackoff {
			p.Retry.Backoff = append(p.Retry.Backoff, r.duration(fmt.Sprintf("pipeline.retry_backoff[%d]", i), b, 0))
		}
	}
	if raw.KeepRuns != nil {
		if *raw.KeepRuns < 0 {
			r.addf("pipeline.keep_runs: must not be negative")
		} else {
			p.KeepRuns = *raw.KeepRuns
		}
	}

	policy, err := domain.ParseWhatsNewPolicy(raw.WhatsNewPolicy)
	if err != nil {
		r.addf("pipeline.whats_new_policy: unknown policy %q", raw.WhatsNewPolicy)
	}
	cfg.WhatsNewPolicy = policy
}

func (r *resolver) watchlist(raw *tomlWatchlist) domain.Watchlist {
	wl := domain.NewWatchlist(raw.Keywords, raw.Entities, raw.Places)
	for i, t := range raw.Terms {
		key := fmt.Sprintf("watchlist.terms[%d]", i)
		if strings.TrimSpace(t.Term) == "" {
			r.addf("%s.term: required", key)
			continue
		}
		kind := domain.WatchTermKind(strings.ToLower(t.Kind))
		switch kind {
		case "":
			kind = domain.WatchKeyword
		case domain.WatchKeyword, domain.WatchEntity, domain.WatchPlace:
		default:
			r.addf("%s.kind: unknown kind %q", key, t.Kind)
			continue
		}
		wl.Terms = append(wl.Terms, domain.WatchTerm{Term: t.Term, Tag: t.Tag, Kind: kind})
	}
	return wl
}

func (r *resolver) sources(raw []tomlSource) []domain.Source {
	seen := make(map[string]bool, len(raw))
	sources := make([]domain.Source, 0, len(raw))
	for i := range raw {
		s := &raw[i]
		key := fmt.Sprintf("sources[%d]", i)
		if s.ID != "" {
			key = fmt.Sprintf("sources[%s]", s.ID)
		}

		src := domain.Source{
			ID:      strings.TrimSpace(s.ID),
			Name:    s.Name,
			Region:  s.Region,
			Enabled: s.Enabled == nil || *s.Enabled,
		}
		if src.ID == "" {
			r.addf("%s.id: required", key)
		} else if seen[src.ID] {
			r.addf("%s.id: duplicate source id", key)
		}
		seen[src.ID] = true

		typ, err := domain.ParseSourceType(s.Type)
		if err != nil {
			r.addf("%s.type: unsupported source type %q", key, s.Type)
		}
		src.Type = typ
		src.Frequency = r.duration(key+".frequency", s.Frequency, 0)
		src.Collector = r.collector(key, s)
		sources = append(sources, src)
	}
	return sources
}

func (r *resolver) collector(key string, s *tomlSource) domain.CollectorConfig {
	c := domain.CollectorConfig{
		Kind:          domain.CollectorKind(strings.ToLower(s.Collector)),
		URL:           s.URL,
		Path:          r.path(s.Path),
		ItemsKey:      s.ItemsKey,
		Headers:       s.Headers,
		RatePerSecond: s.RatePerSecond,
		Burst:         s.Burst,
	}
	if c.Kind == "" {
		switch {
		case s.URL != "":
			c.Kind = domain.CollectorHTTP
		case s.Path != "":
			c.Kind = domain.CollectorSpool
		}
	}

	switch c.Kind {
	case domain.CollectorHTTP:
		if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
			r.addf("%s.url: http collector needs an http(s) url", key)
		}
	case domain.CollectorSpool:
		if c.Path == "" {
			r.addf("%s.path: spool collector needs a directory", key)
		}
	case "":
		r.addf("%s.collector: set url or path", key)
	default:
		r.addf("%s.collector: unknown collector %q", key, s.Collector)
	}
	if c.RatePerSecond < 0 || c.Burst < 0 {
		r.addf("%s.rate_per_second: must not be negative", key)
	}
	return c
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// WriteExample writes a starter configuration to path.
// Existing files are left untouched and reported as an error.
func WriteExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	enabled := true
	example := tomlConfig{
		DataDir:   "~/.civicwatch/data",
		RulesFile: "rules.yaml",
		Pipeline: tomlPipeline{
			Concurrency:    2,
			CollectTimeout: "30s",
			RetryAttempts:  3,
			RetryBackoff:   []string{"2s", "10s"},
			WhatsNewPolicy: string(domain.WhatsNewFirstSeen),
		},
		Analysis:  tomlAnalysis{MinSeverity: string(domain.SeverityWarning), Timeout: "10s"},
		Replica:   tomlReplica{Timeout: "5s"},
		Watchlist: tomlWatchlist{Keywords: []string{"rezoning", "annexation"}},
		Sources: []tomlSource{{
			ID:        "city-commission",
			Type:      string(domain.SourceAgenda),
			Name:      "City Commission",
			Frequency: "6h",
			Enabled:   &enabled,
			Collector: string(domain.CollectorSpool),
			Path:      "spool/city-commission",
		}},
	}

	data, err := toml.Marshal(example)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
