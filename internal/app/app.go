// Package app builds the civicwatch object graph from a configuration.
// Everything is constructed explicitly here; no package holds global
// services.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/custodia-labs/civicwatch/internal/adapters/driven/analysis/webhook"
	"github.com/custodia-labs/civicwatch/internal/adapters/driven/config/file"
	"github.com/custodia-labs/civicwatch/internal/adapters/driven/metrics"
	"github.com/custodia-labs/civicwatch/internal/adapters/driven/storage/postgres"
	"github.com/custodia-labs/civicwatch/internal/adapters/driven/storage/replica"
	"github.com/custodia-labs/civicwatch/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/civicwatch/internal/collectors"
	"github.com/custodia-labs/civicwatch/internal/collectors/httpjson"
	"github.com/custodia-labs/civicwatch/internal/collectors/spool"
	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driven"
	"github.com/custodia-labs/civicwatch/internal/core/services"
	"github.com/custodia-labs/civicwatch/internal/logger"
	"github.com/custodia-labs/civicwatch/internal/normalisers/agenda"
	"github.com/custodia-labs/civicwatch/internal/normalisers/notice"
	"github.com/custodia-labs/civicwatch/internal/normalisers/permit"
	"github.com/custodia-labs/civicwatch/internal/normalisers/watchlist"
)

// App holds the constructed services.
type App struct {
	Config *file.Config

	Orchestrator *services.Orchestrator
	Rules        *services.RulesEngine
	Events       *services.EventService
	Alerts       *services.AlertService
	Runs         *services.RunService
	Metrics      *metrics.Metrics

	store   *sqlite.Store
	closers []func() error
}

// Options adjust construction.
type Options struct {
	// Collector replaces the spool/http collector mux. Used by tests.
	Collector driven.Collector

	// SkipReplica disables the Postgres replica even when configured.
	SkipReplica bool
}

// New builds an App from cfg. The caller must Close it.
func New(ctx context.Context, cfg *file.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics.New()}

	registry := NewRegistry(cfg.Watchlist)
	if err := registry.CheckSources(cfg.Sources); err != nil {
		return nil, err
	}

	rules, err := newRulesEngine(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Rules = rules

	store, err := sqlite.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	logger.Debug("Store: %s", store.Path())

	events := a.replicatedEvents(ctx, store.EventStore(), opts.SkipReplica)

	collector := opts.Collector
	if collector == nil {
		collector = NewCollector()
	}

	var analyzer driven.DeepAnalyzer
	if cfg.Analysis.WebhookURL != "" {
		w, err := webhook.New(webhook.Config{URL: cfg.Analysis.WebhookURL, Timeout: cfg.Analysis.Timeout})
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		analyzer = w
	}

	a.Orchestrator = services.NewOrchestrator(services.OrchestratorDeps{
		Sources:   cfg.Sources,
		Collector: collector,
		Adapters:  registry,
		Events:    events,
		Alerts:    store.AlertStore(),
		Rules:     rules,
		Runs:      store.RunStore(),
		Schedules: store.ScheduleStore(),
		Analyzer:  analyzer,
		Metrics:   a.Metrics,
	}, cfg.Pipeline)
	a.Events = services.NewEventService(events, cfg.WhatsNewPolicy)
	a.Alerts = services.NewAlertService(store.AlertStore())
	a.Runs = services.NewRunService(store.RunStore(), store.ScheduleStore(), cfg.Sources)
	return a, nil
}

// NewRegistry registers every source adapter with a shared watchlist tagger.
func NewRegistry(wl domain.Watchlist) *services.AdapterRegistry {
	tagger := watchlist.New(wl)
	return services.NewAdapterRegistry(
		agenda.New(tagger),
		permit.New(tagger),
		notice.New(tagger),
	)
}

// NewCollector returns the collector mux with the spool and http collectors.
func NewCollector() *collectors.Mux {
	mux := collectors.NewMux()
	mux.Register(domain.CollectorSpool, spool.New())
	mux.Register(domain.CollectorHTTP, httpjson.New(httpjson.Config{}))
	return mux
}

// RulesPath returns the configured rules file, or rules.yaml next to the
// config file.
func RulesPath(cfg *file.Config) string {
	if cfg.RulesFile != "" {
		return cfg.RulesFile
	}
	return filepath.Join(filepath.Dir(cfg.Path), "rules.yaml")
}

// newRulesEngine loads the rules file. Without an explicit rules_file a
// missing default file means no rules.
func newRulesEngine(ctx context.Context, cfg *file.Config) (*services.RulesEngine, error) {
	engine, err := services.NewRulesEngine(ctx, file.NewRulesFile(RulesPath(cfg)))
	if err != nil && cfg.RulesFile == "" && errors.Is(err, domain.ErrNotFound) {
		logger.Warn("no rules file at %s; running without rules", RulesPath(cfg))
		return services.NewStaticRulesEngine(nil)
	}
	return engine, err
}

// replicatedEvents wraps the primary store with the Postgres replica when
// one is configured and reachable. An unreachable replica is logged and
// skipped.
func (a *App) replicatedEvents(ctx context.Context, primary driven.EventStore, skip bool) driven.EventStore {
	dsn := a.Config.Replica.PostgresDSN
	if dsn == "" || skip {
		return primary
	}
	r, err := postgres.Connect(ctx, postgres.Config{DSN: dsn})
	if err != nil {
		logger.Warn("postgres replica disabled: %v", err)
		return primary
	}
	a.closers = append(a.closers, func() error { r.Close(); return nil })
	return replica.New(primary, []driven.Replicator{r},
		replica.WithTimeout(a.Config.Replica.Timeout),
		replica.WithMetrics(a.Metrics),
	)
}

// Close releases resources in reverse construction order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
