package app

import (
	"context"
	"errors"
	"time"

	"github.com/custodia-labs/civicwatch/internal/adapters/driven/metrics"
	"github.com/custodia-labs/civicwatch/internal/collectors/spool"
	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driving"
	"github.com/custodia-labs/civicwatch/internal/core/services"
	"github.com/custodia-labs/civicwatch/internal/logger"
)

// DefaultSettle is the spool signal coalescing window.
const DefaultSettle = 2 * time.Second

var _ driving.WatchService = (*App)(nil)

// Watch serves metrics when configured, runs due sources every interval
// and triggers spool sources on file changes. It blocks until ctx is
// cancelled.
func (a *App) Watch(ctx context.Context, opts driving.WatchOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	report := func(run *domain.PipelineRun, err error) {
		if opts.OnRun != nil {
			opts.OnRun(run, err)
		}
	}

	if a.Config.MetricsListen != "" {
		srv := metrics.NewServer(a.Config.MetricsListen, a.Metrics)
		srv.Start()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics shutdown: %v", err)
			}
		}()
	}

	watcher, err := spool.NewWatcher(a.Config.Sources)
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Stop() }()
	watcher.Start(ctx)
	logger.Info("Watching %d spool directories", watcher.Watched())

	trigger := services.NewTrigger(a.Orchestrator, watcher.Signals(), opts.Settle)
	trigger.OnRun = report
	triggerDone := make(chan error, 1)
	go func() { triggerDone <- trigger.Start(ctx) }()
	defer func() { _ = trigger.Stop() }()

	scheduled := func() {
		run, err := a.Orchestrator.Run(ctx, driving.RunOptions{})
		if err != nil && !errors.Is(err, domain.ErrRunInProgress) {
			logger.Warn("scheduled run: %v", err)
		}
		report(run, err)
	}

	var tick <-chan time.Time
	if opts.Interval > 0 {
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
		scheduled()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-triggerDone:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			// The watcher closed its channel; keep the schedule going.
			triggerDone = nil
			if tick == nil {
				<-ctx.Done()
				return nil
			}
		case <-tick:
			scheduled()
		}
	}
}
