package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driving"
	"github.com/custodia-labs/civicwatch/internal/logger"
)

var (
	watchInterval time.Duration
	watchSettle   time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep collecting until interrupted",
	Long: `Runs due sources every interval and collects spool sources as soon as
new files arrive. Metrics are served when metrics.listen is set.

Send SIGHUP to reload the rules file. A rules file that fails validation
is reported and the previous rules stay active.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", 5*time.Minute, "how often to check for due sources (0 disables)")
	watchCmd.Flags().DurationVar(&watchSettle, "settle", 2*time.Second, "wait this long after a spool change before running")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	svc, err := requireWatch(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if engine, err := requireRules(cmd); err == nil {
		stopReload := reloadOnHangup(ctx, engine)
		defer stopReload()
	}

	st := stylesFor(cmd.OutOrStdout())
	cmd.Println("Watching for changes. Press Ctrl+C to stop.")
	err = svc.Watch(ctx, driving.WatchOptions{
		Interval: watchInterval,
		Settle:   watchSettle,
		OnRun: func(run *domain.PipelineRun, err error) {
			if err != nil {
				if !errors.Is(err, domain.ErrRunInProgress) && !errors.Is(err, context.Canceled) {
					cmd.Printf("%s run failed: %v\n", formatTime(time.Now()), err)
				}
				return
			}
			if run == nil || len(run.Jobs) == 0 {
				return
			}
			t := run.Totals()
			cmd.Printf("%s %s %d sources, %d new, %d updated, %d alerts\n",
				formatTime(run.EndedAt), st.status(string(run.Status)), len(run.Jobs),
				t.EventsCreated, t.EventsUpdated, t.AlertsGenerated)
		},
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// reloadOnHangup reloads the rules on SIGHUP until ctx ends. The returned
// func stops listening.
func reloadOnHangup(ctx context.Context, engine driving.RulesEngine) func() {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-hup:
				if err := engine.Reload(ctx); err != nil {
					logger.Error("rules reload failed, keeping previous rules: %v", err)
					continue
				}
				logger.Info("Reloaded %d rules", len(engine.Rules()))
			}
		}
	}()

	return func() {
		signal.Stop(hup)
		close(done)
	}
}
