package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driving"
)

var (
	runForce bool
	runJSON  bool
)

var runCmd = &cobra.Command{
	Use:   "run [source-id...]",
	Short: "Collect from sources and raise alerts",
	Long: `Runs the pipeline once. Without arguments every enabled source that is
due is collected; --force collects them regardless of schedule. Naming
sources runs exactly those sources, even when disabled or not due.

A source that fails does not stop the others. The command exits with an
error only when every source failed.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVarP(&runForce, "force", "f", false, "run sources even when not due")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "output the run report as JSON")
	rootCmd.AddCommand(runCmd)
}

// errRunFailed is returned when every job of a run failed.
var errRunFailed = errors.New("all sources failed")

func runRun(cmd *cobra.Command, args []string) error {
	orch, err := requireOrchestrator(cmd)
	if err != nil {
		return err
	}

	run, err := orch.Run(cmd.Context(), driving.RunOptions{SourceIDs: args, Force: runForce})
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	if runJSON {
		if err := printJSON(cmd, run); err != nil {
			return err
		}
	} else {
		printRun(cmd, run)
	}

	if run.Status == domain.RunFailed {
		return errRunFailed
	}
	return nil
}
