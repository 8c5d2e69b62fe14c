package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	runsLimit int
	runsJSON  bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show pipeline run history",
	Args:  cobra.NoArgs,
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show one run report",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsSchedulesCmd = &cobra.Command{
	Use:   "schedules",
	Short: "Show when each source last ran",
	Args:  cobra.NoArgs,
	RunE:  runRunsSchedules,
}

func init() {
	runsCmd.PersistentFlags().BoolVar(&runsJSON, "json", false, "output as JSON")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum number of runs (0 for all)")
	runsCmd.AddCommand(runsShowCmd, runsSchedulesCmd)
	rootCmd.AddCommand(runsCmd)
}

func runRunsList(cmd *cobra.Command, _ []string) error {
	svc, err := requireRuns(cmd)
	if err != nil {
		return err
	}
	runs, err := svc.ListRuns(cmd.Context(), runsLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if runsJSON {
		return printJSON(cmd, runs)
	}
	if len(runs) == 0 {
		cmd.Println("No runs yet.")
		return nil
	}

	st := stylesFor(cmd.OutOrStdout())
	for i := range runs {
		r := &runs[i]
		t := r.Totals()
		cmd.Printf("  %s  %-8s %s  %d jobs, %d new, %d updated, %d alerts\n",
			formatTime(r.StartedAt), st.status(string(r.Status)), st.muted.Render(r.ID),
			len(r.Jobs), t.EventsCreated, t.EventsUpdated, t.AlertsGenerated)
	}
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	svc, err := requireRuns(cmd)
	if err != nil {
		return err
	}
	run, err := svc.GetRun(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("run %s: %w", args[0], err)
	}
	if runsJSON {
		return printJSON(cmd, run)
	}
	printRun(cmd, run)
	return nil
}

func runRunsSchedules(cmd *cobra.Command, _ []string) error {
	svc, err := requireRuns(cmd)
	if err != nil {
		return err
	}
	schedules, err := svc.Schedules(cmd.Context())
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}
	if runsJSON {
		return printJSON(cmd, schedules)
	}
	if len(schedules) == 0 {
		cmd.Println("No sources configured.")
		return nil
	}

	st := stylesFor(cmd.OutOrStdout())
	cmd.Printf("  %-20s %-16s %-16s %s\n", "SOURCE", "LAST RUN", "LAST SUCCESS", "LAST ERROR")
	for i := range schedules {
		s := &schedules[i]
		cmd.Printf("  %-20s %-16s %-16s %s\n", s.SourceID, formatTime(s.LastRun), formatTime(s.LastSuccess),
			st.danger.Render(s.LastError))
	}
	return nil
}
