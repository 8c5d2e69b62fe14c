package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

var (
	alertsRule     string
	alertsEvent    string
	alertsSource   string
	alertsSeverity string
	alertsSince    string
	alertsLimit    int
	alertsJSON     bool
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List raised alerts",
	Long: `Lists alerts, most urgent first.

--since accepts a date (2026-03-01), an RFC 3339 timestamp, or a duration
before now (24h, 7d).`,
	Args: cobra.NoArgs,
	RunE: runAlerts,
}

func init() {
	alertsCmd.Flags().StringVar(&alertsRule, "rule", "", "rule ID")
	alertsCmd.Flags().StringVar(&alertsEvent, "event", "", "event ID")
	alertsCmd.Flags().StringVar(&alertsSource, "source", "", "source ID")
	alertsCmd.Flags().StringVarP(&alertsSeverity, "severity", "s", "", "minimum severity (info, notable, warning, urgent)")
	alertsCmd.Flags().StringVar(&alertsSince, "since", "", "alerts created at or after")
	alertsCmd.Flags().IntVarP(&alertsLimit, "limit", "n", 50, "maximum number of alerts (0 for all)")
	alertsCmd.Flags().BoolVar(&alertsJSON, "json", false, "output alerts as JSON")
	rootCmd.AddCommand(alertsCmd)
}

func runAlerts(cmd *cobra.Command, _ []string) error {
	svc, err := requireAlerts(cmd)
	if err != nil {
		return err
	}

	query, err := buildAlertQuery(time.Now())
	if err != nil {
		return err
	}
	alerts, err := svc.List(cmd.Context(), query)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if alertsJSON {
		return printJSON(cmd, alerts)
	}
	printAlerts(cmd, alerts)
	return nil
}

// buildAlertQuery turns the flags into a query.
func buildAlertQuery(now time.Time) (domain.AlertQuery, error) {
	q := domain.AlertQuery{
		RuleID:   alertsRule,
		EventID:  alertsEvent,
		SourceID: alertsSource,
		Limit:    alertsLimit,
	}
	if alertsSeverity != "" {
		sev, err := domain.ParseSeverity(alertsSeverity)
		if err != nil {
			return q, err
		}
		q.MinSeverity = sev
	}
	since, err := parseTime(alertsSince, now)
	if err != nil {
		return q, err
	}
	q.Since = since
	return q, nil
}
