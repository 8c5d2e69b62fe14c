package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

// timeLayout is used for all human-readable timestamps.
const timeLayout = "2006-01-02 15:04"

// printJSON writes v as indented JSON.
func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

// parseWindow parses a duration, also accepting whole days ("7d").
func parseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: invalid duration %q", domain.ErrInvalidInput, s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: invalid duration %q", domain.ErrInvalidInput, s)
	}
	return d, nil
}

// parseTime parses a date, an RFC 3339 timestamp, or a duration meaning
// that long before now. Empty returns the zero time.
func parseTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t, nil
	}
	if d, err := parseWindow(s); err == nil {
		return now.Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid time %q (use 2006-01-02, RFC 3339 or a duration like 24h or 7d)",
		domain.ErrInvalidInput, s)
}

// formatTime formats t in local time, or "-" when zero.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

// printEvents writes an event list.
func printEvents(cmd *cobra.Command, events []domain.CivicEvent, empty string) {
	st := stylesFor(cmd.OutOrStdout())
	if len(events) == 0 {
		cmd.Println(empty)
		return
	}
	for i := range events {
		e := &events[i]
		cmd.Printf("  %s  %s\n", st.muted.Render(formatTime(e.Timestamp)), st.title.Render(e.Title))
		cmd.Printf("      %s · %s", e.Type, e.SourceID)
		if e.Region != "" {
			cmd.Printf(" · %s", e.Region)
		}
		cmd.Println()
		if len(e.Tags) > 0 {
			cmd.Printf("      Tags: %s\n", strings.Join(e.Tags, ", "))
		}
		cmd.Printf("      ID: %s\n", st.muted.Render(e.ID))
		cmd.Println()
	}
	cmd.Printf("Total: %d events\n", len(events))
}

// printEvent writes one event in full.
func printEvent(cmd *cobra.Command, e *domain.CivicEvent) {
	st := stylesFor(cmd.OutOrStdout())
	cmd.Printf("%s\n\n", st.title.Render(e.Title))
	cmd.Printf("  ID:          %s\n", e.ID)
	cmd.Printf("  Key:         %s\n", e.NaturalKey)
	cmd.Printf("  Type:        %s\n", e.Type)
	cmd.Printf("  Source:      %s\n", e.SourceID)
	cmd.Printf("  When:        %s\n", formatTime(e.Timestamp))
	if e.Region != "" {
		cmd.Printf("  Region:      %s\n", e.Region)
	}
	if e.Location != nil {
		cmd.Printf("  Location:    %.6f, %.6f\n", e.Location.Lat, e.Location.Lon)
	}
	if len(e.Tags) > 0 {
		cmd.Printf("  Tags:        %s\n", strings.Join(e.Tags, ", "))
	}
	cmd.Printf("  First seen:  %s\n", formatTime(e.FirstSeenAt))
	cmd.Printf("  Updated:     %s (revision %d)\n", formatTime(e.UpdatedAt), e.Revision)

	if len(e.Entities) > 0 {
		cmd.Println("\n  Entities:")
		for _, ent := range e.Entities {
			role := string(ent.Kind)
			if ent.Role != "" {
				role = ent.Role
			}
			cmd.Printf("    %s (%s)\n", ent.Name, role)
		}
	}
	if len(e.Documents) > 0 {
		cmd.Println("\n  Documents:")
		for _, d := range e.Documents {
			if d.Kind != "" {
				cmd.Printf("    [%s] %s\n", d.Kind, d.URL)
			} else {
				cmd.Printf("    %s\n", d.URL)
			}
		}
	}
	if e.Description != "" {
		cmd.Printf("\n%s\n", e.Description)
	}
}

// printAlerts writes an alert list.
func printAlerts(cmd *cobra.Command, alerts []domain.Alert) {
	st := stylesFor(cmd.OutOrStdout())
	if len(alerts) == 0 {
		cmd.Println("No alerts found.")
		return
	}
	for i := range alerts {
		a := &alerts[i]
		cmd.Printf("  %-8s %s  %s\n", st.severity(a.Severity), st.muted.Render(formatTime(a.CreatedAt)), a.Message)
		cmd.Printf("           rule %s · source %s · event %s\n", a.RuleID, a.SourceID, a.EventID)
	}
	cmd.Printf("\nTotal: %d alerts\n", len(alerts))
}

// printRun writes a run report.
func printRun(cmd *cobra.Command, run *domain.PipelineRun) {
	st := stylesFor(cmd.OutOrStdout())
	cmd.Printf("Run %s %s (%s)\n", run.ID, st.status(string(run.Status)),
		run.EndedAt.Sub(run.StartedAt).Round(time.Millisecond))
	if len(run.Jobs) == 0 {
		cmd.Println("  No sources were due.")
		return
	}

	cmd.Printf("\n  %-20s %-8s %5s %8s %10s %7s %7s\n",
		"SOURCE", "STATUS", "NEW", "UPDATED", "UNCHANGED", "ALERTS", "ERRORS")
	for i := range run.Jobs {
		j := &run.Jobs[i]
		cmd.Printf("  %-20s %-8s %5d %8d %10d %7d %7d\n",
			j.SourceID, st.status(string(j.Status)), j.EventsCreated, j.EventsUpdated,
			j.EventsUnchanged, j.AlertsGenerated, j.ErrorCount())
	}

	for i := range run.Jobs {
		j := &run.Jobs[i]
		if j.Error != "" {
			cmd.Printf("\n  %s: %s\n", j.SourceID, st.danger.Render(j.Error))
		}
		if verbose {
			for _, e := range j.Errors {
				cmd.Printf("    %s\n", st.muted.Render(e))
			}
		}
	}

	t := run.Totals()
	cmd.Printf("\nTotals: %d new, %d updated, %d unchanged, %d alerts, %d errors\n",
		t.EventsCreated, t.EventsUpdated, t.EventsUnchanged, t.AlertsGenerated, t.ErrorCount())
}
