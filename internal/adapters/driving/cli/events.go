package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

var eventsJSON bool

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Query collected events",
	Long: `Lists events from the event store. Use the subcommands for common
questions, or "events list" with filters.`,
}

var newWindow string

var eventsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Show what is new",
	Long: `Lists events that are new within the window. Whether an update to an
existing event counts as new is set by pipeline.whats_new_policy.`,
	Args: cobra.NoArgs,
	RunE: runEventsNew,
}

var eventsUpcomingCmd = &cobra.Command{
	Use:   "upcoming",
	Short: "Show upcoming meetings and notices",
	Args:  cobra.NoArgs,
	RunE:  runEventsUpcoming,
}

var eventsEntityCmd = &cobra.Command{
	Use:   "entity [name]",
	Short: "Show events mentioning a person, organisation or address",
	Args:  cobra.ExactArgs(1),
	RunE:  runEventsEntity,
}

var eventsRegionCmd = &cobra.Command{
	Use:   "region [name]",
	Short: "Show events in a region",
	Args:  cobra.ExactArgs(1),
	RunE:  runEventsRegion,
}

var eventsShowCmd = &cobra.Command{
	Use:   "show [event-id]",
	Short: "Show one event",
	Args:  cobra.ExactArgs(1),
	RunE:  runEventsShow,
}

var (
	listSource string
	listTypes  []string
	listTags   []string
	listEntity string
	listRegion string
	listFrom   string
	listTo     string
	listLimit  int
)

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List events matching filters",
	Long: `Lists events matching every given filter, soonest first.

Times accept a date (2026-03-01), an RFC 3339 timestamp, or a duration
before now (24h, 7d).`,
	Args: cobra.NoArgs,
	RunE: runEventsList,
}

func init() {
	eventsCmd.PersistentFlags().BoolVar(&eventsJSON, "json", false, "output events as JSON")

	eventsNewCmd.Flags().StringVarP(&newWindow, "window", "w", "7d", "how far back to look")

	eventsListCmd.Flags().StringVar(&listSource, "source", "", "source ID")
	eventsListCmd.Flags().StringSliceVar(&listTypes, "type", nil, "event type (repeatable)")
	eventsListCmd.Flags().StringSliceVar(&listTags, "tag", nil, "required tag (repeatable)")
	eventsListCmd.Flags().StringVar(&listEntity, "entity", "", "entity name contains")
	eventsListCmd.Flags().StringVar(&listRegion, "region", "", "region")
	eventsListCmd.Flags().StringVar(&listFrom, "from", "", "events at or after")
	eventsListCmd.Flags().StringVar(&listTo, "to", "", "events before")
	eventsListCmd.Flags().IntVarP(&listLimit, "limit", "n", 50, "maximum number of events (0 for all)")

	eventsCmd.AddCommand(eventsNewCmd, eventsUpcomingCmd, eventsEntityCmd, eventsRegionCmd,
		eventsShowCmd, eventsListCmd)
	rootCmd.AddCommand(eventsCmd)
}

func runEventsNew(cmd *cobra.Command, _ []string) error {
	svc, err := requireEvents(cmd)
	if err != nil {
		return err
	}
	window, err := parseWindow(newWindow)
	if err != nil {
		return err
	}
	events, err := svc.WhatsNew(cmd.Context(), window)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	return outputEvents(cmd, events, fmt.Sprintf("Nothing new in the last %s.", newWindow))
}

func runEventsUpcoming(cmd *cobra.Command, _ []string) error {
	svc, err := requireEvents(cmd)
	if err != nil {
		return err
	}
	events, err := svc.Upcoming(cmd.Context())
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	return outputEvents(cmd, events, "No upcoming events.")
}

func runEventsEntity(cmd *cobra.Command, args []string) error {
	svc, err := requireEvents(cmd)
	if err != nil {
		return err
	}
	events, err := svc.ByEntity(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	return outputEvents(cmd, events, fmt.Sprintf("No events mention %q.", args[0]))
}

func runEventsRegion(cmd *cobra.Command, args []string) error {
	svc, err := requireEvents(cmd)
	if err != nil {
		return err
	}
	events, err := svc.ByRegion(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	return outputEvents(cmd, events, fmt.Sprintf("No events in %s.", args[0]))
}

func runEventsShow(cmd *cobra.Command, args []string) error {
	svc, err := requireEvents(cmd)
	if err != nil {
		return err
	}
	event, err := svc.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("event %s: %w", args[0], err)
	}
	if eventsJSON {
		return printJSON(cmd, event)
	}
	printEvent(cmd, event)

	// Alerts are informational here; a missing alert service is not an error.
	if alertService != nil {
		alerts, err := alertService.List(cmd.Context(), domain.AlertQuery{EventID: event.ID})
		if err == nil && len(alerts) > 0 {
			cmd.Println()
			printAlerts(cmd, alerts)
		}
	}
	return nil
}

func runEventsList(cmd *cobra.Command, _ []string) error {
	svc, err := requireEvents(cmd)
	if err != nil {
		return err
	}

	query, err := buildEventQuery(time.Now())
	if err != nil {
		return err
	}
	events, err := svc.Query(cmd.Context(), query)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	return outputEvents(cmd, events, "No events found.")
}

// buildEventQuery turns the list flags into a query.
func buildEventQuery(now time.Time) (domain.EventQuery, error) {
	q := domain.EventQuery{
		SourceID: listSource,
		Tags:     listTags,
		Entity:   listEntity,
		Region:   listRegion,
		Limit:    listLimit,
	}
	for _, t := range listTypes {
		et, err := domain.ParseEventType(strings.TrimSpace(t))
		if err != nil {
			return q, err
		}
		q.Types = append(q.Types, et)
	}
	var err error
	if q.From, err = parseTime(listFrom, now); err != nil {
		return q, err
	}
	if q.To, err = parseTime(listTo, now); err != nil {
		return q, err
	}
	return q, nil
}

func outputEvents(cmd *cobra.Command, events []domain.CivicEvent, empty string) error {
	if eventsJSON {
		return printJSON(cmd, events)
	}
	printEvents(cmd, events, empty)
	return nil
}
