// Package cli implements the civicwatch command line, a driving adapter
// over the core services.
package cli

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/civicwatch/internal/core/ports/driving"
	"github.com/custodia-labs/civicwatch/internal/logger"
)

// version is set at build time.
var version = "dev"

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "civicwatch",
	Short: "Track local government activity",
	Long: `civicwatch collects meeting agendas, permits and public notices from
configured sources, detects what is new or changed, and raises alerts
from a set of rules.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		return closeServices()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.civicwatch/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	rootCmd.SetOut(os.Stdout)
	return rootCmd.ExecuteContext(ctx)
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// Services are the driving ports the commands use.
type Services struct {
	Orchestrator driving.Orchestrator
	Events       driving.EventService
	Alerts       driving.AlertService
	Rules        driving.RulesEngine
	Runs         driving.RunService
	Watch        driving.WatchService
}

// Bootstrap builds the services for a config file. An empty path means
// the default location. The returned func releases resources.
type Bootstrap func(ctx context.Context, configPath string) (*Services, func() error, error)

// Package-level services, set by SetServices or lazily by the bootstrap.
var (
	orchestrator driving.Orchestrator
	eventService driving.EventService
	alertService driving.AlertService
	rulesEngine  driving.RulesEngine
	runService   driving.RunService
	watchService driving.WatchService

	bootstrap Bootstrap
	closer    func() error
)

// SetServices injects services directly, bypassing the bootstrap.
func SetServices(s *Services) {
	if s == nil {
		s = &Services{}
	}
	orchestrator = s.Orchestrator
	eventService = s.Events
	alertService = s.Alerts
	rulesEngine = s.Rules
	runService = s.Runs
	watchService = s.Watch
}

// SetBootstrap sets the function that builds services on first use.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// loadServices runs the bootstrap once for commands that need services.
// Services injected with SetServices take precedence.
func loadServices(cmd *cobra.Command) error {
	if bootstrap == nil || orchestrator != nil || eventService != nil {
		return nil
	}
	s, release, err := bootstrap(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	SetServices(s)
	closer = release
	return nil
}

// closeServices releases bootstrapped services.
func closeServices() error {
	if closer == nil {
		return nil
	}
	err := closer()
	closer = nil
	SetServices(nil)
	return err
}

// errNotConfigured reports a missing service.
func errNotConfigured(name string) error {
	return errors.New(name + " service not configured")
}

// requireEvents returns the event service.
func requireEvents(cmd *cobra.Command) (driving.EventService, error) {
	if err := loadServices(cmd); err != nil {
		return nil, err
	}
	if eventService == nil {
		return nil, errNotConfigured("event")
	}
	return eventService, nil
}

// requireAlerts returns the alert service.
func requireAlerts(cmd *cobra.Command) (driving.AlertService, error) {
	if err := loadServices(cmd); err != nil {
		return nil, err
	}
	if alertService == nil {
		return nil, errNotConfigured("alert")
	}
	return alertService, nil
}

// requireOrchestrator returns the orchestrator.
func requireOrchestrator(cmd *cobra.Command) (driving.Orchestrator, error) {
	if err := loadServices(cmd); err != nil {
		return nil, err
	}
	if orchestrator == nil {
		return nil, errNotConfigured("run")
	}
	return orchestrator, nil
}

// requireRules returns the rules engine.
func requireRules(cmd *cobra.Command) (driving.RulesEngine, error) {
	if err := loadServices(cmd); err != nil {
		return nil, err
	}
	if rulesEngine == nil {
		return nil, errNotConfigured("rules")
	}
	return rulesEngine, nil
}

// requireRuns returns the run history service.
func requireRuns(cmd *cobra.Command) (driving.RunService, error) {
	if err := loadServices(cmd); err != nil {
		return nil, err
	}
	if runService == nil {
		return nil, errNotConfigured("run history")
	}
	return runService, nil
}

// requireWatch returns the watch service.
func requireWatch(cmd *cobra.Command) (driving.WatchService, error) {
	if err := loadServices(cmd); err != nil {
		return nil, err
	}
	if watchService == nil {
		return nil, errNotConfigured("watch")
	}
	return watchService, nil
}
