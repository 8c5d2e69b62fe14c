// Command civicwatch collects civic events and raises alerts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/civicwatch/internal/adapters/driven/config/file"
	"github.com/custodia-labs/civicwatch/internal/adapters/driving/cli"
	"github.com/custodia-labs/civicwatch/internal/app"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.SetVersion(version)
	cli.SetBootstrap(bootstrap)

	if err := cli.Execute(ctx); err != nil {
		os.Exit(1)
	}
}

// bootstrap loads the configuration and builds the services. An explicit
// config path must exist; the default path falls back to defaults.
func bootstrap(ctx context.Context, configPath string) (*cli.Services, func() error, error) {
	var cfg *file.Config
	var err error
	if configPath != "" {
		cfg, err = file.Load(configPath)
	} else {
		path, pathErr := file.DefaultPath()
		if pathErr != nil {
			return nil, nil, pathErr
		}
		cfg, err = file.LoadOrDefault(path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return nil, nil, err
	}
	return &cli.Services{
		Orchestrator: a.Orchestrator,
		Events:       a.Events,
		Alerts:       a.Alerts,
		Rules:        a.Rules,
		Runs:         a.Runs,
		Watch:        a,
	}, a.Close, nil
}
