package driving

import (
	"context"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

// Orchestrator runs the collection pipeline over configured sources.
type Orchestrator interface {
	// Run executes one pipeline run. The returned run is complete even when
	// some or all jobs failed; an error is returned only when the run could
	// not be started or recorded.
	Run(ctx context.Context, opts RunOptions) (*domain.PipelineRun, error)

	// Sources returns the configured sources in configuration order.
	Sources() []domain.Source
}

// RunOptions selects what a run processes.
type RunOptions struct {
	// SourceIDs restricts the run to these sources. Empty means all
	// enabled sources.
	SourceIDs []string

	// Force runs selected sources even when they are not due.
	// Naming sources explicitly implies Force.
	Force bool
}
