package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

// WatchService keeps the pipeline running: due sources on an interval and
// spool sources as soon as new files land.
type WatchService interface {
	// Watch blocks until ctx is cancelled.
	Watch(ctx context.Context, opts WatchOptions) error
}

// WatchOptions configure Watch.
type WatchOptions struct {
	// Interval between scheduled runs of due sources. Zero disables
	// scheduled runs.
	Interval time.Duration

	// Settle coalesces spool signals arriving within this window.
	Settle time.Duration

	// OnRun is called after every run. Optional.
	OnRun func(run *domain.PipelineRun, err error)
}
