package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driving"
	"github.com/custodia-labs/civicwatch/internal/logger"
)

// selectSources returns the sources a run should process, in configuration
// order. Naming sources explicitly bypasses the enabled and due checks.
func (o *Orchestrator) selectSources(ctx context.Context, opts driving.RunOptions) ([]domain.Source, error) {
	if len(opts.SourceIDs) > 0 {
		wanted := make(map[string]bool, len(opts.SourceIDs))
		for _, id := range opts.SourceIDs {
			wanted[id] = true
		}
		var selected []domain.Source
		for i := range o.deps.Sources {
			if wanted[o.deps.Sources[i].ID] {
				selected = append(selected, o.deps.Sources[i])
				delete(wanted, o.deps.Sources[i].ID)
			}
		}
		for _, id := range opts.SourceIDs {
			if wanted[id] {
				return nil, fmt.Errorf("source %s: %w", id, domain.ErrNotFound)
			}
		}
		return selected, nil
	}

	now := o.now()
	var selected []domain.Source
	for i := range o.deps.Sources {
		src := &o.deps.Sources[i]
		if !src.Enabled {
			continue
		}
		if opts.Force || o.isDue(ctx, src, now) {
			selected = append(selected, *src)
		} else {
			logger.Debug("Source %s not due", src.ID)
		}
	}
	return selected, nil
}

// isDue checks a source against its stored schedule. A schedule that
// cannot be read makes the source due, so a broken schedule store never
// silently stops collection.
func (o *Orchestrator) isDue(ctx context.Context, src *domain.Source, now time.Time) bool {
	if o.deps.Schedules == nil {
		return src.IsDue(nil, now)
	}
	schedule, err := o.deps.Schedules.GetSchedule(ctx, src.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Warn("source %s: read schedule: %v", src.ID, err)
		}
		return src.IsDue(nil, now)
	}
	return src.IsDue(schedule, now)
}

// Trigger runs the orchestrator whenever sources signal new data, as
// reported by a watcher. Signals arriving within the settle window are
// coalesced into one run.
type Trigger struct {
	orch    driving.Orchestrator
	signals <-chan string
	settle  time.Duration

	// OnRun is called after each triggered run. Optional.
	OnRun func(run *domain.PipelineRun, err error)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewTrigger creates a trigger reading source IDs from signals.
func NewTrigger(orch driving.Orchestrator, signals <-chan string, settle time.Duration) *Trigger {
	return &Trigger{orch: orch, signals: signals, settle: settle}
}

// Start runs the trigger loop. It blocks until ctx is cancelled, Stop is
// called or the signal channel closes.
func (t *Trigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = true
	t.stopCh = make(chan struct{})
	t.wg.Add(1)
	t.mu.Unlock()
	defer t.wg.Done()
	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	pending := make(map[string]bool)
	signals := t.signals
	var timer *time.Timer
	var fire <-chan time.Time
	arm := func() {
		if timer == nil {
			timer = time.NewTimer(t.settle)
			fire = timer.C
		}
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.stopCh:
			return nil
		case id, ok := <-signals:
			if !ok {
				// Flush what is pending; a busy orchestrator gets one
				// more settle window per retry.
				signals = nil
				if len(pending) == 0 || t.runPending(ctx, pending) {
					return nil
				}
				arm()
				continue
			}
			pending[id] = true
			arm()
		case <-fire:
			timer, fire = nil, nil
			if !t.runPending(ctx, pending) {
				arm()
				continue
			}
			pending = make(map[string]bool)
			if signals == nil {
				return nil
			}
		}
	}
}

// Stop ends the trigger loop and waits for it to return.
func (t *Trigger) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	close(t.stopCh)
	t.mu.Unlock()

	t.wg.Wait()
	return nil
}

// runPending runs the pending sources. It reports false when another run
// held the orchestrator, in which case pending must be kept for a retry.
func (t *Trigger) runPending(ctx context.Context, pending map[string]bool) bool {
	// Keep configuration order so runs are reproducible.
	var ids []string
	for _, src := range t.orch.Sources() {
		if pending[src.ID] {
			ids = append(ids, src.ID)
		}
	}
	if len(ids) == 0 {
		return true
	}

	logger.Info("Triggered run for %v", ids)
	run, err := t.orch.Run(ctx, driving.RunOptions{SourceIDs: ids})
	if errors.Is(err, domain.ErrRunInProgress) {
		logger.Debug("Run in progress, retrying %v in %s", ids, t.settle)
		return false
	}
	if err != nil {
		logger.Warn("triggered run failed: %v", err)
	}
	if t.OnRun != nil {
		t.OnRun(run, err)
	}
	return true
}
