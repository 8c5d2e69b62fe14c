// Package replica decorates an event store with best-effort replication.
//
// The primary store stays authoritative. After a save commits as NEW or
// UPDATED each replicator receives the event under its own timeout. Replica
// failures are logged and counted; they never fail or roll back the save.
package replica

import (
	"context"
	"time"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driven"
	"github.com/custodia-labs/civicwatch/internal/logger"
)

// DefaultTimeout bounds one replication call.
const DefaultTimeout = 5 * time.Second

// Ensure Store implements the interface.
var _ driven.EventStore = (*Store)(nil)

// Store is a driven.EventStore that forwards changed events to replicas.
type Store struct {
	driven.EventStore

	replicas []driven.Replicator
	timeout  time.Duration
	metrics  driven.PipelineMetrics
}

// Option configures a Store.
type Option func(*Store)

// WithTimeout sets the per-replica timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMetrics records replication latency and failures.
func WithMetrics(m driven.PipelineMetrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New wraps primary. With no replicas the decorator is a pass-through.
func New(primary driven.EventStore, replicas []driven.Replicator, opts ...Option) *Store {
	s := &Store{EventStore: primary, replicas: replicas, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save writes to the primary and then replicates changed events.
func (s *Store) Save(ctx context.Context, event *domain.CivicEvent) (domain.SaveOutcome, error) {
	outcome, err := s.EventStore.Save(ctx, event)
	if err != nil || !outcome.Changed() {
		return outcome, err
	}

	// The primary has committed; replication must not be cut short by
	// the caller going away.
	rctx := context.WithoutCancel(ctx)
	for _, r := range s.replicas {
		s.replicate(rctx, r, event)
	}
	return outcome, nil
}

func (s *Store) replicate(ctx context.Context, r driven.Replicator, event *domain.CivicEvent) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := r.Replicate(ctx, event)
	if s.metrics != nil {
		s.metrics.Replicated(r.Name(), time.Since(start), err)
	}
	if err != nil {
		logger.Warn("replicate %s to %s: %v", event.NaturalKey, r.Name(), err)
	}
}
