package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/civicwatch/internal/adapters/driven/storage/keylock"
	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driven"
)

// Ensure EventStore implements the interface.
var _ driven.EventStore = (*EventStore)(nil)

// EventStore is an in-memory implementation of driven.EventStore.
// The compare-and-write of a save is serialised per natural key; the map
// lock is only held for individual reads and writes.
type EventStore struct {
	keys *keylock.Locker

	mu     sync.RWMutex
	events map[string]domain.CivicEvent
	byKey  map[string]string

	now   func() time.Time
	newID func() string
}

// Option configures an in-memory store.
type Option func(*EventStore)

// WithClock sets the clock used for ingestion timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *EventStore) { s.now = now }
}

// WithIDs sets the event ID generator.
func WithIDs(newID func() string) Option {
	return func(s *EventStore) { s.newID = newID }
}

// NewEventStore creates a new in-memory event store.
func NewEventStore(opts ...Option) *EventStore {
	s := &EventStore{
		keys:   keylock.New(),
		events: make(map[string]domain.CivicEvent),
		byKey:  make(map[string]string),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save stores the event and classifies the outcome.
func (s *EventStore) Save(ctx context.Context, event *domain.CivicEvent) (domain.SaveOutcome, error) {
	if strings.TrimSpace(event.NaturalKey) == "" {
		return "", &domain.StoreError{Op: "save", Err: fmt.Errorf("%w: natural key is required", domain.ErrInvalidInput)}
	}
	if err := ctx.Err(); err != nil {
		return "", &domain.StoreError{NaturalKey: event.NaturalKey, Op: "save", Err: err}
	}
	if event.ContentHash == "" {
		event.Seal()
	}

	unlock := s.keys.Lock(event.NaturalKey)
	defer unlock()

	s.mu.RLock()
	id, exists := s.byKey[event.NaturalKey]
	existing := s.events[id]
	s.mu.RUnlock()

	now := s.now().UTC()
	stored := *event
	var outcome domain.SaveOutcome
	switch {
	case !exists:
		stored.ID = s.newID()
		stored.FirstSeenAt = now
		stored.UpdatedAt = now
		stored.Revision = 1
		stored.EvaluatedHash = ""
		outcome = domain.SaveNew
	case existing.ContentHash == event.ContentHash:
		event.ID = existing.ID
		event.FirstSeenAt = existing.FirstSeenAt
		event.UpdatedAt = existing.UpdatedAt
		event.Revision = existing.Revision
		event.EvaluatedHash = existing.EvaluatedHash
		return domain.SaveUnchanged, nil
	default:
		stored.ID = existing.ID
		stored.FirstSeenAt = existing.FirstSeenAt
		stored.UpdatedAt = now
		stored.Revision = existing.Revision + 1
		stored.EvaluatedHash = existing.EvaluatedHash
		outcome = domain.SaveUpdated
	}
	if err := ctx.Err(); err != nil {
		return "", &domain.StoreError{NaturalKey: event.NaturalKey, Op: "save", Err: err}
	}

	s.mu.Lock()
	s.events[stored.ID] = cloneEvent(&stored)
	s.byKey[stored.NaturalKey] = stored.ID
	s.mu.Unlock()
	*event = stored
	return outcome, nil
}

// MarkEvaluated records the hash whose alerts are stored.
func (s *EventStore) MarkEvaluated(_ context.Context, id, contentHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return &domain.StoreError{Op: "mark evaluated", Err: domain.ErrNotFound}
	}
	if e.ContentHash == contentHash {
		e.EvaluatedHash = contentHash
		s.events[id] = e
	}
	return nil
}

// Get retrieves an event by ID.
func (s *EventStore) Get(_ context.Context, id string) (*domain.CivicEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneEvent(&e)
	return &out, nil
}

// GetByNaturalKey retrieves an event by natural key.
func (s *EventStore) GetByNaturalKey(ctx context.Context, naturalKey string) (*domain.CivicEvent, error) {
	s.mu.RLock()
	id, ok := s.byKey[naturalKey]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.Get(ctx, id)
}

// Query returns events matching the filter, newest first.
func (s *EventStore) Query(_ context.Context, query domain.EventQuery) ([]domain.CivicEvent, error) {
	s.mu.RLock()
	var out []domain.CivicEvent
	for id := range s.events {
		e := s.events[id]
		if query.Matches(&e) {
			out = append(out, cloneEvent(&e))
		}
	}
	s.mu.RUnlock()

	domain.SortEvents(out)
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

// Len returns the number of stored events.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// cloneEvent copies an event so callers cannot mutate stored slices.
func cloneEvent(e *domain.CivicEvent) domain.CivicEvent {
	out := *e
	if e.Location != nil {
		loc := *e.Location
		out.Location = &loc
	}
	out.Entities = append([]domain.Entity(nil), e.Entities...)
	out.Documents = append([]domain.Document(nil), e.Documents...)
	out.Tags = append([]string(nil), e.Tags...)
	out.RawData = append([]byte(nil), e.RawData...)
	return out
}
