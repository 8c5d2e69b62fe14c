package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driven"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driving"
)

// Ensure EventService implements the interface.
var _ driving.EventService = (*EventService)(nil)

// upcomingTypes are the event types listed by Upcoming by default.
var upcomingTypes = []domain.EventType{domain.EventMeeting, domain.EventPublicNotice}

// EventService answers queries over the event store.
type EventService struct {
	store  driven.EventStore
	policy domain.WhatsNewPolicy
	now    func() time.Time
}

// NewEventService creates an event service. An empty policy selects
// domain.WhatsNewFirstSeen.
func NewEventService(store driven.EventStore, policy domain.WhatsNewPolicy) *EventService {
	if policy == "" {
		policy = domain.WhatsNewFirstSeen
	}
	return &EventService{store: store, policy: policy, now: time.Now}
}

// Get retrieves an event by ID.
func (s *EventService) Get(ctx context.Context, id string) (*domain.CivicEvent, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: event id is required", domain.ErrInvalidInput)
	}
	return s.store.Get(ctx, id)
}

// Query returns events matching an arbitrary filter.
func (s *EventService) Query(ctx context.Context, query domain.EventQuery) ([]domain.CivicEvent, error) {
	return s.store.Query(ctx, query)
}

// WhatsNew returns recent events. Under WhatsNewFirstSeen only events first
// stored within the window are listed; under WhatsNewAnyChange events whose
// content changed within the window are listed too.
func (s *EventService) WhatsNew(ctx context.Context, window time.Duration) ([]domain.CivicEvent, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive", domain.ErrInvalidInput)
	}
	since := s.now().Add(-window)

	var q domain.EventQuery
	switch s.policy {
	case domain.WhatsNewAnyChange:
		q.UpdatedSince = since
	default:
		q.FirstSeenSince = since
	}
	return s.store.Query(ctx, q)
}

// Upcoming returns meetings and notices scheduled after now, soonest first.
func (s *EventService) Upcoming(ctx context.Context) ([]domain.CivicEvent, error) {
	now := s.now()
	events, err := s.store.Query(ctx, domain.EventQuery{Types: upcomingTypes, From: now})
	if err != nil {
		return nil, err
	}

	out := make([]domain.CivicEvent, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].IsUpcoming(now) {
			out = append(out, events[i])
		}
	}
	return out, nil
}

// ByEntity returns events mentioning an entity whose name contains name.
func (s *EventService) ByEntity(ctx context.Context, name string) ([]domain.CivicEvent, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: entity name is required", domain.ErrInvalidInput)
	}
	return s.store.Query(ctx, domain.EventQuery{Entity: strings.TrimSpace(name)})
}

// ByRegion returns events in a region.
func (s *EventService) ByRegion(ctx context.Context, region string) ([]domain.CivicEvent, error) {
	if strings.TrimSpace(region) == "" {
		return nil, fmt.Errorf("%w: region is required", domain.ErrInvalidInput)
	}
	return s.store.Query(ctx, domain.EventQuery{Region: strings.TrimSpace(region)})
}

// Ensure AlertService implements the interface.
var _ driving.AlertService = (*AlertService)(nil)

// AlertService answers queries over stored alerts.
type AlertService struct {
	store driven.AlertStore
}

// NewAlertService creates an alert service.
func NewAlertService(store driven.AlertStore) *AlertService {
	return &AlertService{store: store}
}

// List returns alerts matching the filter.
func (s *AlertService) List(ctx context.Context, query domain.AlertQuery) ([]domain.Alert, error) {
	if query.MinSeverity != "" && !query.MinSeverity.IsValid() {
		return nil, fmt.Errorf("%w: severity %q", domain.ErrInvalidInput, query.MinSeverity)
	}
	return s.store.ListAlerts(ctx, query)
}
