package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driven"
)

// Ensure AlertStore implements the interface.
var _ driven.AlertStore = (*AlertStore)(nil)

type alertKey struct {
	ruleID, eventID, eventHash string
}

// AlertStore is an in-memory implementation of driven.AlertStore.
type AlertStore struct {
	mu     sync.RWMutex
	alerts []domain.Alert
	seen   map[alertKey]bool
}

// NewAlertStore creates a new in-memory alert store.
func NewAlertStore() *AlertStore {
	return &AlertStore{seen: make(map[alertKey]bool)}
}

// SaveAlerts appends alerts not already recorded for the same event revision.
func (s *AlertStore) SaveAlerts(_ context.Context, alerts []domain.Alert) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for i := range alerts {
		k := alertKey{alerts[i].RuleID, alerts[i].EventID, alerts[i].EventHash}
		if s.seen[k] {
			continue
		}
		s.seen[k] = true
		s.alerts = append(s.alerts, alerts[i])
		inserted++
	}
	return inserted, nil
}

// ListAlerts returns alerts matching the filter, newest first.
func (s *AlertStore) ListAlerts(_ context.Context, query domain.AlertQuery) ([]domain.Alert, error) {
	s.mu.RLock()
	var out []domain.Alert
	for i := range s.alerts {
		if query.Matches(&s.alerts[i]) {
			out = append(out, s.alerts[i])
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}
