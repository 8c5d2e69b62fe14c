package driving

import (
	"context"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

// RulesEngine evaluates events against the active rule set.
type RulesEngine interface {
	// Evaluate returns one alert per enabled rule the event satisfies.
	Evaluate(event *domain.CivicEvent) []domain.Alert

	// Reload re-reads the rule source. On failure the active set is kept.
	Reload(ctx context.Context) error

	// Rules returns a copy of the active rule set.
	Rules() []domain.Rule
}
