package driven

import (
	"context"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

// RuleSource supplies rule definitions to the rules engine.
type RuleSource interface {
	// Name identifies the source in error messages (e.g. a file path).
	Name() string

	// Load reads the current rule definitions. Parse failures should be
	// reported as *domain.RuleConfigError.
	Load(ctx context.Context) ([]domain.Rule, error)
}
