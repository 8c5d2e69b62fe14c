package driven

import (
	"context"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

// DeepAnalyzer is the post-processing hook for events that raised
// high-severity alerts. Failures are logged by the caller and never
// change a job's outcome.
type DeepAnalyzer interface {
	Analyze(ctx context.Context, event *domain.CivicEvent, alerts []domain.Alert) (*domain.AnalysisResult, error)
}
