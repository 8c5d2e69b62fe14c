package driven

import (
	"time"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

// PipelineMetrics receives instrumentation from the pipeline.
type PipelineMetrics interface {
	// EventSaved counts one save outcome for a source.
	EventSaved(sourceID string, outcome domain.SaveOutcome)

	// AlertsRaised counts alerts inserted for a source.
	AlertsRaised(sourceID string, severity domain.Severity, n int)

	// JobFinished records a completed job.
	JobFinished(result *domain.JobResult)

	// RunFinished records a completed run.
	RunFinished(run *domain.PipelineRun)

	// Replicated records one replication attempt.
	Replicated(target string, d time.Duration, err error)
}
