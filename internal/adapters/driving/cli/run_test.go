package cli

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

func TestRunCmd_Use(t *testing.T) {
	assert.Equal(t, "run [source-id...]", runCmd.Use)
}

func TestRunCmd_Long(t *testing.T) {
	assert.Contains(t, runCmd.Long, "--force")
	assert.Contains(t, runCmd.Long, "every source failed")
}

// TestRunCmd_PrintsReport tests the human-readable run report.
func TestRunCmd_PrintsReport(t *testing.T) {
	orch := &mockOrchestrator{run: testRun(domain.RunPartial)}
	cleanup := setupServices(&Services{Orchestrator: orch})
	defer cleanup()

	out, err := execute("run")

	require.NoError(t, err)
	assert.Contains(t, out, "Run run-1 PARTIAL (1.5s)")
	assert.Contains(t, out, "SOURCE")
	assert.Contains(t, out, "commission")
	assert.Contains(t, out, "permits: connection refused")
	assert.Contains(t, out, "Totals: 2 new, 1 updated, 0 unchanged, 1 alerts, 1 errors")
	assert.NotContains(t, out, "record 3: missing id")
	assert.Empty(t, orch.opts.SourceIDs)
	assert.False(t, orch.opts.Force)
}

// TestRunCmd_VerboseShowsRecordErrors tests that per-record errors are
// printed with --verbose.
func TestRunCmd_VerboseShowsRecordErrors(t *testing.T) {
	cleanup := setupServices(&Services{Orchestrator: &mockOrchestrator{run: testRun(domain.RunPartial)}})
	defer cleanup()

	out, err := execute("run", "--verbose")

	require.NoError(t, err)
	assert.Contains(t, out, "record 3: missing id")
}

// TestRunCmd_PassesSourcesAndForce tests argument handling.
func TestRunCmd_PassesSourcesAndForce(t *testing.T) {
	orch := &mockOrchestrator{run: testRun(domain.RunSuccess)}
	cleanup := setupServices(&Services{Orchestrator: orch})
	defer cleanup()

	_, err := execute("run", "commission", "permits", "--force")

	require.NoError(t, err)
	assert.Equal(t, []string{"commission", "permits"}, orch.opts.SourceIDs)
	assert.True(t, orch.opts.Force)
}

// TestRunCmd_NothingDue tests the report of an empty run.
func TestRunCmd_NothingDue(t *testing.T) {
	run := testRun(domain.RunSuccess)
	run.Jobs = nil
	cleanup := setupServices(&Services{Orchestrator: &mockOrchestrator{run: run}})
	defer cleanup()

	out, err := execute("run")

	require.NoError(t, err)
	assert.Contains(t, out, "No sources were due.")
}

// TestRunCmd_FailedRunReturnsError tests the exit status of a run in
// which every source failed.
func TestRunCmd_FailedRunReturnsError(t *testing.T) {
	cleanup := setupServices(&Services{Orchestrator: &mockOrchestrator{run: testRun(domain.RunFailed)}})
	defer cleanup()

	out, err := execute("run")

	assert.ErrorIs(t, err, errRunFailed)
	assert.Contains(t, out, "FAILED")
}

// TestRunCmd_OrchestratorError tests that start failures are wrapped.
func TestRunCmd_OrchestratorError(t *testing.T) {
	cleanup := setupServices(&Services{Orchestrator: &mockOrchestrator{err: domain.ErrRunInProgress}})
	defer cleanup()

	_, err := execute("run")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRunInProgress))
	assert.Contains(t, err.Error(), "run failed")
}

// TestRunCmd_JSON tests JSON output.
func TestRunCmd_JSON(t *testing.T) {
	cleanup := setupServices(&Services{Orchestrator: &mockOrchestrator{run: testRun(domain.RunSuccess)}})
	defer cleanup()

	out, err := execute("run", "--json")

	require.NoError(t, err)
	var got domain.PipelineRun
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "run-1", got.ID)
	assert.Len(t, got.Jobs, 2)
}
