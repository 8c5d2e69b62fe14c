package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

func TestAlertsCmd_Use(t *testing.T) {
	assert.Equal(t, "alerts", alertsCmd.Use)
}

// TestAlertsCmd_Lists tests the alert list output.
func TestAlertsCmd_Lists(t *testing.T) {
	svc := &mockAlertService{alerts: []domain.Alert{{
		ID:        "alert-1",
		RuleID:    "demolition-issued",
		EventID:   "evt-9",
		SourceID:  "permits",
		Severity:  domain.SeverityUrgent,
		Message:   "Demolition permit issued at 12 Duval St",
		CreatedAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}}}
	cleanup := setupServices(&Services{Alerts: svc})
	defer cleanup()

	out, err := execute("alerts")

	require.NoError(t, err)
	assert.Contains(t, out, "urgent")
	assert.Contains(t, out, "Demolition permit issued at 12 Duval St")
	assert.Contains(t, out, "rule demolition-issued · source permits · event evt-9")
	assert.Contains(t, out, "Total: 1 alerts")
	assert.Equal(t, 50, svc.query.Limit)
}

// TestAlertsCmd_Empty tests the empty message.
func TestAlertsCmd_Empty(t *testing.T) {
	cleanup := setupServices(&Services{Alerts: &mockAlertService{}})
	defer cleanup()

	out, err := execute("alerts")

	require.NoError(t, err)
	assert.Contains(t, out, "No alerts found.")
}

// TestAlertsCmd_Filters tests that flags become a query.
func TestAlertsCmd_Filters(t *testing.T) {
	svc := &mockAlertService{}
	cleanup := setupServices(&Services{Alerts: svc})
	defer cleanup()

	_, err := execute("alerts", "--rule", "rezoning", "--source", "commission",
		"--severity", "Warning", "--since", "2026-03-01", "-n", "0")

	require.NoError(t, err)
	q := svc.query
	assert.Equal(t, "rezoning", q.RuleID)
	assert.Equal(t, "commission", q.SourceID)
	assert.Equal(t, domain.SeverityWarning, q.MinSeverity)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.Local), q.Since)
	assert.Equal(t, 0, q.Limit)
}

// TestAlertsCmd_InvalidSeverity tests that unknown severities are rejected.
func TestAlertsCmd_InvalidSeverity(t *testing.T) {
	cleanup := setupServices(&Services{Alerts: &mockAlertService{}})
	defer cleanup()

	_, err := execute("alerts", "--severity", "critical")

	assert.Error(t, err)
}

// TestBuildAlertQuery_SinceDuration tests a relative --since.
func TestBuildAlertQuery_SinceDuration(t *testing.T) {
	resetFlags()
	alertsSince = "24h"
	defer resetFlags()

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	q, err := buildAlertQuery(now)

	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), q.Since)
	assert.Empty(t, q.MinSeverity)
}
