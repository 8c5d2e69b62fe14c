package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

func flaggedEvent() (*domain.CivicEvent, []domain.Alert) {
	e := &domain.CivicEvent{
		ID:         "evt-1",
		NaturalKey: "keywest:meeting:CC-2026-02-10",
		Type:       domain.EventMeeting,
		SourceID:   "keywest",
		Timestamp:  time.Date(2026, 2, 10, 18, 0, 0, 0, time.UTC),
		Title:      "City Commission Regular Meeting",
		Location:   &domain.GeoPoint{Lat: 24.556, Lon: -81.8},
		Tags:       []string{"rezoning"},
		Revision:   2,
	}
	alerts := []domain.Alert{{RuleID: "rezoning", Severity: domain.SeverityWarning, Message: "rezoning: City Commission Regular Meeting"}}
	return e, alerts
}

// TestAnalyzer_Analyze tests the request body and response mapping
func TestAnalyzer_Analyze(t *testing.T) {
	var got analyzeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"summary":"Rezoning of a waterfront parcel","tags":["waterfront"]}`))
	}))
	defer server.Close()

	a, err := New(Config{URL: server.URL, Headers: map[string]string{"Authorization": "Bearer token"}})
	require.NoError(t, err)

	event, alerts := flaggedEvent()
	result, err := a.Analyze(context.Background(), event, alerts)
	require.NoError(t, err)

	assert.Equal(t, &domain.AnalysisResult{
		EventID: "evt-1",
		Summary: "Rezoning of a waterfront parcel",
		Tags:    []string{"waterfront"},
	}, result)

	assert.Equal(t, "keywest:meeting:CC-2026-02-10", got.Event.NaturalKey)
	assert.Equal(t, "meeting", got.Event.Type)
	assert.Equal(t, 2, got.Event.Revision)
	require.Len(t, got.Alerts, 1)
	assert.Equal(t, alertPayload{RuleID: "rezoning", Severity: "warning", Message: "rezoning: City Commission Regular Meeting"}, got.Alerts[0])
}

// TestAnalyzer_NoContent tests empty responses
func TestAnalyzer_NoContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	a, err := New(Config{URL: server.URL})
	require.NoError(t, err)

	event, alerts := flaggedEvent()
	result, err := a.Analyze(context.Background(), event, alerts)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", result.EventID)
	assert.Empty(t, result.Summary)
}

// TestAnalyzer_ErrorStatus tests non-2xx handling
func TestAnalyzer_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	a, err := New(Config{URL: server.URL})
	require.NoError(t, err)

	event, alerts := flaggedEvent()
	_, err = a.Analyze(context.Background(), event, alerts)
	assert.ErrorContains(t, err, "status 503")
	assert.ErrorContains(t, err, "model overloaded")
}

// TestAnalyzer_BadJSON tests undecodable responses
func TestAnalyzer_BadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"summary":`))
	}))
	defer server.Close()

	a, err := New(Config{URL: server.URL})
	require.NoError(t, err)

	event, alerts := flaggedEvent()
	_, err = a.Analyze(context.Background(), event, alerts)
	assert.ErrorContains(t, err, "decode response")
}

// TestAnalyzer_ContextCancelled tests that the request honours ctx
func TestAnalyzer_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	a, err := New(Config{URL: server.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	event, alerts := flaggedEvent()
	_, err = a.Analyze(ctx, event, alerts)
	assert.Error(t, err)
}

// TestNew_RequiresURL tests configuration validation
func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
