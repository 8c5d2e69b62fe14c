// Package webhook provides a deep-analysis adapter that posts flagged
// events to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driven"
)

// Ensure Analyzer implements the interface.
var _ driven.DeepAnalyzer = (*Analyzer)(nil)

// DefaultTimeout bounds one webhook call.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of an error response is quoted.
const maxErrorBody = 512

// Config holds configuration for the webhook analyser.
type Config struct {
	// URL receives a POST per flagged event.
	URL string

	// Timeout is the request timeout (default: 10s).
	Timeout time.Duration

	// Headers are added to every request.
	Headers map[string]string
}

// Analyzer posts events and their alerts as JSON and reads back an
// AnalysisResult.
type Analyzer struct {
	client  *http.Client
	url     string
	headers map[string]string
}

// analyzeRequest is the webhook request body.
type analyzeRequest struct {
	Event  eventPayload   `json:"event"`
	Alerts []alertPayload `json:"alerts"`
}

type eventPayload struct {
	ID          string            `json:"id"`
	NaturalKey  string            `json:"naturalKey"`
	Type        string            `json:"type"`
	SourceID    string            `json:"sourceId"`
	Timestamp   time.Time         `json:"timestamp"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Location    *domain.GeoPoint  `json:"location,omitempty"`
	Region      string            `json:"region,omitempty"`
	Entities    []domain.Entity   `json:"entities,omitempty"`
	Documents   []domain.Document `json:"documents,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Revision    int               `json:"revision"`
}

type alertPayload struct {
	RuleID   string `json:"ruleId"`
	Category string `json:"category,omitempty"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// analyzeResponse is the webhook response body.
type analyzeResponse struct {
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

// New creates a webhook analyser.
func New(cfg Config) (*Analyzer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: webhook url is required", domain.ErrInvalidInput)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Analyzer{
		client:  &http.Client{Timeout: cfg.Timeout},
		url:     cfg.URL,
		headers: cfg.Headers,
	}, nil
}

// Analyze sends one event. Any non-2xx status is an error. An empty 204
// response yields an empty result.
func (a *Analyzer) Analyze(ctx context.Context, event *domain.CivicEvent, alerts []domain.Alert) (*domain.AnalysisResult, error) {
	body := analyzeRequest{
		Event: eventPayload{
			ID:          event.ID,
			NaturalKey:  event.NaturalKey,
			Type:        string(event.Type),
			SourceID:    event.SourceID,
			Timestamp:   event.Timestamp,
			Title:       event.Title,
			Description: event.Description,
			Location:    event.Location,
			Region:      event.Region,
			Entities:    event.Entities,
			Documents:   event.Documents,
			Tags:        event.Tags,
			Revision:    event.Revision,
		},
		Alerts: make([]alertPayload, len(alerts)),
	}
	for i := range alerts {
		body.Alerts[i] = alertPayload{
			RuleID:   alerts[i].RuleID,
			Category: alerts[i].Category,
			Severity: string(alerts[i].Severity),
			Message:  alerts[i].Message,
		}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("webhook error (status %d): %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	result := &domain.AnalysisResult{EventID: event.ID}
	if resp.StatusCode == http.StatusNoContent {
		return result, nil
	}

	var out analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}
	result.Summary = out.Summary
	result.Tags = out.Tags
	return result, nil
}
