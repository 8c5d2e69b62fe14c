// Package httpjson collects raw records from a JSON document served over
// HTTP. Requests are throttled per source with a token bucket.
package httpjson

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/custodia-labs/civicwatch/internal/collectors"
	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driven"
)

// Ensure Collector implements the interface.
var _ driven.Collector = (*Collector)(nil)

// Default configuration values.
const (
	DefaultTimeout  = 60 * time.Second
	DefaultMaxBytes = 32 << 20
	userAgent       = "civicwatch"
)

// Config holds configuration for the HTTP collector.
type Config struct {
	// Client overrides the HTTP client. Its timeout should exceed the
	// pipeline's collect timeout, which bounds each attempt.
	Client *http.Client

	// MaxBytes caps the response size (default: 32 MiB).
	MaxBytes int64
}

// Collector fetches a source's URL and decodes the body as records.
type Collector struct {
	client   *http.Client
	maxBytes int64
	limiters *Limiters
}

// New creates an HTTP collector.
func New(cfg Config) *Collector {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: DefaultTimeout}
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	return &Collector{
		client:   cfg.Client,
		maxBytes: cfg.MaxBytes,
		limiters: NewLimiters(),
	}
}

// Collect implements driven.Collector.
//
// Status codes map to retry classes: 429 wraps domain.ErrRateLimited and
// honours Retry-After on the next attempt, 5xx and transport failures wrap
// domain.ErrSourceUnavailable, other non-2xx codes wrap
// domain.ErrInvalidInput and are not retried.
func (c *Collector) Collect(ctx context.Context, source *domain.Source) ([]domain.RawRecord, error) {
	cfg := &source.Collector
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: url is empty", domain.ErrInvalidInput)
	}

	limiter := c.limiters.For(source.ID, cfg.RatePerSecond, cfg.Burst)
	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", domain.ErrInvalidInput, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		limiter.Backoff(retryAfter(resp.Header.Get("Retry-After")))
		return nil, fmt.Errorf("%w: %s returned 429", domain.ErrRateLimited, cfg.URL)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s returned %d", domain.ErrSourceUnavailable, cfg.URL, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: %s returned %d", domain.ErrInvalidInput, cfg.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrSourceUnavailable, err)
	}
	if int64(len(body)) > c.maxBytes {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", domain.ErrInvalidInput, c.maxBytes)
	}

	return collectors.DecodeRecords(source.ID, body, cfg.ItemsKey, 0)
}

// retryAfter parses a Retry-After header in seconds or HTTP-date form.
func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
