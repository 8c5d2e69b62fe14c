package httpjson

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default limits used when a source does not configure its own.
const (
	DefaultRatePerSecond = 1.0
	DefaultBurst         = 1
	DefaultBackoff       = 60 * time.Second
)

// RateLimiter is a token bucket plus a server-requested backoff window.
type RateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
	now     func() time.Time
}

// NewRateLimiter creates a limiter. Non-positive values select the defaults.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		perSecond = DefaultRatePerSecond
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		now:     time.Now,
	}
}

// Wait blocks until a request may be made, honouring any backoff first.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if d := retryAt.Sub(r.now()); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return r.limiter.Wait(ctx)
}

// Backoff blocks requests for d. Zero selects DefaultBackoff.
func (r *RateLimiter) Backoff(d time.Duration) {
	if d <= 0 {
		d = DefaultBackoff
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryAt = r.now().Add(d)
}

// Allow reports whether a request may be made now without waiting.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()
	if r.now().Before(retryAt) {
		return false
	}
	return r.limiter.Allow()
}

// Limiters holds one RateLimiter per source.
type Limiters struct {
	mu sync.Mutex
	m  map[string]*RateLimiter
}

// NewLimiters creates an empty set.
func NewLimiters() *Limiters {
	return &Limiters{m: make(map[string]*RateLimiter)}
}

// For returns the limiter for a source, creating it on first use.
// Limits are fixed at creation.
func (l *Limiters) For(sourceID string, perSecond float64, burst int) *RateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.m[sourceID]
	if !ok {
		r = NewRateLimiter(perSecond, burst)
		l.m[sourceID] = r
	}
	return r
}
