package domain

import (
	"fmt"
	"strings"
	"time"
)

// SourceType identifies the schema of a source and therefore its adapter.
// The set is closed and resolved once at configuration load.
type SourceType string

const (
	// SourceAgenda is a meeting agenda feed.
	SourceAgenda SourceType = "agenda"

	// SourcePermits is a building/land-use permit feed.
	SourcePermits SourceType = "permits"

	// SourceNotices is a public/legal notice feed.
	SourceNotices SourceType = "notices"
)

// SourceTypes returns all supported source types in a stable order.
func SourceTypes() []SourceType {
	return []SourceType{SourceAgenda, SourcePermits, SourceNotices}
}

// IsValid returns true if the source type is recognised.
func (t SourceType) IsValid() bool {
	switch t {
	case SourceAgenda, SourcePermits, SourceNotices:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t SourceType) String() string {
	return string(t)
}

// ParseSourceType converts a configuration string to a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	t := SourceType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: source type %q", ErrUnsupportedType, s)
	}
	return t, nil
}

// CollectorKind selects the collector implementation for a source.
type CollectorKind string

const (
	// CollectorSpool reads JSON files from a local directory.
	CollectorSpool CollectorKind = "spool"

	// CollectorHTTP fetches a JSON document over HTTP.
	CollectorHTTP CollectorKind = "http"
)

// IsValid returns true if the collector kind is recognised.
func (k CollectorKind) IsValid() bool {
	return k == CollectorSpool || k == CollectorHTTP
}

// CollectorConfig holds collector-specific settings for a source.
type CollectorConfig struct {
	// Kind selects the collector.
	Kind CollectorKind

	// URL is the endpoint for the http collector.
	URL string

	// Path is the directory for the spool collector.
	Path string

	// ItemsKey names the array inside a JSON object response.
	// Empty means the document itself is the array.
	ItemsKey string

	// Headers are extra request headers for the http collector.
	Headers map[string]string

	// RatePerSecond and Burst throttle http requests.
	RatePerSecond float64
	Burst         int
}

// Source is a configured collection source.
type Source struct {
	// ID is the unique identifier for the source.
	ID string

	// Type selects the adapter.
	Type SourceType

	// Name is the human-readable name for this source.
	Name string

	// Region is the default region for events that do not carry one.
	Region string

	// Frequency is the minimum time between runs. Zero means every run.
	Frequency time.Duration

	// Enabled sources take part in runs.
	Enabled bool

	// Collector configures how raw records are fetched.
	Collector CollectorConfig
}

// Validate checks the source configuration.
func (s *Source) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: source id is required", ErrInvalidInput)
	}
	if !s.Type.IsValid() {
		return fmt.Errorf("source %s: %w: type %q", s.ID, ErrUnsupportedType, s.Type)
	}
	if s.Frequency < 0 {
		return fmt.Errorf("source %s: %w: negative frequency", s.ID, ErrInvalidInput)
	}
	return nil
}

// DisplayName returns the name if set, otherwise the ID.
func (s *Source) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// SourceSchedule tracks when a source last ran.
type SourceSchedule struct {
	// SourceID links to the Source.
	SourceID string

	// LastRun is when the source's last job started.
	LastRun time.Time

	// LastSuccess is when the source's last successful job ended.
	LastSuccess time.Time

	// LastError contains the last job error message, if any.
	LastError string
}

// IsDue reports whether a source should run at now given its schedule.
// A source that never ran is always due.
func (s *Source) IsDue(schedule *SourceSchedule, now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if schedule == nil || schedule.LastRun.IsZero() || s.Frequency == 0 {
		return true
	}
	return !schedule.LastRun.Add(s.Frequency).After(now)
}
