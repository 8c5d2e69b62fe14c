package domain

import (
	"fmt"
	"strings"
	"time"
)

// Severity is the urgency of an alert. Values are ordered.
type Severity string

const (
	// SeverityInfo is informational.
	SeverityInfo Severity = "info"

	// SeverityNotable deserves a look.
	SeverityNotable Severity = "notable"

	// SeverityWarning needs attention soon.
	SeverityWarning Severity = "warning"

	// SeverityUrgent needs attention now.
	SeverityUrgent Severity = "urgent"
)

// Rank returns the ordinal of the severity (1 = info .. 4 = urgent).
// Unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityNotable:
		return 2
	case SeverityWarning:
		return 3
	case SeverityUrgent:
		return 4
	default:
		return 0
	}
}

// IsValid returns true if the severity is recognised.
func (s Severity) IsValid() bool {
	return s.Rank() > 0
}

// AtLeast reports whether s is as urgent as other or more.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// String returns the string representation.
func (s Severity) String() string {
	return string(s)
}

// ParseSeverity converts a string to a Severity.
func ParseSeverity(v string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(v)))
	if !s.IsValid() {
		return "", fmt.Errorf("%w: severity %q", ErrInvalidInput, v)
	}
	return s, nil
}

// Alert is the permanent record of a rule matching an event.
// Alerts are never mutated or deleted by the pipeline.
type Alert struct {
	// ID is the unique identifier for the alert.
	ID string

	// RuleID is the rule that matched.
	RuleID string

	// Category is copied from the rule.
	Category string

	// EventID is the event that matched.
	EventID string

	// EventHash is the content hash of the event revision that matched.
	EventHash string

	// SourceID is the source of the event.
	SourceID string

	// Severity is copied verbatim from the rule.
	Severity Severity

	// Message is a human-readable summary.
	Message string

	// CreatedAt is when the alert was produced.
	CreatedAt time.Time
}

// AlertQuery filters stored alerts. Zero values mean "no filter".
type AlertQuery struct {
	RuleID      string
	EventID     string
	SourceID    string
	MinSeverity Severity
	Since       time.Time
	Limit       int
}

// HighestSeverity returns the most urgent severity among alerts, or "" if none.
func HighestSeverity(alerts []Alert) Severity {
	var top Severity
	for _, a := range alerts {
		if a.Severity.Rank() > top.Rank() {
			top = a.Severity
		}
	}
	return top
}

// AnalysisResult is the output of a deep-analysis pass over an event.
type AnalysisResult struct {
	// EventID is the analysed event.
	EventID string

	// Summary is a short free-text assessment.
	Summary string

	// Tags are extra labels suggested by the analyser. They are reported
	// only and never written back to the event.
	Tags []string
}

// Matches reports whether the alert satisfies every filter in the query.
// Limit is not applied.
func (q *AlertQuery) Matches(a *Alert) bool {
	if q.RuleID != "" && a.RuleID != q.RuleID {
		return false
	}
	if q.EventID != "" && a.EventID != q.EventID {
		return false
	}
	if q.SourceID != "" && a.SourceID != q.SourceID {
		return false
	}
	if q.MinSeverity != "" && !a.Severity.AtLeast(q.MinSeverity) {
		return false
	}
	if !q.Since.IsZero() && a.CreatedAt.Before(q.Since) {
		return false
	}
	return true
}
