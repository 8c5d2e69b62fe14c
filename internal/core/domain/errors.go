package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown source or collector type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrMissingField indicates a required raw record field is absent.
	ErrMissingField = errors.New("missing required field")

	// ErrRateLimited indicates the source rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrSourceUnavailable indicates the source could not be reached.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrRunCancelled indicates the run was cancelled before a job started.
	ErrRunCancelled = errors.New("run cancelled")

	// ErrRunInProgress indicates another run is already executing.
	ErrRunInProgress = errors.New("run in progress")
)

// CollectionError reports that a source's collection step failed after
// all retries. The cause is external (unreachable, rate limited, unparsable).
type CollectionError struct {
	SourceID string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *CollectionError) Error() string {
	return fmt.Sprintf("collect %s: failed after %d attempt(s): %v", e.SourceID, e.Attempts, e.Err)
}

// Unwrap returns the cause.
func (e *CollectionError) Unwrap() error {
	return e.Err
}

// AdapterError reports that a single raw record could not be normalised.
type AdapterError struct {
	SourceID string
	Position int
	Err      error
}

// Error implements the error interface.
func (e *AdapterError) Error() string {
	return fmt.Sprintf("normalise %s record %d: %v", e.SourceID, e.Position, e.Err)
}

// Unwrap returns the cause.
func (e *AdapterError) Unwrap() error {
	return e.Err
}

// StoreError reports that persisting a specific event failed.
type StoreError struct {
	NaturalKey string
	Op         string
	Err        error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.NaturalKey, e.Err)
}

// Unwrap returns the cause.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// RuleConfigError reports that a rule set is invalid. It collects every
// problem found so a single load reports all of them.
type RuleConfigError struct {
	Source   string
	Problems []string
	Err      error
}

// Error implements the error interface.
func (e *RuleConfigError) Error() string {
	var sb strings.Builder
	sb.WriteString("invalid rule configuration")
	if e.Source != "" {
		sb.WriteString(" in ")
		sb.WriteString(e.Source)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	for _, p := range e.Problems {
		sb.WriteString("\n  - ")
		sb.WriteString(p)
	}
	return sb.String()
}

// Unwrap returns the cause, if any.
func (e *RuleConfigError) Unwrap() error {
	return e.Err
}
