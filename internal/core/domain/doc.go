// Package domain defines the core business entities for civicwatch.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - CivicEvent: A normalised piece of local-government activity
//   - RawRecord: A semi-structured record from a collector
//   - Rule and Condition: The declarative alerting language
//   - Alert: The output of a rule matching an event
//   - PipelineRun and JobResult: The auditable run report
//   - Source: A configured collection source
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
