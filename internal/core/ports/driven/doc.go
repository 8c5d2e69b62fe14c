// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - Collector: Fetches raw records for a source
//   - Adapter: Normalises raw records into civic events
//   - AdapterRegistry: Selects the adapter for a source type
//   - EventStore: Event persistence with change detection
//   - AlertStore: Append-only alert persistence
//   - RunStore: Pipeline run history
//   - ScheduleStore: Per-source last-run tracking
//   - RuleSource: Supplies rule definitions
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - Replicator: Best-effort copy of stored events to a secondary store
//   - DeepAnalyzer: Post-processing hook for high-severity events
//   - PipelineMetrics: Run and job instrumentation
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, collector, or normaliser package
package driven
