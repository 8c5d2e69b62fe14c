// Package collectors provides implementations of the driven.Collector
// interface. A collector fetches raw JSON records for a source and knows
// nothing about record schemas; adapters interpret the fields.
//
// Collectors are selected per source by CollectorKind through Mux.
package collectors
