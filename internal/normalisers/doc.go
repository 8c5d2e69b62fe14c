// Package normalisers holds the source adapters. Each subpackage turns one
// source schema's raw records into domain.CivicEvent values.
//
// Adapters are registered with the AdapterRegistry at startup, keyed on
// domain.SourceType.
package normalisers
