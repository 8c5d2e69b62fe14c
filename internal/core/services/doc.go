// Package services holds the civicwatch core logic behind the driving ports.
// The orchestrator runs each due source through collection, normalisation,
// storage and rule evaluation; the query services read through the driven
// stores.
//
// Services depend only on domain and the port interfaces.
package services
