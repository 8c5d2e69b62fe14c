// Package sqlite provides the persistent SQLite implementation of the
// event, alert, run and schedule stores.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. All stores share one database:
//
//   - EventStore: civic events with NEW/UPDATED/UNCHANGED classification
//   - AlertStore: append-only alerts, one per rule and event revision
//   - RunStore: pipeline run history
//   - ScheduleStore: per-source last-run state
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
// Timestamps are stored as Unix nanoseconds in UTC.
//
// # Data Location
//
// By default, the database is stored at ~/.civicwatch/data/civicwatch.db
//
// # Thread Safety
//
// All operations are thread-safe. Writes run in immediate transactions
// (WAL mode, busy timeout) and saves of one natural key are serialised
// in-process, so concurrent saves of the same record yield exactly one NEW.
package sqlite
