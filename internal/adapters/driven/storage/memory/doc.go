// Package memory provides in-memory implementations of the storage ports.
// Service tests use them in place of SQLite; nothing survives the process.
package memory
