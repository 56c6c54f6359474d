// Package store provides SQLite-backed run history.
//
// Every finished scenario run is written as one row in runs plus one row
// per executed step in step_outcomes. A run ID is written at most once, and
// Prune is the only path that deletes rows.
//
// # Ordering
//
// Runs are ordered by the seq column, assigned on insert. Queries never
// order by timestamps, so runs recorded with a manual clock read back in
// insertion order.
//
// # Connection
//
// The database runs in WAL mode with synchronous=NORMAL, waits up to five
// seconds for locks and enforces foreign keys. Schema upgrades are tracked
// in PRAGMA user_version.
//
// Diagnostics and step observations are stored as JSON text.
package store
