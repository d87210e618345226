// Package store provides a SQLite-backed journal of replication runs.
//
// Each run records its mode, the effective naming settings, its outcome and
// one row per processed collection with the destination it was written to,
// the document count and the terminal status.
//
// The journal is informational. Resume points are always derived from the
// destination, so deleting the database never changes what a run does.
//
// Ordering:
//   - Runs are listed newest first: ORDER BY started_at DESC, id DESC
//   - Collections of a run are listed in processing order: ORDER BY seq ASC
//
// Times are stored as RFC 3339 text in UTC.
package store
