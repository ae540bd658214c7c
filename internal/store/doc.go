// Package store provides SQLite-backed durable storage for patch runs.
//
// The store is an append-only audit log with:
//   - Runs: one row per manifest activation, keyed by a UUIDv7 run ID
//   - Installs: every patch the host accepted, with before/after fingerprints
//   - Diagnostics: every problem reported while patching
//
// # Ordering
//
// Runs carry a global seq; installs and diagnostics share a per-run seq.
// All queries order by seq, never by timestamps, so two identical runs read
// back identically.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
