// Package server implements the collector: ingestion, liveness, and the
// aggregation query surface.
//
// Owns:
//   - HTTP routing, handlers, and request/response contracts under /api/v1
//   - Bearer-key authentication (bcrypt hash scan over registered agents)
//   - Time-series storage and the lazy liveness sweep
//
// Does not own:
//   - Agent-side measurement (internal/agent)
//   - Wire types (internal/shared)
//
// Invariants:
//   - A snapshot and its peer rows are written in one transaction; partial
//     snapshots are never visible to queries
//   - Read paths that list or summarize agents sweep staleness first, in
//     the same transaction as the read
//   - Submission endpoints authenticate before touching storage
package server
