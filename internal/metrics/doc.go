// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Pool acquire outcomes and lease occupancy
//   - Session health and reconnect results
//   - HTTP facade request durations
//
// All collectors live on a caller-supplied registry; every handle is
// nil-safe so components can run unmetered in tests.
package metrics
