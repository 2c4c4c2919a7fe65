// Package metrics turns audit events into Prometheus counters.
//
// [Collector] implements the engine's audit sink. Every event increments
// lexauth_auth_events_total{event, outcome}; the events listed in [Defs]
// also get a dedicated lexauth_*_total counter. Dropped audit events are
// exported as lexauth_audit_dropped_total.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry. Callers mount Handler.
//   - Mutate engine state.
package metrics
