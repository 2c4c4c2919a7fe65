// Package internal holds helpers private to lexauth: identifier generation
// and opaque token hashing.
//
// # Sub-packages
//
//   - audit: audit event model, sinks and the async dispatcher
//   - flows: per-operation orchestration used by the root Engine
//   - rate: Redis fixed-window rate limiting
//   - config: server configuration loading
//   - logging: slog logger construction
//
// # What this package must NOT do
//
//   - Depend on the root package, except for config, which assembles it.
package internal
