// Package flows contains the orchestration behind the Engine's credential
// checks: login, refresh, bearer validation and API key validation.
//
// Each Run function takes a dependency struct of interfaces and function
// fields and returns a result carrying a failure kind. The Engine maps kinds
// to public errors and audit events.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import lexauth (to avoid import cycles).
//   - Emit audit events or choose public error kinds.
package flows
