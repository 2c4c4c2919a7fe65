// Package lexauth is the authentication and authorization core of Lexicon:
// password login with optional TOTP, JWT access tokens backed by revocable
// sessions, rotating refresh tokens, password reset, API keys and RBAC.
//
// An [Engine] is assembled once through [Builder] and is safe for concurrent
// use afterwards. Persistence is supplied by the caller through [Store] and
// [SessionStore]; store/memory and store/postgres provide implementations and
// session.RedisStore is used when a Redis client is configured.
//
// # Errors
//
// Every operation returns one of the sentinel kinds in errors.go, joined with
// a more specific cause. Callers branch on the kind with errors.Is; the cause
// is recorded in audit events and never needs to reach an end user.
//
// # What this package must NOT do
//
//   - Persist raw passwords, refresh tokens, reset tokens, API keys, backup
//     codes or unencrypted TOTP secrets.
//   - Reveal whether an email is registered through Login or
//     RequestPasswordReset.
//   - Import a transport. HTTP lives in middleware and httpapi.
package lexauth
