// Package audit records security outcomes.
//
// # Components
//
//   - [Event]: one outcome with a ULID id, timestamp, type, account, session,
//     client metadata and a failure reason.
//   - [Sink]: event consumer. Implementations write JSON lines, log through
//     slog, publish to AMQP, fan out, or buffer into a channel.
//   - [Dispatcher]: buffered async relay with drop-if-full semantics.
//
// This package does not decide which events to emit; the Engine does.
// Events must never carry passwords, tokens, TOTP secrets or codes.
package audit
