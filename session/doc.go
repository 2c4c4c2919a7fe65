// Package session tracks issued token pairs per account.
//
// A [Session] stores SHA-256 hashes of the current access and refresh tokens,
// never the raw values. A session is usable only while it is not revoked and
// not past its expiry; dead sessions reject refresh and bearer use.
//
// [RedisStore] keeps each session in a Redis hash with secondary keys for the
// current refresh hash, retired refresh hashes (reuse detection) and a
// per-account index. Mutations that must be atomic run as Lua scripts.
//
// # What this package must NOT do
//
//   - Interpret JWTs or make authorization decisions.
//   - Store raw tokens or any other plaintext secret.
package session
