// Package password implements credential hashing with an argon2id primary
// scheme and a bcrypt legacy scheme.
//
// # Output format
//
// Argon2id digests use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher.Verify] returns a rehash flag when a digest verified under a
// non-primary scheme or with weaker parameters, so callers can forward-migrate
// the stored digest on the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive digests.
//   - Enforce password policy. Length rules live in the Engine.
//   - Log plaintext passwords.
package password
