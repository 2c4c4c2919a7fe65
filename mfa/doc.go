// Package mfa implements TOTP enrollment and verification plus one-time
// backup codes.
//
// An account moves through three states: no secret, pending (an encrypted
// secret is stored but MFA is not enabled) and active. This package is
// stateless; the Engine owns the transitions and persistence.
package mfa
