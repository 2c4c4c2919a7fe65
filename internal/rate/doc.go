// Package rate provides Redis-backed fixed-window counters for
// security-sensitive flows.
//
// # Window semantics
//
// INCR plus EXPIRE on the first hit of a window. Key suffixes under the
// configured prefix:
//   - login:acct:  failed logins per normalized email
//   - login:ip:    failed logins per client IP
//   - reset:       reset requests per normalized email
//   - mfa:         failed MFA codes per account
package rate
