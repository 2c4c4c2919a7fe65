// Package jwt issues and parses the typed bearer tokens used by lexauth.
//
// Every token carries a "type" claim ("access" or "refresh"). [Manager.Parse]
// only checks signature, structure and expiry; callers must follow it with
// [VerifyType] so a refresh token is never accepted where an access token is
// expected, and the reverse.
package jwt
