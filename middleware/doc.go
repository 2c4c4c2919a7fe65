// Package middleware exposes net/http adapters around lexauth.Engine.
//
// # Guards
//
//   - [Authenticate] resolves a bearer token or API key and rejects the
//     request with 401 when neither verifies.
//   - [RequireRole] and [RequirePermission] reject authenticated callers
//     lacking a role or permission with 403.
//   - [RateLimit] throttles requests per client IP with a token bucket.
//
// Authenticate stores the identity with lexauth.WithIdentity; handlers read
// it back with lexauth.IdentityFromContext.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Every
// authentication and authorization decision is made by the Engine.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Access Redis or any store.
//   - Leak the failure cause to the client.
package middleware
