package middleware

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/lexauth"
)

// RequireRole allows callers holding at least one of roles. It must run
// after Authenticate.
func RequireRole(engine Authenticator, roles ...string) func(http.Handler) http.Handler {
	return require(engine, lexauth.Requirement{AnyRole: roles})
}

// RequirePermission allows callers holding every one of permissions. It must
// run after Authenticate.
func RequirePermission(engine Authenticator, permissions ...string) func(http.Handler) http.Handler {
	return require(engine, lexauth.Requirement{AllPermissions: permissions})
}

func require(engine Authenticator, req lexauth.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := lexauth.IdentityFromContext(r.Context())
			if !ok || engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			err := engine.Authorize(r.Context(), id, req)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, lexauth.ErrUnauthenticated):
				http.Error(w, "unauthorized", http.StatusUnauthorized)
			default:
				http.Error(w, "forbidden", http.StatusForbidden)
			}
		})
	}
}
