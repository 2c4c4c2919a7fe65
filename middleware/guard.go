package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/lexauth"
)

// APIKeyHeader carries an API key when no bearer token is sent.
const APIKeyHeader = "X-API-Key"

// Authenticator is the part of the engine the guards need.
type Authenticator interface {
	Authenticate(ctx context.Context, creds lexauth.Credentials) (*lexauth.Identity, error)
	Authorize(ctx context.Context, id *lexauth.Identity, req lexauth.Requirement) error
}

// Authenticate requires a valid bearer token or API key. Deactivated
// accounts get 403; every other failure gets 401.
func Authenticate(engine Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := WithClientInfo(r)
			id, err := engine.Authenticate(ctx, Credentials(r))
			if errors.Is(err, lexauth.ErrAccountInactive) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="lexauth"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(lexauth.WithIdentity(ctx, id)))
		})
	}
}

// Credentials extracts the bearer token and API key from r.
func Credentials(r *http.Request) lexauth.Credentials {
	token, _ := bearerToken(r.Header.Get("Authorization"))
	return lexauth.Credentials{
		Bearer: token,
		APIKey: strings.TrimSpace(r.Header.Get(APIKeyHeader)),
	}
}

// WithClientInfo returns r's context carrying the client IP and user agent.
func WithClientInfo(r *http.Request) context.Context {
	ctx := lexauth.WithClientIP(r.Context(), ClientIP(r))
	return lexauth.WithUserAgent(ctx, r.UserAgent())
}

// ClientIP returns the host part of r.RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
