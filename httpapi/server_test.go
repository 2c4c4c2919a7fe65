package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/lexauth"
	"github.com/MrEthical07/lexauth/httpapi"
	"github.com/MrEthical07/lexauth/mail"
	"github.com/MrEthical07/lexauth/password"
	"github.com/MrEthical07/lexauth/store/memory"
)

type fixture struct {
	server *httpapi.Server
	engine *lexauth.Engine
	outbox *mail.Outbox
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

// newFixtureWith enables the attempt limiter when rdb is set.
func newFixtureWith(t *testing.T, rdb redis.UniversalClient, opts ...httpapi.Option) *fixture {
	t.Helper()

	cfg := lexauth.DefaultConfig()
	cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Password.Hash.Argon2 = password.Argon2Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	cfg.Audit.Enabled = false

	outbox := &mail.Outbox{}
	b := lexauth.New().
		WithConfig(cfg).
		WithStore(memory.New()).
		WithSessionStore(memory.NewSessions(nil)).
		WithMailer(outbox)
	if rdb != nil {
		b = b.WithRedis(rdb)
	}
	engine, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &fixture{server: httpapi.New(engine, opts...), engine: engine, outbox: outbox}
}

// doFrom sends an unauthenticated request from remoteAddr, optionally
// claiming a forwarded client.
func (f *fixture) doFrom(t *testing.T, remoteAddr, forwardedFor, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(method, httpapi.Prefix+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, httpapi.Prefix+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (f *fixture) signIn(t *testing.T, email, pw string) lexauth.LoginResult {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/register", "", map[string]string{"email": email, "password": pw})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/login", "", map[string]string{"email": email, "password": pw})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[lexauth.LoginResult](t, rec)
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/register", "", map[string]string{"email": "Ada@Example.com", "password": "correct horse"})
	require.Equal(t, http.StatusCreated, rec.Code)
	acct := decode[map[string]any](t, rec)
	require.Equal(t, "ada@example.com", acct["email"])
	require.NotContains(t, acct, "password_hash")

	rec = f.do(t, http.MethodPost, "/register", "", map[string]string{"email": "ada@example.com", "password": "correct horse"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "duplicate_identity", decode[errorResponse](t, rec).Error)

	rec = f.do(t, http.MethodPost, "/login", "", map[string]string{"email": "ada@example.com", "password": "wrong horse"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_credentials", decode[errorResponse](t, rec).Error)

	rec = f.do(t, http.MethodPost, "/login", "", map[string]string{"email": "ada@example.com", "password": "correct horse"})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[lexauth.LoginResult](t, rec)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.RefreshToken)
	require.Equal(t, "bearer", res.TokenType)
}

func TestValidationErrors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/register", "", map[string]string{"email": "a@example.com"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decode[errorResponse](t, rec).Message, "password")

	rec = f.do(t, http.MethodPost, "/register", "", map[string]string{"email": "a@example.com", "password": "short"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "password_policy", decode[errorResponse](t, rec).Error)

	req := httptest.NewRequest(http.MethodPost, httpapi.Prefix+"/login", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	raw := httptest.NewRecorder()
	f.server.ServeHTTP(raw, req)
	require.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestProtectedRoutes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	rec = f.do(t, http.MethodGet, "/me", "not-a-token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	res := f.signIn(t, "me@example.com", "correct horse")
	rec = f.do(t, http.MethodGet, "/me", res.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[map[string]any](t, rec)
	require.Equal(t, "me@example.com", me["email"])
	require.Equal(t, []any{"user"}, me["roles"])
	require.Equal(t, "bearer", me["auth_method"])
}

func TestRefreshAndLogout(t *testing.T) {
	f := newFixture(t)
	res := f.signIn(t, "r@example.com", "correct horse")

	rec := f.do(t, http.MethodPost, "/refresh", "", map[string]string{"refresh_token": res.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	pair := decode[lexauth.TokenPair](t, rec)
	require.NotEqual(t, res.RefreshToken, pair.RefreshToken)

	rec = f.do(t, http.MethodPost, "/refresh", "", map[string]string{"refresh_token": res.AccessToken})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/logout", pair.AccessToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/me", pair.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessions(t *testing.T) {
	f := newFixture(t)
	first := f.signIn(t, "s@example.com", "correct horse")

	rec := f.do(t, http.MethodPost, "/login", "", map[string]string{"email": "s@example.com", "password": "correct horse"})
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[lexauth.LoginResult](t, rec)

	rec = f.do(t, http.MethodGet, "/sessions", first.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sessions := decode[[]lexauth.SessionInfo](t, rec)
	require.Len(t, sessions, 2)

	var other string
	for _, s := range sessions {
		if !s.Current {
			other = s.ID
		}
	}
	require.NotEmpty(t, other)

	rec = f.do(t, http.MethodDelete, "/sessions/"+other, first.AccessToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/me", second.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodDelete, "/sessions/unknown", first.AccessToken, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPasswordReset(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, "p@example.com", "correct horse")

	rec := f.do(t, http.MethodPost, "/password-reset/request", "", map[string]string{"email": "nobody@example.com"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	unknown := rec.Body.String()

	rec = f.do(t, http.MethodPost, "/password-reset/request", "", map[string]string{"email": "p@example.com"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, unknown, rec.Body.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, ok := f.outbox.Await(ctx, "p@example.com", mail.SubjectPasswordReset)
	require.True(t, ok)
	m := regexp.MustCompile(`token=([A-Za-z0-9_\-]+)`).FindStringSubmatch(msg.Body)
	require.Len(t, m, 2)

	rec = f.do(t, http.MethodPost, "/password-reset/confirm", "", map[string]string{"token": m[1], "new_password": "battery staple"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, "/password-reset/confirm", "", map[string]string{"token": m[1], "new_password": "battery staple"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/login", "", map[string]string{"email": "p@example.com", "password": "battery staple"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	res := f.signIn(t, "c@example.com", "correct horse")

	rec := f.do(t, http.MethodPut, "/me/password", res.AccessToken, map[string]string{"current_password": "nope nope", "new_password": "battery staple"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPut, "/me/password", res.AccessToken, map[string]string{"current_password": "correct horse", "new_password": "battery staple"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, "/login", "", map[string]string{"email": "c@example.com", "password": "battery staple"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMFAStateErrors(t *testing.T) {
	f := newFixture(t)
	res := f.signIn(t, "m@example.com", "correct horse")

	rec := f.do(t, http.MethodPost, "/mfa/verify", res.AccessToken, map[string]string{"code": "123456"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "mfa_setup_not_initiated", decode[errorResponse](t, rec).Error)

	rec = f.do(t, http.MethodPost, "/mfa/setup", res.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	setup := decode[lexauth.MFASetup](t, rec)
	require.NotEmpty(t, setup.Secret)
	require.Len(t, setup.BackupCodes, 10)

	rec = f.do(t, http.MethodPost, "/mfa/verify", res.AccessToken, map[string]string{"code": "000000x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_mfa_code", decode[errorResponse](t, rec).Error)

	rec = f.do(t, http.MethodGet, "/mfa/backup-codes", res.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 10, decode[map[string]any](t, rec)["remaining"])

	rec = f.do(t, http.MethodPost, "/mfa/disable", res.AccessToken, map[string]string{"password": "correct horse", "code": "123456"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "mfa_not_enabled", decode[errorResponse](t, rec).Error)
}

func TestAPIKeys(t *testing.T) {
	f := newFixture(t)
	res := f.signIn(t, "k@example.com", "correct horse")

	rec := f.do(t, http.MethodPost, "/api-keys", res.AccessToken, map[string]any{"name": "ci", "expires_in_days": 30})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	issued := decode[lexauth.IssuedAPIKey](t, rec)
	require.NotEmpty(t, issued.Key)
	require.False(t, issued.ExpiresAt.IsZero())

	req := httptest.NewRequest(http.MethodGet, httpapi.Prefix+"/me", nil)
	req.Header.Set("X-API-Key", issued.Key)
	raw := httptest.NewRecorder()
	f.server.ServeHTTP(raw, req)
	require.Equal(t, http.StatusOK, raw.Code)
	require.Equal(t, "api_key", decode[map[string]any](t, raw)["auth_method"])

	rec = f.do(t, http.MethodGet, "/api-keys", res.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	keys := decode[[]map[string]any](t, rec)
	require.Len(t, keys, 1)
	require.NotContains(t, keys[0], "key")

	rec = f.do(t, http.MethodPost, "/api-keys", res.AccessToken, map[string]any{"name": "bad", "expires_in_days": -1})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	for _, days := range []int64{366, 1 << 40} {
		rec = f.do(t, http.MethodPost, "/api-keys", res.AccessToken, map[string]any{"name": "long", "expires_in_days": days})
		require.Equal(t, http.StatusBadRequest, rec.Code, "expires_in_days=%d", days)
	}

	rec = f.do(t, http.MethodDelete, "/api-keys/"+issued.ID, res.AccessToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	raw = httptest.NewRecorder()
	f.server.ServeHTTP(raw, req)
	require.Equal(t, http.StatusUnauthorized, raw.Code)
}

func TestForwardedForIgnoredByDefault(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	f := newFixtureWith(t, rdb)

	victim := map[string]string{"email": "victim@example.com", "password": "correct horse"}
	rec := f.doFrom(t, "10.0.0.9:40000", "", http.MethodPost, "/register", victim)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Failures from another host that claim to be the victim's address.
	for i := 0; i < 6; i++ {
		f.doFrom(t, "6.6.6.6:50000", "10.0.0.9", http.MethodPost, "/login",
			map[string]string{"email": "attacker@example.com", "password": "wrong horse"})
	}

	rec = f.doFrom(t, "10.0.0.9:40001", "", http.MethodPost, "/login", victim)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token := decode[lexauth.LoginResult](t, rec).AccessToken

	rec = f.do(t, http.MethodGet, "/sessions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sessions := decode[[]lexauth.SessionInfo](t, rec)
	require.Len(t, sessions, 1)
	require.Equal(t, "10.0.0.9", sessions[0].IP)

	rec = f.doFrom(t, "6.6.6.6:50001", "", http.MethodPost, "/login",
		map[string]string{"email": "attacker@example.com", "password": "wrong horse"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestForwardedForFromTrustedProxy(t *testing.T) {
	f := newFixtureWith(t, nil, httpapi.WithTrustedProxies("10.1.0.0/16"))

	creds := map[string]string{"email": "proxied@example.com", "password": "correct horse"}
	rec := f.doFrom(t, "10.1.2.3:1000", "203.0.113.7", http.MethodPost, "/register", creds)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.doFrom(t, "10.1.2.3:1000", "203.0.113.7", http.MethodPost, "/login", creds)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token := decode[lexauth.LoginResult](t, rec).AccessToken

	rec = f.doFrom(t, "198.51.100.1:1000", "203.0.113.8", http.MethodPost, "/login", creds)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/sessions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ips := map[string]bool{}
	for _, s := range decode[[]lexauth.SessionInfo](t, rec) {
		ips[s.IP] = true
	}
	require.Equal(t, map[string]bool{"203.0.113.7": true, "198.51.100.1": true}, ips)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	res := f.signIn(t, "pro@example.com", "correct horse")
	other := f.signIn(t, "other@example.com", "correct horse")

	rec := f.do(t, http.MethodPut, "/me", other.AccessToken, map[string]string{"username": "taken"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPut, "/me", res.AccessToken, map[string]string{"full_name": "Pro User", "timezone": "UTC"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[map[string]any](t, rec)
	require.Equal(t, "Pro User", body["full_name"])
	require.Equal(t, "UTC", body["timezone"])
	require.NotContains(t, body, "password_hash")

	rec = f.do(t, http.MethodGet, "/me", res.AccessToken, nil)
	require.Equal(t, "Pro User", decode[map[string]any](t, rec)["full_name"])

	rec = f.do(t, http.MethodPut, "/me", res.AccessToken, map[string]string{"username": "taken"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPut, "/me", res.AccessToken, map[string]string{"avatar_url": "ftp://x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/me", "", map[string]string{"full_name": "x"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatus(t *testing.T) {
	require.Equal(t, http.StatusTooManyRequests, httpapi.Status(lexauth.ErrRateLimited))
	require.Equal(t, http.StatusForbidden, httpapi.Status(lexauth.ErrAccountInactive))
	require.Equal(t, http.StatusUnauthorized, httpapi.Status(lexauth.ErrInvalidOrExpiredToken))
	require.Equal(t, http.StatusInternalServerError, httpapi.Status(lexauth.ErrStoreUnavailable))
}
