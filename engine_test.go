package lexauth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/lexauth"
	"github.com/MrEthical07/lexauth/internal/audit"
	"github.com/MrEthical07/lexauth/mail"
	"github.com/MrEthical07/lexauth/password"
	"github.com/MrEthical07/lexauth/permission"
	"github.com/MrEthical07/lexauth/store/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *recordingSink) Emit(_ context.Context, e audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

func (s *recordingSink) find(eventType string) (audit.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.Type == eventType {
			return e, true
		}
	}
	return audit.Event{}, false
}

type harness struct {
	engine *lexauth.Engine
	store  *memory.Store
	outbox *mail.Outbox
	sink   *recordingSink
	clock  *testClock
}

// drain flushes the audit dispatcher so events can be inspected.
func (h *harness) drain() {
	h.engine.Close()
}

func testConfig() lexauth.Config {
	cfg := lexauth.DefaultConfig()
	cfg.JWT.Secret = testSecret
	cfg.Password.Hash.Argon2 = password.Argon2Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
	return cfg
}

func newHarness(t *testing.T, mutate func(*lexauth.Config)) *harness {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		store:  memory.New(),
		outbox: &mail.Outbox{},
		sink:   &recordingSink{},
		clock:  &testClock{now: time.Now().UTC()},
	}
	engine, err := lexauth.New().
		WithConfig(cfg).
		WithStore(h.store).
		WithSessionStore(memory.NewSessions(h.clock.Now)).
		WithMailer(h.outbox).
		WithAuditSink(h.sink).
		WithClock(h.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

func (h *harness) register(t *testing.T, email, pw string) *lexauth.Account {
	t.Helper()
	acct, err := h.engine.Register(context.Background(), lexauth.RegisterRequest{Email: email, Password: pw})
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return acct
}

func (h *harness) login(t *testing.T, email, pw string) *lexauth.LoginResult {
	t.Helper()
	res, err := h.engine.Login(context.Background(), lexauth.LoginRequest{Email: email, Password: pw})
	if err != nil {
		t.Fatalf("Login(%s): %v", email, err)
	}
	return res
}

func TestBuildValidation(t *testing.T) {
	if _, err := lexauth.New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected missing store to fail")
	}
	if _, err := lexauth.New().WithConfig(testConfig()).WithStore(memory.New()).Build(); err == nil {
		t.Fatal("expected missing session store to fail")
	}

	weak := testConfig()
	weak.JWT.Secret = "short"
	if _, err := lexauth.New().WithConfig(weak).WithStore(memory.New()).WithSessionStore(memory.NewSessions(nil)).Build(); err == nil {
		t.Fatal("expected short secret to fail")
	}

	b := lexauth.New().WithConfig(testConfig()).WithStore(memory.New()).WithSessionStore(memory.NewSessions(nil))
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("builder must be single use")
	}
}

func TestRegisterAssignsDefaultRole(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	acct, err := h.engine.Register(ctx, lexauth.RegisterRequest{
		Email:    "  Alice@Example.com ",
		Username: "alice",
		Password: "correct horse",
		FullName: "Alice",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if acct.Email != "alice@example.com" || !acct.IsActive {
		t.Fatalf("unexpected account %+v", acct)
	}
	if acct.PasswordHash != "" {
		t.Fatal("register must not return the password hash")
	}

	roles, _ := h.store.RolesForAccount(ctx, acct.ID)
	if len(roles) != 1 || roles[0].Name != permission.RoleUser {
		t.Fatalf("roles = %+v", roles)
	}

	if _, err := h.engine.Register(ctx, lexauth.RegisterRequest{Email: "alice@example.com", Password: "another pass"}); !errors.Is(err, lexauth.ErrDuplicateIdentity) {
		t.Fatalf("duplicate email err = %v", err)
	}
	if _, err := h.engine.Register(ctx, lexauth.RegisterRequest{Email: "b@example.com", Username: "alice", Password: "another pass"}); !errors.Is(err, lexauth.ErrDuplicateIdentity) {
		t.Fatalf("duplicate username err = %v", err)
	}
	if _, err := h.engine.Register(ctx, lexauth.RegisterRequest{Email: "c@example.com", Password: "short"}); !errors.Is(err, lexauth.ErrPasswordPolicy) {
		t.Fatalf("short password err = %v", err)
	}
	if _, err := h.engine.Register(ctx, lexauth.RegisterRequest{Email: "not-an-email", Password: "long enough"}); !errors.Is(err, lexauth.ErrInvalidInput) {
		t.Fatalf("bad email err = %v", err)
	}
}

func TestRegisterDisabled(t *testing.T) {
	h := newHarness(t, func(c *lexauth.Config) { c.Accounts.AllowRegistration = false })
	_, err := h.engine.Register(context.Background(), lexauth.RegisterRequest{Email: "a@example.com", Password: "long enough"})
	if !errors.Is(err, lexauth.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestLoginDoesNotRevealAccounts(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.register(t, "a@example.com", "correct horse")

	_, wrongPw := h.engine.Login(ctx, lexauth.LoginRequest{Email: "a@example.com", Password: "wrong horse"})
	_, unknown := h.engine.Login(ctx, lexauth.LoginRequest{Email: "nobody@example.com", Password: "wrong horse"})
	if !errors.Is(wrongPw, lexauth.ErrInvalidCredentials) || !errors.Is(unknown, lexauth.ErrInvalidCredentials) {
		t.Fatalf("wrong password = %v, unknown = %v", wrongPw, unknown)
	}
	if wrongPw.Error() != unknown.Error() {
		t.Fatalf("messages differ: %q vs %q", wrongPw, unknown)
	}

	h.drain()
	ev, ok := h.sink.find(lexauth.EventLoginFailure)
	if !ok || ev.Success || ev.Reason != "invalid_credentials" {
		t.Fatalf("login failure event = %+v", ev)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	h := newHarness(t, nil)
	acct := h.register(t, "a@example.com", "correct horse")
	_ = h.store.SetActive(acct.ID, false)

	_, err := h.engine.Login(context.Background(), lexauth.LoginRequest{Email: "a@example.com", Password: "correct horse"})
	if !errors.Is(err, lexauth.ErrAccountInactive) {
		t.Fatalf("err = %v, want ErrAccountInactive", err)
	}

	_, err = h.engine.Login(context.Background(), lexauth.LoginRequest{Email: "a@example.com", Password: "wrong horse"})
	if !errors.Is(err, lexauth.ErrInvalidCredentials) {
		t.Fatalf("wrong password on inactive account err = %v", err)
	}
}

func TestLoginAndAuthenticate(t *testing.T) {
	h := newHarness(t, nil)
	acct := h.register(t, "a@example.com", "correct horse")

	ctx := lexauth.WithUserAgent(lexauth.WithClientIP(context.Background(), "10.0.0.1"), "test-agent")
	res, err := h.engine.Login(ctx, lexauth.LoginRequest{Email: "A@example.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.RequiresMFA || res.AccessToken == "" || res.RefreshToken == "" || res.TokenType != "bearer" {
		t.Fatalf("unexpected login result %+v", res)
	}
	if res.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("expires_in = %d", res.ExpiresIn)
	}

	id, err := h.engine.Authenticate(context.Background(), lexauth.Credentials{Bearer: res.AccessToken})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.AccountID() != acct.ID || id.Method != lexauth.AuthMethodBearer || id.SessionID != res.SessionID {
		t.Fatalf("unexpected identity %+v", id)
	}
	if !id.Roles.HasRole(permission.RoleUser) {
		t.Fatal("identity must carry the default role")
	}

	sessions, err := h.engine.ListSessions(lexauth.WithIdentity(context.Background(), id), acct.ID)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].IP != "10.0.0.1" || sessions[0].UserAgent != "test-agent" || !sessions[0].Current {
		t.Fatalf("sessions = %+v", sessions)
	}

	stored, _ := h.store.AccountByID(context.Background(), acct.ID)
	if stored.LastLoginAt.IsZero() {
		t.Fatal("login must record last login")
	}
}

func TestAuthenticateRejects(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	acct := h.register(t, "a@example.com", "correct horse")
	res := h.login(t, "a@example.com", "correct horse")

	cases := map[string]lexauth.Credentials{
		"none":          {},
		"garbage":       {Bearer: "not.a.jwt"},
		"refresh token": {Bearer: res.RefreshToken},
		"bad api key":   {APIKey: "lex_definitely-not-a-real-key-000000"},
	}
	for name, creds := range cases {
		if _, err := h.engine.Authenticate(ctx, creds); !errors.Is(err, lexauth.ErrUnauthenticated) {
			t.Fatalf("%s: err = %v, want ErrUnauthenticated", name, err)
		}
	}

	_ = h.store.SetActive(acct.ID, false)
	if _, err := h.engine.Authenticate(ctx, lexauth.Credentials{Bearer: res.AccessToken}); !errors.Is(err, lexauth.ErrAccountInactive) {
		t.Fatalf("inactive account err = %v", err)
	}
}

func TestAuthenticateExpiredAccessToken(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "a@example.com", "correct horse")
	res := h.login(t, "a@example.com", "correct horse")

	h.clock.Advance(16 * time.Minute)
	_, err := h.engine.Authenticate(context.Background(), lexauth.Credentials{Bearer: res.AccessToken})
	if !errors.Is(err, lexauth.ErrUnauthenticated) || !errors.Is(err, lexauth.ErrInvalidOrExpiredToken) {
		t.Fatalf("err = %v", err)
	}
}

func TestAuthorize(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	acct := h.register(t, "a@example.com", "correct horse")
	res := h.login(t, "a@example.com", "correct horse")
	id, err := h.engine.Authenticate(ctx, lexauth.Credentials{Bearer: res.AccessToken})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	if err := h.engine.Authorize(ctx, id, lexauth.Requirement{AllPermissions: []string{"settings.view"}}); err != nil {
		t.Fatalf("settings.view: %v", err)
	}
	if err := h.engine.Authorize(ctx, id, lexauth.Requirement{AllPermissions: []string{"users.view"}}); !errors.Is(err, lexauth.ErrForbidden) {
		t.Fatalf("users.view err = %v", err)
	}
	if err := h.engine.Authorize(ctx, id, lexauth.Requirement{AnyRole: []string{"admin", "owner"}}); !errors.Is(err, lexauth.ErrForbidden) {
		t.Fatalf("admin role err = %v", err)
	}
	if err := h.engine.Authorize(ctx, nil, lexauth.Requirement{}); !errors.Is(err, lexauth.ErrUnauthenticated) {
		t.Fatalf("nil identity err = %v", err)
	}

	_ = h.store.SetSuperuser(acct.ID, true)
	id, _ = h.engine.Authenticate(ctx, lexauth.Credentials{Bearer: res.AccessToken})
	if err := h.engine.Authorize(ctx, id, lexauth.Requirement{AnyRole: []string{"owner"}, AllPermissions: []string{"audit.view"}}); err != nil {
		t.Fatalf("superuser: %v", err)
	}

	h.drain()
	if _, ok := h.sink.find(lexauth.EventAuthorizationDenied); !ok {
		t.Fatal("expected an authorization_denied event")
	}
}

func TestLoginRateLimitWithRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := memory.New()
	engine, err := lexauth.New().
		WithConfig(testConfig()).
		WithStore(store).
		WithRedis(client).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	ctx := context.Background()

	if _, err := engine.Register(ctx, lexauth.RegisterRequest{Email: "a@example.com", Password: "correct horse"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	res, err := engine.Login(ctx, lexauth.LoginRequest{Email: "a@example.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("Login against redis sessions: %v", err)
	}
	if _, err := engine.Refresh(ctx, res.RefreshToken); err != nil {
		t.Fatalf("Refresh against redis sessions: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := engine.Login(ctx, lexauth.LoginRequest{Email: "a@example.com", Password: "wrong horse"}); !errors.Is(err, lexauth.ErrInvalidCredentials) {
			t.Fatalf("attempt %d err = %v", i, err)
		}
	}
	if _, err := engine.Login(ctx, lexauth.LoginRequest{Email: "a@example.com", Password: "correct horse"}); !errors.Is(err, lexauth.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}
