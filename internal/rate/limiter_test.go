package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*miniredis.Miniredis, *Limiter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, New(client, cfg)
}

func TestLoginBudget(t *testing.T) {
	mr, l := newTestLimiter(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := l.CheckLogin(ctx, "a@example.com", "10.0.0.1"); err != nil {
			t.Fatalf("attempt %d blocked early: %v", i+1, err)
		}
		if err := l.RecordLoginFailure(ctx, "a@example.com", "10.0.0.1"); err != nil {
			t.Fatalf("RecordLoginFailure: %v", err)
		}
	}
	if err := l.CheckLogin(ctx, "a@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.CheckLogin(ctx, "b@example.com", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP throttle to apply across emails, got %v", err)
	}

	mr.FastForward(16 * time.Minute)
	if err := l.CheckLogin(ctx, "a@example.com", "10.0.0.1"); err != nil {
		t.Fatalf("window should have expired: %v", err)
	}
}

func TestResetLoginClearsCounter(t *testing.T) {
	_, l := newTestLimiter(t, DefaultConfig())
	ctx := context.Background()

	_ = l.RecordLoginFailure(ctx, "a@example.com", "")
	_ = l.RecordLoginFailure(ctx, "a@example.com", "")
	if n, _ := l.LoginAttempts(ctx, "a@example.com"); n != 2 {
		t.Fatalf("LoginAttempts = %d, want 2", n)
	}
	if err := l.ResetLogin(ctx, "a@example.com"); err != nil {
		t.Fatalf("ResetLogin: %v", err)
	}
	if n, _ := l.LoginAttempts(ctx, "a@example.com"); n != 0 {
		t.Fatalf("LoginAttempts after reset = %d", n)
	}
}

func TestAllowReset(t *testing.T) {
	_, l := newTestLimiter(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.AllowReset(ctx, "a@example.com"); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if err := l.AllowReset(ctx, "a@example.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestMFABudget(t *testing.T) {
	_, l := newTestLimiter(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = l.RecordMFAFailure(ctx, "acct-1")
	}
	if err := l.CheckMFA(ctx, "acct-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	_ = l.ResetMFA(ctx, "acct-1")
	if err := l.CheckMFA(ctx, "acct-1"); err != nil {
		t.Fatalf("expected reset counter, got %v", err)
	}
}

func TestNilLimiterAllows(t *testing.T) {
	var l *Limiter
	ctx := context.Background()
	if l.CheckLogin(ctx, "a", "b") != nil || l.AllowReset(ctx, "a") != nil || l.CheckMFA(ctx, "a") != nil {
		t.Fatal("nil limiter must allow")
	}
}

func TestRedisDownIsReported(t *testing.T) {
	mr, l := newTestLimiter(t, DefaultConfig())
	mr.Close()

	if err := l.CheckLogin(context.Background(), "a@example.com", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
