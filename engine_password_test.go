package lexauth_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/lexauth"
	"github.com/MrEthical07/lexauth/mail"
	"github.com/MrEthical07/lexauth/store/memory"
)

var resetTokenPattern = regexp.MustCompile(`token=([A-Za-z0-9_\-]+)`)

// awaitMail waits for the background sender to deliver subject to email.
func (h *harness) awaitMail(t *testing.T, email, subject string) mail.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, ok := h.outbox.Await(ctx, email, subject)
	if !ok {
		t.Fatalf("no %q mail sent to %s", subject, email)
	}
	return msg
}

func (h *harness) resetToken(t *testing.T, email string) string {
	t.Helper()
	msg := h.awaitMail(t, email, mail.SubjectPasswordReset)
	m := resetTokenPattern.FindStringSubmatch(msg.Body)
	if m == nil {
		t.Fatalf("no reset link in %q", msg.Body)
	}
	return m[1]
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	acct := h.register(t, "a@example.com", "correct horse")
	res := h.login(t, "a@example.com", "correct horse")

	if err := h.engine.ChangePassword(ctx, acct.ID, "wrong horse", "battery staple"); !errors.Is(err, lexauth.ErrInvalidCredentials) {
		t.Fatalf("wrong current err = %v", err)
	}
	if err := h.engine.ChangePassword(ctx, acct.ID, "correct horse", "short"); !errors.Is(err, lexauth.ErrPasswordPolicy) {
		t.Fatalf("short err = %v", err)
	}
	if err := h.engine.ChangePassword(ctx, acct.ID, "correct horse", "correct horse"); !errors.Is(err, lexauth.ErrPasswordPolicy) {
		t.Fatalf("unchanged err = %v", err)
	}
	if err := h.engine.ChangePassword(ctx, acct.ID, "correct horse", "battery staple"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, err := h.engine.Authenticate(ctx, lexauth.Credentials{Bearer: res.AccessToken}); err == nil {
		t.Fatal("sessions must be revoked after a password change")
	}
	if _, err := h.engine.Login(ctx, lexauth.LoginRequest{Email: "a@example.com", Password: "correct horse"}); !errors.Is(err, lexauth.ErrInvalidCredentials) {
		t.Fatalf("old password err = %v", err)
	}
	h.login(t, "a@example.com", "battery staple")
}

func TestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.engine.RequestPasswordReset(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	h.drain()
	if n := len(h.outbox.Messages()); n != 0 {
		t.Fatalf("sent %d messages for an unknown email", n)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.register(t, "a@example.com", "correct horse")
	res := h.login(t, "a@example.com", "correct horse")

	if err := h.engine.RequestPasswordReset(ctx, " A@Example.com "); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	msg := h.awaitMail(t, "a@example.com", mail.SubjectPasswordReset)
	if !strings.Contains(msg.Body, "http://localhost:3000/reset-password?token=") {
		t.Fatalf("unexpected reset mail body %q", msg.Body)
	}
	token := h.resetToken(t, "a@example.com")

	// A policy failure leaves the token usable.
	if err := h.engine.ConfirmPasswordReset(ctx, token, "short"); !errors.Is(err, lexauth.ErrPasswordPolicy) {
		t.Fatalf("short password err = %v", err)
	}
	if err := h.engine.ConfirmPasswordReset(ctx, token, "battery staple"); err != nil {
		t.Fatalf("ConfirmPasswordReset: %v", err)
	}
	if err := h.engine.ConfirmPasswordReset(ctx, token, "another staple"); !errors.Is(err, lexauth.ErrInvalidOrExpiredToken) {
		t.Fatalf("second use err = %v", err)
	}

	if _, err := h.engine.Authenticate(ctx, lexauth.Credentials{Bearer: res.AccessToken}); err == nil {
		t.Fatal("sessions must be revoked after a reset")
	}
	h.login(t, "a@example.com", "battery staple")

	h.awaitMail(t, "a@example.com", mail.SubjectPasswordChanged)
}

func TestPasswordResetExpiry(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.register(t, "a@example.com", "correct horse")

	if err := h.engine.RequestPasswordReset(ctx, "a@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	token := h.resetToken(t, "a@example.com")

	h.clock.Advance(time.Hour + time.Second)
	err := h.engine.ConfirmPasswordReset(ctx, token, "battery staple")
	if !errors.Is(err, lexauth.ErrInvalidOrExpiredToken) || !errors.Is(err, lexauth.ErrResetTokenExpired) {
		t.Fatalf("expired err = %v", err)
	}
	h.login(t, "a@example.com", "correct horse")
}

func TestPasswordResetInactiveAccount(t *testing.T) {
	h := newHarness(t, nil)
	acct := h.register(t, "a@example.com", "correct horse")
	_ = h.store.SetActive(acct.ID, false)

	if err := h.engine.RequestPasswordReset(context.Background(), "a@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	h.drain()
	if n := len(h.outbox.Messages()); n != 0 {
		t.Fatalf("sent %d messages to an inactive account", n)
	}
}

// gatedMailer blocks every Send until release is closed.
type gatedMailer struct {
	release chan struct{}
	outbox  mail.Outbox
}

func (m *gatedMailer) Send(ctx context.Context, to, subject, body string) error {
	select {
	case <-m.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return m.outbox.Send(ctx, to, subject, body)
}

func TestPasswordResetDoesNotWaitForDelivery(t *testing.T) {
	cfg := testConfig()
	mailer := &gatedMailer{release: make(chan struct{})}
	store := memory.New()
	engine, err := lexauth.New().
		WithConfig(cfg).
		WithStore(store).
		WithSessionStore(memory.NewSessions(nil)).
		WithMailer(mailer).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()
	if _, err := engine.Register(ctx, lexauth.RegisterRequest{Email: "a@example.com", Password: "correct horse"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- engine.RequestPasswordReset(ctx, "a@example.com") }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RequestPasswordReset: %v", err)
		}
	case <-time.After(2 * time.Second):
		close(mailer.release)
		t.Fatal("RequestPasswordReset waited for the mailer")
	}
	if n := len(mailer.outbox.Messages()); n != 0 {
		t.Fatalf("delivered %d messages before release", n)
	}

	close(mailer.release)
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, ok := mailer.outbox.Await(waitCtx, "a@example.com", mail.SubjectPasswordReset); !ok {
		t.Fatal("reset mail never delivered after release")
	}
}

func TestPasswordResetTokenRedeemedOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.register(t, "a@example.com", "correct horse")

	if err := h.engine.RequestPasswordReset(ctx, "a@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	token := h.resetToken(t, "a@example.com")

	const callers = 8
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := h.engine.ConfirmPasswordReset(ctx, token, fmt.Sprintf("battery staple %d", i))
			switch {
			case err == nil:
				succeeded.Add(1)
			case !errors.Is(err, lexauth.ErrInvalidOrExpiredToken):
				t.Errorf("unexpected err %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := succeeded.Load(); got != 1 {
		t.Fatalf("%d confirmations succeeded, want exactly 1", got)
	}
}
