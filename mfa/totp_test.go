package mfa

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(DefaultConfig())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestGenerateSecretAndURI(t *testing.T) {
	m := newTestManager(t)

	key, err := m.GenerateSecret("alice@example.com")
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if len(key.Secret) < 32 {
		t.Fatalf("secret too short: %q", key.Secret)
	}

	u, err := url.Parse(key.URI)
	if err != nil {
		t.Fatalf("parse URI: %v", err)
	}
	if u.Scheme != "otpauth" || u.Host != "totp" {
		t.Fatalf("unexpected URI %q", key.URI)
	}
	if got := u.Query().Get("issuer"); got != "Lexicon" {
		t.Fatalf("issuer = %q", got)
	}
	if got := u.Query().Get("secret"); got != key.Secret {
		t.Fatalf("secret in URI = %q, want %q", got, key.Secret)
	}
	if !strings.Contains(u.Path, "alice@example.com") {
		t.Fatalf("label missing from %q", u.Path)
	}

	again, err := m.ProvisioningURI(key.Secret, "alice@example.com")
	if err != nil {
		t.Fatalf("ProvisioningURI: %v", err)
	}
	au, _ := url.Parse(again)
	if au.Query().Get("secret") != key.Secret {
		t.Fatalf("ProvisioningURI changed the secret: %q", again)
	}
}

func TestVerifyDriftWindow(t *testing.T) {
	m := newTestManager(t)
	key, err := m.GenerateSecret("bob")
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}

	now := time.Unix(1_700_000_015, 0)
	step := 30 * time.Second

	cases := []struct {
		name   string
		offset time.Duration
		want   bool
	}{
		{"current", 0, true},
		{"previous step", -step, true},
		{"next step", step, true},
		{"two steps back", -2 * step, false},
		{"two steps ahead", 2 * step, false},
	}
	for _, tc := range cases {
		code, err := m.Code(key.Secret, now.Add(tc.offset))
		if err != nil {
			t.Fatalf("%s: Code: %v", tc.name, err)
		}
		if got := m.Verify(key.Secret, code, now); got != tc.want {
			t.Fatalf("%s: Verify = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m := newTestManager(t)
	key, _ := m.GenerateSecret("carol")
	now := time.Now()

	for _, code := range []string{"", "12345", "1234567", "abcdef"} {
		if m.Verify(key.Secret, code, now) {
			t.Fatalf("Verify(%q) unexpectedly succeeded", code)
		}
	}
	if m.Verify("not base32!", "123456", now) {
		t.Fatal("Verify with invalid secret succeeded")
	}
}

func TestNewManagerValidation(t *testing.T) {
	bad := []func(*Config){
		func(c *Config) { c.Issuer = "" },
		func(c *Config) { c.Digits = 7 },
		func(c *Config) { c.PeriodSeconds = 0 },
		func(c *Config) { c.Algorithm = "MD5" },
		func(c *Config) { c.Window = 20 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
