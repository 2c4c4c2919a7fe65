package mfa

import (
	"regexp"
	"testing"
)

var backupCodePattern = regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}$`)

func TestGenerateBackupCodesFormat(t *testing.T) {
	codes, err := GenerateBackupCodes(10)
	if err != nil {
		t.Fatalf("GenerateBackupCodes: %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("len = %d", len(codes))
	}

	seen := map[string]bool{}
	for _, code := range codes {
		if !backupCodePattern.MatchString(code) {
			t.Fatalf("bad format %q", code)
		}
		if seen[code] {
			t.Fatalf("duplicate code %q", code)
		}
		seen[code] = true
	}
}

func TestCanonicalizeBackupCode(t *testing.T) {
	cases := map[string]string{
		"ABCD-1234":   "ABCD1234",
		" abcd-1234 ": "ABCD1234",
		"abcd 1234":   "ABCD1234",
		"ABCD1234":    "ABCD1234",
		"ABCD-123":    "",
		"GHIJ-1234":   "",
		"":            "",
	}
	for in, want := range cases {
		if got := CanonicalizeBackupCode(in); got != want {
			t.Fatalf("CanonicalizeBackupCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHashBackupCodeBindsAccount(t *testing.T) {
	a := HashBackupCode("acct-a", "ABCD1234")
	b := HashBackupCode("acct-b", "ABCD1234")
	if a == b {
		t.Fatal("hash must differ across accounts")
	}
	if a != HashBackupCode("acct-a", "ABCD1234") {
		t.Fatal("hash must be deterministic")
	}
	if len(a) != 64 {
		t.Fatalf("hash length = %d", len(a))
	}
}
