package internal

import (
	"encoding/base64"
	"testing"

	"github.com/google/uuid"
)

func TestNewOpaqueToken(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		tok, err := NewOpaqueToken(OpaqueTokenBytes)
		if err != nil {
			t.Fatalf("NewOpaqueToken: %v", err)
		}
		raw, err := base64.RawURLEncoding.DecodeString(tok)
		if err != nil || len(raw) != OpaqueTokenBytes {
			t.Fatalf("token %q is not %d base64url bytes", tok, OpaqueTokenBytes)
		}
		if _, dup := seen[tok]; dup {
			t.Fatal("duplicate token")
		}
		seen[tok] = struct{}{}
	}

	if _, err := NewOpaqueToken(8); err == nil {
		t.Fatal("expected short token to be rejected")
	}
}

func TestHashOpaqueTokenIsStable(t *testing.T) {
	if HashOpaqueToken("abc") != HashOpaqueToken("abc") {
		t.Fatal("hash must be deterministic")
	}
	if HashOpaqueToken("abc") == HashOpaqueToken("abd") {
		t.Fatal("distinct tokens must hash differently")
	}
	if len(HashOpaqueToken("abc")) != 64 {
		t.Fatal("expected hex sha256")
	}
}

func TestNewID(t *testing.T) {
	id := NewID()
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("NewID returned %q: %v", id, err)
	}
}
