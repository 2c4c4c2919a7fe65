package fieldenc

import (
	"errors"
	"strings"
	"testing"
)

func newTestEncryptor(t *testing.T, secret string) *Encryptor {
	t.Helper()
	e, err := New([]byte(secret))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	e := newTestEncryptor(t, "process-secret-process-secret-123")

	blob, err := e.Encrypt("JBSWY3DPEHPK3PXP")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if strings.Contains(blob, "JBSWY3DPEHPK3PXP") || !strings.HasPrefix(blob, "v1.") {
		t.Fatalf("unexpected blob %q", blob)
	}

	plain, err := e.Decrypt(blob)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if plain != "JBSWY3DPEHPK3PXP" {
		t.Fatalf("Decrypt = %q", plain)
	}

	again, _ := e.Encrypt("JBSWY3DPEHPK3PXP")
	if again == blob {
		t.Fatal("expected fresh nonce per encryption")
	}
}

func TestDecryptFailsClosed(t *testing.T) {
	e := newTestEncryptor(t, "process-secret-process-secret-123")
	other := newTestEncryptor(t, "a-completely-different-secret-456")

	blob, err := e.Encrypt("seed")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	tampered := []byte(blob)
	mid := len(tampered) / 2
	if tampered[mid] == 'A' {
		tampered[mid] = 'B'
	} else {
		tampered[mid] = 'A'
	}

	cases := map[string]string{
		"wrong key":       "",
		"tampered":        string(tampered),
		"no version":      strings.TrimPrefix(blob, "v1."),
		"bad encoding":    "v1.!!!!",
		"truncated":       blob[:10],
		"unknown version": "v2." + strings.TrimPrefix(blob, "v1."),
	}
	for name, input := range cases {
		dec := e
		if name == "wrong key" {
			dec, input = other, blob
		}
		plain, err := dec.Decrypt(input)
		if !errors.Is(err, ErrDecrypt) {
			t.Fatalf("%s: expected ErrDecrypt, got %v", name, err)
		}
		if plain != "" {
			t.Fatalf("%s: expected no plaintext, got %q", name, plain)
		}
	}
}

func TestEmptyValues(t *testing.T) {
	e := newTestEncryptor(t, "process-secret-process-secret-123")

	if blob, err := e.Encrypt(""); err != nil || blob != "" {
		t.Fatalf("Encrypt(\"\") = %q, %v", blob, err)
	}
	if plain, err := e.Decrypt(""); err != nil || plain != "" {
		t.Fatalf("Decrypt(\"\") = %q, %v", plain, err)
	}
}

func TestNewRejectsWeakSecret(t *testing.T) {
	if _, err := New([]byte("short")); !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("expected ErrWeakSecret, got %v", err)
	}
}
