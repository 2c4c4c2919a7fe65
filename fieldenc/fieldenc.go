// Package fieldenc encrypts small secrets for storage at rest. It is used to
// protect TOTP seeds so that a database read alone never yields a usable
// secret.
//
// Blobs are "v1." followed by base64url(nonce || ciphertext) sealed with
// XChaCha20-Poly1305 under a key derived from the process secret with
// HKDF-SHA256. Decrypt fails closed with ErrDecrypt on any tampering.
package fieldenc

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	blobVersion = "v1."
	hkdfInfo    = "lexauth field encryption v1"

	minSecretBytes = 32
)

var (
	// ErrDecrypt is returned when a blob cannot be authenticated or decoded.
	ErrDecrypt = errors.New("field decryption failed")
	// ErrWeakSecret is returned when the process secret is too short.
	ErrWeakSecret = errors.New("field encryption secret must be at least 32 bytes")
)

// Encryptor seals and opens field values. Safe for concurrent use.
type Encryptor struct {
	aead cipher.AEAD
}

// New derives the encryption key from secret.
func New(secret []byte) (*Encryptor, error) {
	if len(secret) < minSecretBytes {
		return nil, ErrWeakSecret
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("fieldenc: derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("fieldenc: init cipher: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

// Encrypt seals plaintext. The empty string encrypts to the empty string.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plaintext)+e.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("fieldenc: nonce: %w", err)
	}

	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), []byte(blobVersion))
	return blobVersion + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. The empty string decrypts to the
// empty string; every other failure returns ErrDecrypt and no plaintext.
func (e *Encryptor) Decrypt(blob string) (string, error) {
	if blob == "" {
		return "", nil
	}
	if !strings.HasPrefix(blob, blobVersion) {
		return "", ErrDecrypt
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(blob, blobVersion))
	if err != nil || len(raw) < e.aead.NonceSize()+e.aead.Overhead() {
		return "", ErrDecrypt
	}

	nonce, sealed := raw[:e.aead.NonceSize()], raw[e.aead.NonceSize():]
	plain, err := e.aead.Open(nil, nonce, sealed, []byte(blobVersion))
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
