package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"github.com/google/uuid"
)

// OpaqueTokenBytes is the entropy of reset and similar single-use tokens.
const OpaqueTokenBytes = 32

// NewID returns a random UUIDv4 string used for accounts, sessions and keys.
func NewID() string {
	return uuid.NewString()
}

// NewOpaqueToken returns n random bytes encoded base64url without padding.
func NewOpaqueToken(n int) (string, error) {
	if n < 16 {
		return "", errors.New("opaque token too short")
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashOpaqueToken returns the hex SHA-256 of token. Stores keep only this.
func HashOpaqueToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
