// Package apikey generates and verifies opaque API keys.
//
// A key is the namespace prefix followed by 32 random bytes in base64url,
// for example "lex_9fJ2...". The first PrefixLength characters are stored
// unhashed as a lookup index; the full key is only ever stored as a password
// hash and is returned to the caller exactly once, at creation.
package apikey

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

const (
	// Namespace starts every key.
	Namespace = "lex_"
	// PrefixLength is the number of leading characters used as lookup index.
	PrefixLength = 12

	randomBytes = 32
)

// ErrMalformedKey is returned for presented keys that cannot be ours.
var ErrMalformedKey = errors.New("malformed api key")

// Hasher is the credential hashing primitive keys are stored under.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, digest string) (ok bool, rehash bool)
}

// Key is a freshly generated key.
type Key struct {
	Full   string
	Prefix string
	Hash   string
}

// Manager generates and verifies keys using a shared Hasher.
type Manager struct {
	hasher Hasher
}

// NewManager returns a Manager hashing keys with h.
func NewManager(h Hasher) *Manager {
	return &Manager{hasher: h}
}

// Generate returns a new key, its lookup prefix and its hash.
func (m *Manager) Generate() (Key, error) {
	var b [randomBytes]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		return Key{}, err
	}

	full := Namespace + base64.RawURLEncoding.EncodeToString(b[:])
	hash, err := m.hasher.Hash(full)
	if err != nil {
		return Key{}, err
	}
	return Key{Full: full, Prefix: full[:PrefixLength], Hash: hash}, nil
}

// Verify reports whether presented matches the stored hash.
func (m *Manager) Verify(presented, hash string) bool {
	if !LooksValid(presented) {
		return false
	}
	ok, _ := m.hasher.Verify(presented, hash)
	return ok
}

// PrefixOf returns the lookup prefix of a presented key.
func PrefixOf(presented string) (string, error) {
	if !LooksValid(presented) {
		return "", ErrMalformedKey
	}
	return presented[:PrefixLength], nil
}

// LooksValid reports whether presented has the namespace and a plausible
// length. It does not authenticate anything.
func LooksValid(presented string) bool {
	if !strings.HasPrefix(presented, Namespace) {
		return false
	}
	n := len(presented)
	return n >= PrefixLength+16 && n <= 128
}
