package password

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedHash is returned when a stored digest cannot be parsed.
	ErrMalformedHash = errors.New("malformed password hash")
	// ErrEmptyPassword is returned when hashing an empty password.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrPasswordTooLong is returned when the password exceeds the input bound.
	ErrPasswordTooLong = errors.New("password too long")
	// ErrInvalidConfig is returned for out-of-range hasher parameters.
	ErrInvalidConfig = errors.New("invalid password hasher config")
	// ErrUnknownScheme is returned when Config.Scheme is not supported.
	ErrUnknownScheme = errors.New("unknown password hash scheme")
)

// Scheme names a hashing algorithm.
type Scheme string

const (
	SchemeArgon2 Scheme = "argon2"
	SchemeBcrypt Scheme = "bcrypt"
)

// Config selects the primary scheme and its parameters.
type Config struct {
	Scheme     Scheme       `yaml:"scheme"`
	Argon2     Argon2Config `yaml:"argon2"`
	BcryptCost int          `yaml:"bcrypt_cost"`
}

// DefaultConfig returns argon2id as the primary scheme.
func DefaultConfig() Config {
	return Config{
		Scheme: SchemeArgon2,
		Argon2: DefaultArgon2Config(),
	}
}

type algorithm interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
	Owns(encodedHash string) bool
}

// Hasher hashes new passwords with the primary scheme and verifies digests
// of every known scheme. Digests of a non-primary scheme, or with outdated
// parameters, are flagged for rehash after a successful verify.
type Hasher struct {
	primary algorithm
	legacy  []algorithm
}

// New builds a Hasher from cfg.
func New(cfg Config) (*Hasher, error) {
	argon, err := NewArgon2(cfg.Argon2)
	if err != nil {
		return nil, err
	}
	bc, err := NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	switch cfg.Scheme {
	case SchemeArgon2, "":
		return &Hasher{primary: argon, legacy: []algorithm{bc}}, nil
	case SchemeBcrypt:
		return &Hasher{primary: bc, legacy: []algorithm{argon}}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, cfg.Scheme)
	}
}

// Hash returns a digest of password under the primary scheme.
func (h *Hasher) Hash(password string) (string, error) {
	return h.primary.Hash(password)
}

// Verify reports whether password matches digest and whether the digest
// should be replaced. Malformed or unknown digests verify as false.
func (h *Hasher) Verify(password, digest string) (ok bool, rehash bool) {
	if h.primary.Owns(digest) {
		ok, err := h.primary.Verify(password, digest)
		if err != nil || !ok {
			return false, false
		}
		upgrade, err := h.primary.NeedsUpgrade(digest)
		return true, err == nil && upgrade
	}

	for _, alg := range h.legacy {
		if !alg.Owns(digest) {
			continue
		}
		ok, err := alg.Verify(password, digest)
		if err != nil || !ok {
			return false, false
		}
		return true, true
	}

	return false, false
}

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", ErrMalformedHash, reason)
}
