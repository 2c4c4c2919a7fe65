package mfa

import (
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const secretBytes = 20

var (
	// ErrInvalidSecret is returned when a stored secret is not valid base32.
	ErrInvalidSecret = errors.New("invalid totp secret")
	// ErrInvalidConfig is returned for unsupported TOTP parameters.
	ErrInvalidConfig = errors.New("invalid mfa config")
)

// Config controls TOTP parameters and backup code issuance.
type Config struct {
	Issuer          string `yaml:"issuer"`
	Digits          int    `yaml:"digits"`
	PeriodSeconds   uint   `yaml:"period_seconds"`
	Window          uint   `yaml:"window"`
	Algorithm       string `yaml:"algorithm"`
	BackupCodeCount int    `yaml:"backup_code_count"`
}

// DefaultConfig mirrors authenticator app defaults: SHA1, 6 digits, 30s.
func DefaultConfig() Config {
	return Config{
		Issuer:          "Lexicon",
		Digits:          6,
		PeriodSeconds:   30,
		Window:          1,
		Algorithm:       "SHA1",
		BackupCodeCount: 10,
	}
}

// Key is a freshly generated secret and its provisioning URI.
type Key struct {
	Secret string
	URI    string
}

// Manager generates and verifies TOTP codes. Safe for concurrent use.
type Manager struct {
	cfg       Config
	digits    otp.Digits
	algorithm otp.Algorithm
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, fmt.Errorf("%w: issuer must be set", ErrInvalidConfig)
	}
	if cfg.PeriodSeconds == 0 {
		return nil, fmt.Errorf("%w: period must be positive", ErrInvalidConfig)
	}
	if cfg.Window > 10 {
		return nil, fmt.Errorf("%w: window must be <= 10", ErrInvalidConfig)
	}
	if cfg.BackupCodeCount < 0 || cfg.BackupCodeCount > 64 {
		return nil, fmt.Errorf("%w: backup code count must be within [0, 64]", ErrInvalidConfig)
	}

	var digits otp.Digits
	switch cfg.Digits {
	case 6:
		digits = otp.DigitsSix
	case 8:
		digits = otp.DigitsEight
	default:
		return nil, fmt.Errorf("%w: digits must be 6 or 8", ErrInvalidConfig)
	}

	var alg otp.Algorithm
	switch strings.ToUpper(cfg.Algorithm) {
	case "", "SHA1":
		alg = otp.AlgorithmSHA1
	case "SHA256":
		alg = otp.AlgorithmSHA256
	case "SHA512":
		alg = otp.AlgorithmSHA512
	default:
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidConfig, cfg.Algorithm)
	}

	return &Manager{cfg: cfg, digits: digits, algorithm: alg}, nil
}

// BackupCodeCount returns how many backup codes a setup issues.
func (m *Manager) BackupCodeCount() int { return m.cfg.BackupCodeCount }

// GenerateSecret creates a random base32 secret and the otpauth URI for label.
func (m *Manager) GenerateSecret(label string) (Key, error) {
	key, err := totp.Generate(m.generateOpts(label, nil))
	if err != nil {
		return Key{}, err
	}
	return Key{Secret: key.Secret(), URI: key.URL()}, nil
}

// ProvisioningURI returns the otpauth:// URI for an existing secret.
func (m *Manager) ProvisioningURI(secret, label string) (string, error) {
	raw, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	key, err := totp.Generate(m.generateOpts(label, raw))
	if err != nil {
		return "", err
	}
	return key.URL(), nil
}

// Verify reports whether code is valid for secret at time at, accepting
// codes up to Window steps before or after the current step.
func (m *Manager) Verify(secret, code string, at time.Time) bool {
	code = strings.TrimSpace(code)
	if len(code) != m.digits.Length() {
		return false
	}
	if _, err := decodeSecret(secret); err != nil {
		return false
	}

	ok, err := totp.ValidateCustom(code, secret, at.UTC(), m.validateOpts())
	return err == nil && ok
}

// Code returns the code for secret at time at.
func (m *Manager) Code(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at.UTC(), m.validateOpts())
}

func (m *Manager) generateOpts(label string, secret []byte) totp.GenerateOpts {
	return totp.GenerateOpts{
		Issuer:      m.cfg.Issuer,
		AccountName: label,
		Period:      m.cfg.PeriodSeconds,
		SecretSize:  secretBytes,
		Secret:      secret,
		Digits:      m.digits,
		Algorithm:   m.algorithm,
	}
}

func (m *Manager) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    m.cfg.PeriodSeconds,
		Skew:      m.cfg.Window,
		Digits:    m.digits,
		Algorithm: m.algorithm,
	}
}

func decodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.TrimSpace(secret))
	s = strings.TrimRight(s, "=")
	if s == "" {
		return nil, ErrInvalidSecret
	}
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(s)
	if err != nil || len(raw) < 10 {
		return nil, ErrInvalidSecret
	}
	return raw, nil
}
