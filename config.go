package lexauth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/lexauth/internal/audit"
	"github.com/MrEthical07/lexauth/internal/rate"
	"github.com/MrEthical07/lexauth/mfa"
	"github.com/MrEthical07/lexauth/password"
)

// Config is the engine configuration. It is copied into the Engine at
// build time and never mutated afterwards.
type Config struct {
	JWT             JWTConfig             `yaml:"jwt"`
	Session         SessionConfig         `yaml:"session"`
	Password        PasswordConfig        `yaml:"password"`
	PasswordReset   PasswordResetConfig   `yaml:"password_reset"`
	Mail            MailConfig            `yaml:"mail_queue"`
	MFA             mfa.Config            `yaml:"mfa"`
	FieldEncryption FieldEncryptionConfig `yaml:"field_encryption"`
	Accounts        AccountConfig         `yaml:"accounts"`
	APIKeys         APIKeyConfig          `yaml:"api_keys"`
	RateLimit       RateLimitConfig       `yaml:"rate_limit"`
	Audit           audit.Config          `yaml:"audit"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures token signing.
type JWTConfig struct {
	SigningMethod string        `yaml:"signing_method"` // "hs256" (default) or "ed25519"
	Secret        string        `yaml:"-"`
	PublicKey     string        `yaml:"-"`
	AccessTTL     time.Duration `yaml:"access_ttl"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	Leeway        time.Duration `yaml:"leeway"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session tracking.
type SessionConfig struct {
	RedisPrefix string `yaml:"redis_prefix"`
	// RotateRefreshTokens issues a new refresh token on every refresh and
	// treats reuse of a retired one as theft.
	RotateRefreshTokens bool `yaml:"rotate_refresh_tokens"`
	// BindAccessTokens requires a bearer token to match the session's
	// current access hash.
	BindAccessTokens bool `yaml:"bind_access_tokens"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the hash scheme and the password policy.
type PasswordConfig struct {
	Hash           password.Config `yaml:"hash"`
	MinLength      int             `yaml:"min_length"`
	MaxLength      int             `yaml:"max_length"`
	UpgradeOnLogin bool            `yaml:"upgrade_on_login"`
}

// PasswordResetConfig controls reset tokens and links.
type PasswordResetConfig struct {
	TokenTTL    time.Duration `yaml:"token_ttl"`
	FrontendURL string        `yaml:"frontend_url"`
	Path        string        `yaml:"path"`
}

// MailConfig bounds background delivery of account notices. Requests only
// enqueue; a full queue drops the notice and logs it.
type MailConfig struct {
	BufferSize  int           `yaml:"buffer_size"`
	SendTimeout time.Duration `yaml:"send_timeout"`
}

// FieldEncryptionConfig keys the at-rest encryption of MFA secrets. An empty
// Secret falls back to the JWT secret.
type FieldEncryptionConfig struct {
	Secret string `yaml:"-"`
}

// AccountConfig controls registration.
type AccountConfig struct {
	AllowRegistration bool   `yaml:"allow_registration"`
	DefaultRole       string `yaml:"default_role"`
}

// APIKeyConfig bounds API key lifetimes. Zero MaxTTL means unbounded.
type APIKeyConfig struct {
	MaxTTL     time.Duration `yaml:"max_ttl"`
	MaxPerUser int           `yaml:"max_per_user"`
}

// RateLimitConfig enables the Redis limiter when a Redis client is supplied.
type RateLimitConfig struct {
	Enabled     bool `yaml:"enabled"`
	rate.Config `yaml:",inline"`
}

// DefaultConfig returns the production defaults. JWT.Secret must still be set.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: "hs256",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			Issuer:        "lexicon",
		},
		Session: SessionConfig{
			RedisPrefix:         "lexauth",
			RotateRefreshTokens: true,
			BindAccessTokens:    true,
		},
		Password: PasswordConfig{
			Hash:           password.DefaultConfig(),
			MinLength:      8,
			MaxLength:      128,
			UpgradeOnLogin: true,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL:    time.Hour,
			FrontendURL: "http://localhost:3000",
			Path:        "/reset-password",
		},
		Mail: MailConfig{
			BufferSize:  256,
			SendTimeout: 30 * time.Second,
		},
		MFA: mfa.DefaultConfig(),
		Accounts: AccountConfig{
			AllowRegistration: true,
			DefaultRole:       "user",
		},
		APIKeys: APIKeyConfig{
			MaxTTL:     365 * 24 * time.Hour,
			MaxPerUser: 50,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Config:  rate.DefaultConfig(),
		},
		Audit: audit.Config{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	switch c.JWT.SigningMethod {
	case "hs256", "":
		if len(c.JWT.Secret) < 32 {
			return errors.New("JWT Secret must be at least 32 bytes for hs256")
		}
	case "ed25519":
		if c.JWT.Secret == "" {
			return errors.New("ed25519 requires a private key in JWT Secret")
		}
	default:
		return fmt.Errorf("unsupported JWT signing method %q", c.JWT.SigningMethod)
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}

	// Password
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	// Password reset
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}
	if u, err := url.Parse(c.PasswordReset.FrontendURL); err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("PasswordReset FrontendURL must be an absolute URL")
	}
	if !strings.HasPrefix(c.PasswordReset.Path, "/") {
		return errors.New("PasswordReset Path must start with /")
	}

	// Mail
	if c.Mail.BufferSize <= 0 {
		return errors.New("Mail BufferSize must be > 0")
	}
	if c.Mail.SendTimeout <= 0 {
		return errors.New("Mail SendTimeout must be > 0")
	}

	// Field encryption
	if c.FieldEncryption.Secret != "" && len(c.FieldEncryption.Secret) < 32 {
		return errors.New("FieldEncryption Secret must be at least 32 bytes")
	}

	// Accounts
	if strings.TrimSpace(c.Accounts.DefaultRole) == "" {
		return errors.New("Accounts DefaultRole must be set")
	}

	// API keys
	if c.APIKeys.MaxTTL < 0 {
		return errors.New("APIKeys MaxTTL must be >= 0")
	}
	if c.APIKeys.MaxPerUser < 0 {
		return errors.New("APIKeys MaxPerUser must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}

func (c *Config) fieldSecret() []byte {
	if c.FieldEncryption.Secret != "" {
		return []byte(c.FieldEncryption.Secret)
	}
	return []byte(c.JWT.Secret)
}
