package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired is returned when exp is in the past (after leeway).
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenSignature is returned when the signature does not verify or the
	// algorithm is not the configured one.
	ErrTokenSignature = errors.New("token signature invalid")
	// ErrTokenMalformed is returned for structurally broken tokens and tokens
	// missing mandatory claims.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenInvalid covers remaining claim failures (issuer, audience, nbf).
	ErrTokenInvalid = errors.New("token invalid")
)

// SigningMethod selects the JWS algorithm.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

// TokenType discriminates access tokens from refresh tokens.
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

// Config configures signing keys, lifetimes and validation.
type Config struct {
	SigningMethod SigningMethod `yaml:"signing_method"`
	// Secret is the HS256 key, or an Ed25519 private key (raw or PEM).
	Secret     []byte        `yaml:"-"`
	PublicKey  []byte        `yaml:"-"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	Leeway     time.Duration `yaml:"leeway"`

	// Clock overrides time.Now. Tests only.
	Clock func() time.Time `yaml:"-"`
}

// Claims is the payload of every token this package issues.
type Claims struct {
	Type TokenType `json:"type"`
	SID  string    `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Manager issues and parses access and refresh tokens under one key.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("jwt: access and refresh TTL must be positive")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("jwt: refresh TTL must not be shorter than access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: leeway must be within [0, 2m]")
	}

	switch cfg.SigningMethod {
	case MethodHS256, "":
		cfg.SigningMethod = MethodHS256
		if len(cfg.Secret) < 32 {
			return nil, errors.New("jwt: hs256 secret must be at least 32 bytes")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.Secret); err != nil {
			return nil, err
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("jwt: unsupported signing method %q", cfg.SigningMethod)
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &Manager{config: cfg, now: now}, nil
}

// IssueAccess mints a short-lived access token for subject bound to sessionID.
func (j *Manager) IssueAccess(subject, sessionID string) (string, *Claims, error) {
	return j.issue(TypeAccess, subject, sessionID, j.config.AccessTTL)
}

// IssueRefresh mints a long-lived refresh token for subject bound to sessionID.
func (j *Manager) IssueRefresh(subject, sessionID string) (string, *Claims, error) {
	return j.issue(TypeRefresh, subject, sessionID, j.config.RefreshTTL)
}

// AccessTTL returns the configured access token lifetime.
func (j *Manager) AccessTTL() time.Duration { return j.config.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (j *Manager) RefreshTTL() time.Duration { return j.config.RefreshTTL }

func (j *Manager) issue(typ TokenType, subject, sessionID string, ttl time.Duration) (string, *Claims, error) {
	if subject == "" {
		return "", nil, errors.New("jwt: empty subject")
	}

	jti, err := newTokenID()
	if err != nil {
		return "", nil, err
	}

	now := j.now()
	claims := &Claims{
		Type: typ,
		SID:  sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    j.config.Issuer,
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	signKey, err := j.signKey()
	if err != nil {
		return "", nil, err
	}

	signed, err := jwt.NewWithClaims(j.method(), claims).SignedString(signKey)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Parse verifies signature, structure and expiry. It does not check the
// token type; callers must use VerifyType.
func (j *Manager) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.method().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(j.now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	token, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return j.verifyKey()
	})
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" || claims.Type == "" {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// VerifyType reports whether claims carry the expected discriminator.
// A nil claims value never matches.
func VerifyType(claims *Claims, expected TokenType) bool {
	return claims != nil && expected != "" && claims.Type == expected
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrTokenSignature, err)
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}

func (j *Manager) method() jwt.SigningMethod {
	if j.config.SigningMethod == MethodEd25519 {
		return jwt.SigningMethodEdDSA
	}
	return jwt.SigningMethodHS256
}

func (j *Manager) signKey() (interface{}, error) {
	if j.config.SigningMethod == MethodEd25519 {
		return parseEdPrivateKey(j.config.Secret)
	}
	return j.config.Secret, nil
}

func (j *Manager) verifyKey() (interface{}, error) {
	if j.config.SigningMethod != MethodEd25519 {
		return j.config.Secret, nil
	}
	if len(j.config.PublicKey) > 0 {
		return parseEdPublicKey(j.config.PublicKey)
	}
	priv, err := parseEdPrivateKey(j.config.Secret)
	if err != nil {
		return nil, err
	}
	return priv.Public(), nil
}

func newTokenID() (string, error) {
	var b [16]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	if !strings.Contains(string(key), "PRIVATE KEY") {
		return nil, errors.New("jwt: invalid ed25519 private key")
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 public key type")
	}
	return edKey, nil
}
