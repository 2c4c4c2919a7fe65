package lexauth

import (
	"context"
	"time"

	"github.com/MrEthical07/lexauth/permission"
	"github.com/MrEthical07/lexauth/session"
)

// Account is an identity record. PasswordHash, MFASecret and ResetTokenHash
// never leave the engine; use [Account.Public] before returning one.
type Account struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Username    string    `json:"username,omitempty"`
	FullName    string    `json:"full_name,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Timezone    string    `json:"timezone,omitempty"`
	Language    string    `json:"language,omitempty"`
	IsActive    bool      `json:"is_active"`
	IsVerified  bool      `json:"is_verified"`
	IsSuperuser bool      `json:"is_superuser"`
	MFAEnabled  bool      `json:"mfa_enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastLoginAt time.Time `json:"last_login_at,omitempty"`

	PasswordHash      string    `json:"-"`
	MFASecret         string    `json:"-"`
	ResetTokenHash    string    `json:"-"`
	ResetTokenExpires time.Time `json:"-"`
}

// Public returns a copy without credential material.
func (a Account) Public() Account {
	a.PasswordHash = ""
	a.MFASecret = ""
	a.ResetTokenHash = ""
	a.ResetTokenExpires = time.Time{}
	return a
}

// Profile returns the fields an account holder may edit.
func (a Account) Profile() Profile {
	return Profile{
		Username:  a.Username,
		FullName:  a.FullName,
		Bio:       a.Bio,
		AvatarURL: a.AvatarURL,
		Timezone:  a.Timezone,
		Language:  a.Language,
	}
}

// Profile is the self-service part of an account.
type Profile struct {
	Username  string
	FullName  string
	Bio       string
	AvatarURL string
	Timezone  string
	Language  string
}

// MFAPending reports whether a secret exists that has not been verified yet.
func (a Account) MFAPending() bool {
	return !a.MFAEnabled && a.MFASecret != ""
}

// APIKey is a stored key. KeyHash is never serialized.
type APIKey struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"-"`
	Name       string    `json:"name"`
	Prefix     string    `json:"key_prefix"`
	KeyHash    string    `json:"-"`
	Scopes     []string  `json:"scopes,omitempty"`
	IsActive   bool      `json:"is_active"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Usable reports whether the key is active and unexpired at now.
func (k APIKey) Usable(now time.Time) bool {
	return k.IsActive && (k.ExpiresAt.IsZero() || now.Before(k.ExpiresAt))
}

// IssuedAPIKey is the creation response; Key is the only copy of the raw key.
type IssuedAPIKey struct {
	APIKey
	Key string `json:"key"`
}

// RegisterRequest carries registration input.
type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

// ProfileUpdate changes the non-nil fields of a profile. An empty string
// clears a field.
type ProfileUpdate struct {
	Username  *string `json:"username,omitempty"`
	FullName  *string `json:"full_name,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	Timezone  *string `json:"timezone,omitempty"`
	Language  *string `json:"language,omitempty"`
}

// LoginRequest carries login input. MFACode may be a TOTP or backup code.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfa_code,omitempty"`
}

// TokenPair is an issued access and refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// LoginResult is either a token pair or a request for an MFA code.
type LoginResult struct {
	TokenPair
	RequiresMFA bool   `json:"requires_mfa"`
	AccountID   string `json:"account_id,omitempty"`
	SessionID   string `json:"-"`
}

// SessionInfo is the public view of a session.
type SessionInfo struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	IP             string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	Current        bool      `json:"is_current"`
}

// MFASetup is returned once by SetupMFA. BackupCodes are never shown again.
type MFASetup struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

// Credentials are what a protected request presented.
type Credentials struct {
	Bearer string
	APIKey string
}

// AuthMethod names how an identity was authenticated.
type AuthMethod string

const (
	AuthMethodBearer AuthMethod = "bearer"
	AuthMethodAPIKey AuthMethod = "api_key"
)

// Identity is an authenticated caller.
type Identity struct {
	Account   Account
	Method    AuthMethod
	SessionID string
	APIKeyID  string
	Scopes    []string
	Roles     *permission.Resolver
}

// AccountID returns the authenticated account's id.
func (i *Identity) AccountID() string {
	if i == nil {
		return ""
	}
	return i.Account.ID
}

// Requirement is what a protected operation needs. Every listed permission
// is required; at least one listed role is required when AnyRole is set.
type Requirement struct {
	AnyRole        []string
	AllPermissions []string
}

// AccountStore persists accounts. Lookups return ErrNotFound when nothing
// matches. CreateAccount and UpdateProfile return ErrDuplicateIdentity on a
// taken email or username. CreateAccount stores the account together with
// its roles or not at all; an unknown role is ErrNotFound.
type AccountStore interface {
	CreateAccount(ctx context.Context, a *Account, roles ...string) error
	AccountByID(ctx context.Context, id string) (*Account, error)
	AccountByEmail(ctx context.Context, email string) (*Account, error)
	AccountByUsername(ctx context.Context, username string) (*Account, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	UpdateProfile(ctx context.Context, id string, p Profile) error
	UpdateMFA(ctx context.Context, id, encryptedSecret string, enabled bool) error
	SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error
	AccountByResetToken(ctx context.Context, tokenHash string) (*Account, error)
	// ClearResetToken removes the reset token only while it still equals
	// tokenHash and reports whether it did.
	ClearResetToken(ctx context.Context, id, tokenHash string) (bool, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// RoleStore assigns and loads roles.
type RoleStore interface {
	AssignRole(ctx context.Context, accountID, roleName string) error
	RolesForAccount(ctx context.Context, accountID string) ([]permission.Role, error)
}

// APIKeyStore persists API keys. APIKeyByID returns ErrNotFound.
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, k *APIKey) error
	APIKeysByPrefix(ctx context.Context, prefix string) ([]APIKey, error)
	APIKeysForAccount(ctx context.Context, accountID string) ([]APIKey, error)
	APIKeyByID(ctx context.Context, id string) (*APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
}

// BackupCodeStore persists backup code hashes. ConsumeBackupCode removes a
// matching hash atomically and reports whether one was removed.
type BackupCodeStore interface {
	ReplaceBackupCodes(ctx context.Context, accountID string, hashes []string) error
	ConsumeBackupCode(ctx context.Context, accountID, hash string) (bool, error)
	RemainingBackupCodes(ctx context.Context, accountID string) (int, error)
	DeleteBackupCodes(ctx context.Context, accountID string) error
}

// Store is the full persistence surface the engine needs besides sessions.
type Store interface {
	AccountStore
	RoleStore
	APIKeyStore
	BackupCodeStore
}

// SessionStore persists sessions. Implemented by session.RedisStore and
// store/memory.
type SessionStore interface {
	Create(ctx context.Context, s *session.Session) error
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	FindByRefreshHash(ctx context.Context, hash string) (*session.Session, error)
	ReplaceAccess(ctx context.Context, sessionID, accessHash string, at time.Time) error
	Rotate(ctx context.Context, sessionID, oldRefresh, newRefresh, newAccess string, at time.Time) error
	Touch(ctx context.Context, sessionID string, at time.Time) error
	Revoke(ctx context.Context, sessionID string, at time.Time) error
	RevokeAllForAccount(ctx context.Context, accountID string, at time.Time) (int, error)
	ListForAccount(ctx context.Context, accountID string) ([]*session.Session, error)
}

// EmailSender delivers a message. Implemented in package mail.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}
