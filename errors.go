package lexauth

import "errors"

// Public error kinds. Callers match them with errors.Is; the specific cause
// is joined underneath so audit records can tell failures apart.
var (
	// ErrInvalidCredentials covers unknown email and wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountInactive is returned for deactivated accounts.
	ErrAccountInactive = errors.New("account inactive")
	// ErrInvalidOrExpiredToken covers bad signature, malformed token, wrong
	// type, expiry, dead session and refresh reuse.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	// ErrInvalidMFACode is returned when a TOTP or backup code does not verify.
	ErrInvalidMFACode = errors.New("invalid mfa code")
	// ErrMFAAlreadyEnabled is returned by setup and verify once MFA is active.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrMFANotEnabled is returned when disabling or regenerating without MFA.
	ErrMFANotEnabled = errors.New("mfa not enabled")
	// ErrMFASetupNotInitiated is returned by verify without a pending secret.
	ErrMFASetupNotInitiated = errors.New("mfa setup not initiated")
	// ErrMFASecretUnavailable is returned when the stored secret cannot be
	// decrypted. The flow fails closed.
	ErrMFASecretUnavailable = errors.New("mfa secret unavailable")
	// ErrForbidden is returned for authenticated callers lacking a role or permission.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated is returned when no credential was presented or none verified.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNotFound is returned for missing resources and for resources owned
	// by another account.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateIdentity is returned when an email or username is taken.
	ErrDuplicateIdentity = errors.New("email or username already registered")
	// ErrRateLimited is returned when a caller exceeded an attempt budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidInput is returned for malformed requests.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPasswordPolicy is returned when a new password violates the policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrStoreUnavailable wraps persistence failures.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEngineNotReady is returned when a required collaborator is missing.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Internal causes joined under ErrInvalidOrExpiredToken.
var (
	ErrTokenWrongType    = errors.New("token type mismatch")
	ErrSessionDead       = errors.New("session revoked or expired")
	ErrAccessSuperseded  = errors.New("access token superseded")
	ErrRefreshReuse      = errors.New("refresh token reuse detected")
	ErrResetTokenExpired = errors.New("reset token expired")
)
