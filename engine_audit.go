package lexauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/lexauth/fieldenc"
	"github.com/MrEthical07/lexauth/internal/audit"
	"github.com/MrEthical07/lexauth/jwt"
)

// AuditEvent is one audit record as delivered to an [AuditSink].
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher. Emit runs on
// the dispatcher goroutine and must not block for long.
type AuditSink = audit.Sink

// Audit event types.
const (
	EventRegisterSuccess       = "register_success"
	EventRegisterFailure       = "register_failure"
	EventProfileUpdated        = "profile_updated"
	EventProfileUpdateFailure  = "profile_update_failure"
	EventLoginSuccess          = "login_success"
	EventLoginFailure          = "login_failure"
	EventLoginRateLimited      = "login_rate_limited"
	EventMFARequired           = "mfa_required"
	EventBackupCodeUsed        = "backup_code_used"
	EventRefreshSuccess        = "refresh_success"
	EventRefreshInvalid        = "refresh_invalid"
	EventRefreshReuseDetected  = "refresh_reuse_detected"
	EventLogoutAll             = "logout_all"
	EventLogoutSession         = "logout_session"
	EventPasswordChangeSuccess = "password_change_success"
	EventPasswordChangeFailure = "password_change_failure"
	EventPasswordResetRequest  = "password_reset_request"
	EventPasswordResetConfirm  = "password_reset_confirm"
	EventPasswordResetFailure  = "password_reset_failure"
	EventMFASetupRequested     = "mfa_setup_requested"
	EventMFAEnabled            = "mfa_enabled"
	EventMFADisabled           = "mfa_disabled"
	EventMFAFailure            = "mfa_failure"
	EventBackupCodesGenerated  = "backup_codes_generated"
	EventAPIKeyCreated         = "api_key_created"
	EventAPIKeyRevoked         = "api_key_revoked"
	EventAuthenticationFailure = "authentication_failure"
	EventAuthorizationDenied   = "authorization_denied"
)

// Audit reason codes, most specific first.
const (
	reasonInvalidCredentials = "invalid_credentials"
	reasonAccountInactive    = "account_inactive"
	reasonRateLimited        = "rate_limited"
	reasonRefreshReuse       = "refresh_reuse"
	reasonTokenExpired       = "token_expired"
	reasonTokenSignature     = "token_signature"
	reasonTokenMalformed     = "token_malformed"
	reasonTokenWrongType     = "token_wrong_type"
	reasonSessionDead        = "session_dead"
	reasonAccessSuperseded   = "access_superseded"
	reasonResetTokenExpired  = "reset_token_expired"
	reasonInvalidToken       = "invalid_token"
	reasonMFAInvalid         = "mfa_invalid"
	reasonMFASecret          = "mfa_secret_unavailable"
	reasonMFAState           = "mfa_state"
	reasonForbidden          = "forbidden"
	reasonUnauthenticated    = "unauthenticated"
	reasonNotFound           = "not_found"
	reasonDuplicate          = "duplicate"
	reasonInvalidInput       = "invalid_input"
	reasonPasswordPolicy     = "password_policy"
	reasonUnavailable        = "backend_unavailable"
	reasonInternal           = "internal_error"
)

func auditReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRefreshReuse):
		return reasonRefreshReuse
	case errors.Is(err, jwt.ErrTokenExpired):
		return reasonTokenExpired
	case errors.Is(err, jwt.ErrTokenSignature):
		return reasonTokenSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return reasonTokenMalformed
	case errors.Is(err, ErrTokenWrongType):
		return reasonTokenWrongType
	case errors.Is(err, ErrSessionDead):
		return reasonSessionDead
	case errors.Is(err, ErrAccessSuperseded):
		return reasonAccessSuperseded
	case errors.Is(err, ErrResetTokenExpired):
		return reasonResetTokenExpired
	case errors.Is(err, fieldenc.ErrDecrypt), errors.Is(err, ErrMFASecretUnavailable):
		return reasonMFASecret
	case errors.Is(err, ErrInvalidCredentials):
		return reasonInvalidCredentials
	case errors.Is(err, ErrAccountInactive):
		return reasonAccountInactive
	case errors.Is(err, ErrRateLimited):
		return reasonRateLimited
	case errors.Is(err, ErrInvalidOrExpiredToken):
		return reasonInvalidToken
	case errors.Is(err, ErrInvalidMFACode):
		return reasonMFAInvalid
	case errors.Is(err, ErrMFAAlreadyEnabled), errors.Is(err, ErrMFANotEnabled), errors.Is(err, ErrMFASetupNotInitiated):
		return reasonMFAState
	case errors.Is(err, ErrForbidden):
		return reasonForbidden
	case errors.Is(err, ErrUnauthenticated):
		return reasonUnauthenticated
	case errors.Is(err, ErrNotFound):
		return reasonNotFound
	case errors.Is(err, ErrDuplicateIdentity):
		return reasonDuplicate
	case errors.Is(err, ErrInvalidInput):
		return reasonInvalidInput
	case errors.Is(err, ErrPasswordPolicy):
		return reasonPasswordPolicy
	case errors.Is(err, ErrStoreUnavailable):
		return reasonUnavailable
	default:
		return reasonInternal
	}
}

// emitAudit records one security outcome. Metadata must never carry secrets.
func (e *Engine) emitAudit(ctx context.Context, eventType, accountID, sessionID string, err error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	e.audit.Emit(ctx, audit.Event{
		Timestamp: e.now().UTC(),
		Type:      eventType,
		AccountID: accountID,
		SessionID: sessionID,
		Success:   err == nil,
		Reason:    auditReason(err),
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Metadata:  metadata,
	})
}
