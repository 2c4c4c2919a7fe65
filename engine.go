package lexauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrEthical07/lexauth/apikey"
	"github.com/MrEthical07/lexauth/fieldenc"
	"github.com/MrEthical07/lexauth/internal"
	"github.com/MrEthical07/lexauth/internal/audit"
	"github.com/MrEthical07/lexauth/internal/flows"
	"github.com/MrEthical07/lexauth/internal/queue"
	"github.com/MrEthical07/lexauth/internal/rate"
	"github.com/MrEthical07/lexauth/jwt"
	"github.com/MrEthical07/lexauth/mfa"
	"github.com/MrEthical07/lexauth/password"
	"github.com/MrEthical07/lexauth/permission"
	"github.com/MrEthical07/lexauth/session"
)

// Engine runs every authentication flow. Build one with [New].
type Engine struct {
	config    Config
	store     Store
	sessions  SessionStore
	hasher    *password.Hasher
	tokens    *jwt.Manager
	fields    *fieldenc.Encryptor
	mfa       *mfa.Manager
	keys      *apikey.Manager
	registry  *permission.Registry
	limiter   *rate.Limiter
	audit     *audit.Dispatcher
	mailer    EmailSender
	outbound  *queue.Queue[notice]
	logger    *slog.Logger
	now       func() time.Time
	dummyHash string
	flows     flows.Deps
}

// Close delivers queued mail and pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.outbound.Close()
	e.audit.Close()
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

func (e *Engine) warn(msg string, args ...any) {
	e.logger.Warn(msg, args...)
}

func (e *Engine) flowDeps() flows.Deps {
	return flows.Deps{
		Login: flows.LoginDeps{
			Now:              e.now,
			CheckRate:        e.limiter.CheckLogin,
			RecordFailure:    e.limiter.RecordLoginFailure,
			ResetRate:        e.limiter.ResetLogin,
			CheckMFARate:     e.limiter.CheckMFA,
			RecordMFAFailure: e.limiter.RecordMFAFailure,
			ResetMFARate:     e.limiter.ResetMFA,
			LookupAccount:    e.loginAccount,
			VerifyPassword:   e.hasher.Verify,
			DummyVerify: func(pw string) {
				_, _ = e.hasher.Verify(pw, e.dummyHash)
			},
			DecryptSecret:     e.fields.Decrypt,
			VerifyTOTP:        e.mfa.Verify,
			ConsumeBackupCode: e.consumeBackupCode,
			IssueSession:      e.issueSession,
			NotFound:          ErrNotFound,
			Warn:              e.warn,
		},
		Refresh: flows.RefreshDeps{
			Rotate:     e.config.Session.RotateRefreshTokens,
			Now:        e.now,
			ParseToken: e.tokens.Parse,
			AccountActive: func(ctx context.Context, id string) (bool, error) {
				acct, err := e.store.AccountByID(ctx, id)
				if err != nil {
					return false, err
				}
				return acct.IsActive, nil
			},
			IssueAccess: func(sub, sid string) (string, error) {
				token, _, err := e.tokens.IssueAccess(sub, sid)
				return token, err
			},
			IssueRefresh: func(sub, sid string) (string, error) {
				token, _, err := e.tokens.IssueRefresh(sub, sid)
				return token, err
			},
			HashToken:       session.HashToken,
			Sessions:        e.sessions,
			AccountNotFound: ErrNotFound,
			Warn:            e.warn,
		},
		Bearer: flows.BearerDeps{
			Bind:       e.config.Session.BindAccessTokens,
			Now:        e.now,
			ParseToken: e.tokens.Parse,
			HashToken:  session.HashToken,
			Sessions:   e.sessions,
			Warn:       e.warn,
		},
		APIKey: flows.APIKeyDeps{
			Now:      e.now,
			PrefixOf: apikey.PrefixOf,
			Lookup:   e.apiKeyRecords,
			Verify:   e.keys.Verify,
			Touch:    e.store.TouchAPIKey,
			Warn:     e.warn,
		},
	}
}

func (e *Engine) loginAccount(ctx context.Context, email string) (*flows.LoginAccount, error) {
	acct, err := e.store.AccountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return &flows.LoginAccount{
		ID:           acct.ID,
		PasswordHash: acct.PasswordHash,
		IsActive:     acct.IsActive,
		MFAEnabled:   acct.MFAEnabled,
		MFASecret:    acct.MFASecret,
	}, nil
}

func (e *Engine) consumeBackupCode(ctx context.Context, accountID, code string) (bool, error) {
	canonical := mfa.CanonicalizeBackupCode(code)
	if canonical == "" {
		return false, nil
	}
	return e.store.ConsumeBackupCode(ctx, accountID, mfa.HashBackupCode(accountID, canonical))
}

func (e *Engine) apiKeyRecords(ctx context.Context, prefix string) ([]flows.APIKeyRecord, error) {
	keys, err := e.store.APIKeysByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]flows.APIKeyRecord, 0, len(keys))
	for _, k := range keys {
		out = append(out, flows.APIKeyRecord{
			ID:        k.ID,
			AccountID: k.AccountID,
			Hash:      k.KeyHash,
			Active:    k.IsActive,
			ExpiresAt: k.ExpiresAt,
			Scopes:    k.Scopes,
		})
	}
	return out, nil
}

// issueSession mints a token pair and persists its session.
func (e *Engine) issueSession(ctx context.Context, accountID string) (flows.IssuedSession, error) {
	sid := internal.NewID()

	access, _, err := e.tokens.IssueAccess(accountID, sid)
	if err != nil {
		return flows.IssuedSession{}, err
	}
	refresh, refreshClaims, err := e.tokens.IssueRefresh(accountID, sid)
	if err != nil {
		return flows.IssuedSession{}, err
	}

	now := e.now()
	sess := &session.Session{
		ID:             sid,
		AccountID:      accountID,
		AccessHash:     session.HashToken(access),
		RefreshHash:    session.HashToken(refresh),
		CreatedAt:      now,
		ExpiresAt:      refreshClaims.ExpiresAt.Time,
		LastActivityAt: now,
		IP:             clientIPFromContext(ctx),
		UserAgent:      userAgentFromContext(ctx),
	}
	if err := e.sessions.Create(ctx, sess); err != nil {
		return flows.IssuedSession{}, err
	}

	return flows.IssuedSession{SessionID: sid, AccessToken: access, RefreshToken: refresh}, nil
}

func (e *Engine) tokenPair(access, refresh string) TokenPair {
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(e.tokens.AccessTTL() / time.Second),
	}
}

// account loads an account, mapping store failures.
func (e *Engine) account(ctx context.Context, accountID string) (*Account, error) {
	if accountID == "" {
		return nil, ErrNotFound
	}
	acct, err := e.store.AccountByID(ctx, accountID)
	if err != nil {
		return nil, storeError(err)
	}
	return acct, nil
}

// storeError keeps the public kinds stores return and wraps everything else.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDuplicateIdentity):
		return err
	case errors.Is(err, session.ErrNotFound):
		return errors.Join(ErrNotFound, err)
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// rateError separates an exhausted budget from a limiter backend failure.
func rateError(err error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		return errors.Join(ErrRateLimited, err)
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" || len(email) > 254 {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: email is malformed", ErrInvalidInput)
	}
	return nil
}

func (e *Engine) checkPasswordPolicy(pw string) error {
	n := utf8.RuneCountInString(pw)
	if n < e.config.Password.MinLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrPasswordPolicy, e.config.Password.MinLength)
	}
	if n > e.config.Password.MaxLength {
		return fmt.Errorf("%w: must be at most %d characters", ErrPasswordPolicy, e.config.Password.MaxLength)
	}
	if strings.TrimSpace(pw) == "" {
		return fmt.Errorf("%w: must not be blank", ErrPasswordPolicy)
	}
	return nil
}

// rehashPassword replaces a legacy digest. Failures are logged only.
func (e *Engine) rehashPassword(ctx context.Context, accountID, pw string) {
	digest, err := e.hasher.Hash(pw)
	if err != nil {
		e.warn("lexauth: password rehash failed", "account_id", accountID, "error", err)
		return
	}
	if err := e.store.UpdatePasswordHash(ctx, accountID, digest); err != nil {
		e.warn("lexauth: password rehash store failed", "account_id", accountID, "error", err)
	}
}
