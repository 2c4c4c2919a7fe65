package lexauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/MrEthical07/lexauth/internal"
	"github.com/MrEthical07/lexauth/mail"
)

// ChangePassword replaces the password of an authenticated account after
// verifying the current one, then revokes every session.
func (e *Engine) ChangePassword(ctx context.Context, accountID, current, next string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	err := e.changePassword(ctx, accountID, current, next)
	if err != nil {
		e.emitAudit(ctx, EventPasswordChangeFailure, accountID, "", err, nil)
		return err
	}
	e.emitAudit(ctx, EventPasswordChangeSuccess, accountID, "", nil, nil)
	return nil
}

func (e *Engine) changePassword(ctx context.Context, accountID, current, next string) error {
	acct, err := e.account(ctx, accountID)
	if err != nil {
		return err
	}
	if ok, _ := e.hasher.Verify(current, acct.PasswordHash); !ok {
		return ErrInvalidCredentials
	}
	if err := e.checkPasswordPolicy(next); err != nil {
		return err
	}
	if next == current {
		return fmt.Errorf("%w: new password must differ from the current one", ErrPasswordPolicy)
	}

	if err := e.setPassword(ctx, acct.ID, next); err != nil {
		return err
	}
	e.revokeAllBestEffort(ctx, acct.ID)
	return nil
}

// RequestPasswordReset mails a single-use reset link to an active account.
// The result never reveals whether email is registered: unknown, inactive
// and rate limited addresses all return nil.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}

	if err := e.limiter.AllowReset(ctx, email); err != nil {
		e.emitAudit(ctx, EventPasswordResetRequest, "", "", errors.Join(ErrRateLimited, err), nil)
		return nil
	}

	acct, err := e.store.AccountByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		e.emitAudit(ctx, EventPasswordResetRequest, "", "", ErrNotFound, nil)
		return nil
	}
	if err != nil {
		return storeError(err)
	}
	if !acct.IsActive {
		e.emitAudit(ctx, EventPasswordResetRequest, acct.ID, "", ErrAccountInactive, nil)
		return nil
	}

	token, err := internal.NewOpaqueToken(internal.OpaqueTokenBytes)
	if err != nil {
		return err
	}
	ttl := e.config.PasswordReset.TokenTTL
	expires := e.now().Add(ttl).UTC()
	if err := e.store.SetResetToken(ctx, acct.ID, internal.HashOpaqueToken(token), expires); err != nil {
		return storeError(err)
	}

	subject, body := mail.PasswordResetMessage(e.resetLink(token), ttl)
	e.sendMail(acct.Email, subject, body)
	e.emitAudit(ctx, EventPasswordResetRequest, acct.ID, "", nil, nil)
	return nil
}

// ConfirmPasswordReset sets a new password using a reset token and revokes
// every session. The policy is checked before the token is looked up, so a
// rejected password leaves the token usable. Any other outcome consumes it.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	accountID, err := e.confirmPasswordReset(ctx, token, newPassword)
	if err != nil {
		e.emitAudit(ctx, EventPasswordResetFailure, accountID, "", err, nil)
		return err
	}
	e.emitAudit(ctx, EventPasswordResetConfirm, accountID, "", nil, nil)
	return nil
}

func (e *Engine) confirmPasswordReset(ctx context.Context, token, newPassword string) (string, error) {
	if token == "" {
		return "", ErrInvalidOrExpiredToken
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return "", err
	}

	acct, err := e.store.AccountByResetToken(ctx, internal.HashOpaqueToken(token))
	if errors.Is(err, ErrNotFound) {
		return "", ErrInvalidOrExpiredToken
	}
	if err != nil {
		return "", storeError(err)
	}

	// Only the caller that clears the token may redeem it.
	cleared, err := e.store.ClearResetToken(ctx, acct.ID, acct.ResetTokenHash)
	if err != nil {
		return acct.ID, storeError(err)
	}
	if !cleared {
		return acct.ID, ErrInvalidOrExpiredToken
	}
	if !e.now().Before(acct.ResetTokenExpires) {
		return acct.ID, errors.Join(ErrInvalidOrExpiredToken, ErrResetTokenExpired)
	}
	if !acct.IsActive {
		return acct.ID, ErrAccountInactive
	}

	if err := e.setPassword(ctx, acct.ID, newPassword); err != nil {
		return acct.ID, err
	}
	e.revokeAllBestEffort(ctx, acct.ID)

	subject, body := mail.PasswordChangedMessage()
	e.sendMail(acct.Email, subject, body)
	return acct.ID, nil
}

func (e *Engine) setPassword(ctx context.Context, accountID, pw string) error {
	digest, err := e.hasher.Hash(pw)
	if err != nil {
		return errors.Join(ErrPasswordPolicy, err)
	}
	if err := e.store.UpdatePasswordHash(ctx, accountID, digest); err != nil {
		return storeError(err)
	}
	return nil
}

// revokeAllBestEffort logs out every session after a credential change.
func (e *Engine) revokeAllBestEffort(ctx context.Context, accountID string) {
	n, err := e.sessions.RevokeAllForAccount(ctx, accountID, e.now())
	if err != nil {
		e.warn("lexauth: session revocation after password change failed", "account_id", accountID, "error", err)
		return
	}
	e.emitAudit(ctx, EventLogoutAll, accountID, "", nil, map[string]string{"revoked": fmt.Sprint(n)})
}

func (e *Engine) resetLink(token string) string {
	cfg := e.config.PasswordReset
	return strings.TrimRight(cfg.FrontendURL, "/") + cfg.Path + "?token=" + url.QueryEscape(token)
}

// notice is one queued account email.
type notice struct {
	to, subject, body string
}

// sendMail queues a notice without waiting for delivery.
func (e *Engine) sendMail(to, subject, body string) {
	if e.mailer == nil {
		e.warn("lexauth: no mailer configured, message dropped", "subject", subject)
		return
	}
	if !e.outbound.Offer(notice{to: to, subject: subject, body: body}) {
		e.warn("lexauth: mail queue full, message dropped", "subject", subject)
	}
}

func (e *Engine) deliver(ctx context.Context, n notice) {
	if err := e.mailer.Send(ctx, n.to, n.subject, n.body); err != nil {
		e.warn("lexauth: mail delivery failed", "subject", n.subject, "error", err)
	}
}
