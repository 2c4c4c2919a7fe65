package lexauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/lexauth/internal/flows"
)

// Login verifies a password and, for MFA accounts, a TOTP or backup code.
//
// Unknown email and wrong password both fail with ErrInvalidCredentials.
// When MFA is enabled and no code is supplied the result has RequiresMFA set
// and carries no tokens; no session is created.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	res := flows.RunLogin(ctx, email, req.Password, strings.TrimSpace(req.MFACode), clientIPFromContext(ctx), e.flows.Login)
	if res.Failure != flows.LoginFailureNone {
		err := loginError(res)
		eventType := EventLoginFailure
		if errors.Is(err, ErrRateLimited) {
			eventType = EventLoginRateLimited
		}
		e.emitAudit(ctx, eventType, res.AccountID, "", err, nil)
		return nil, err
	}

	if res.RequiresMFA {
		e.emitAudit(ctx, EventMFARequired, res.AccountID, "", nil, nil)
		return &LoginResult{RequiresMFA: true, AccountID: res.AccountID}, nil
	}

	if err := e.store.TouchLastLogin(ctx, res.AccountID, e.now().UTC()); err != nil {
		e.warn("lexauth: last login update failed", "account_id", res.AccountID, "error", err)
	}
	if res.Rehash && e.config.Password.UpgradeOnLogin {
		e.rehashPassword(ctx, res.AccountID, req.Password)
	}

	if res.UsedBackupCode {
		e.emitAudit(ctx, EventBackupCodeUsed, res.AccountID, res.Session.SessionID, nil, nil)
	}
	e.emitAudit(ctx, EventLoginSuccess, res.AccountID, res.Session.SessionID, nil, nil)

	return &LoginResult{
		TokenPair: e.tokenPair(res.Session.AccessToken, res.Session.RefreshToken),
		AccountID: res.AccountID,
		SessionID: res.Session.SessionID,
	}, nil
}

func loginError(res flows.LoginResult) error {
	switch res.Failure {
	case flows.LoginFailureRateLimited, flows.LoginFailureMFARateLimited:
		return rateError(res.Err)
	case flows.LoginFailureUnknownAccount, flows.LoginFailureBadPassword:
		return ErrInvalidCredentials
	case flows.LoginFailureInactive:
		return ErrAccountInactive
	case flows.LoginFailureMFASecret:
		return errors.Join(ErrMFASecretUnavailable, res.Err)
	case flows.LoginFailureInvalidMFACode:
		return ErrInvalidMFACode
	default:
		return storeError(res.Err)
	}
}
