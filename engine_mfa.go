package lexauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/lexauth/mfa"
)

// SetupMFA generates a TOTP secret and backup codes for accountID. The
// secret is stored encrypted and stays pending until VerifyMFA succeeds.
// Calling it again before verification replaces the pending secret.
func (e *Engine) SetupMFA(ctx context.Context, accountID string) (*MFASetup, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	setup, err := e.setupMFA(ctx, accountID)
	if err != nil {
		e.emitAudit(ctx, EventMFASetupRequested, accountID, "", err, nil)
		return nil, err
	}
	e.emitAudit(ctx, EventMFASetupRequested, accountID, "", nil, nil)
	return setup, nil
}

func (e *Engine) setupMFA(ctx context.Context, accountID string) (*MFASetup, error) {
	acct, err := e.account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}

	key, err := e.mfa.GenerateSecret(acct.Email)
	if err != nil {
		return nil, err
	}
	sealed, err := e.fields.Encrypt(key.Secret)
	if err != nil {
		return nil, err
	}
	if err := e.store.UpdateMFA(ctx, acct.ID, sealed, false); err != nil {
		return nil, storeError(err)
	}

	codes, err := e.replaceBackupCodes(ctx, acct.ID)
	if err != nil {
		return nil, err
	}

	return &MFASetup{Secret: key.Secret, ProvisioningURI: key.URI, BackupCodes: codes}, nil
}

// VerifyMFA confirms a pending secret with a TOTP code and enables MFA.
func (e *Engine) VerifyMFA(ctx context.Context, accountID, code string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	err := e.verifyMFA(ctx, accountID, strings.TrimSpace(code))
	if err != nil {
		e.emitAudit(ctx, EventMFAFailure, accountID, "", err, nil)
		return err
	}
	e.emitAudit(ctx, EventMFAEnabled, accountID, "", nil, nil)
	return nil
}

func (e *Engine) verifyMFA(ctx context.Context, accountID, code string) error {
	acct, err := e.account(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.MFAEnabled {
		return ErrMFAAlreadyEnabled
	}
	if acct.MFASecret == "" {
		return ErrMFASetupNotInitiated
	}
	if err := e.checkTOTP(ctx, acct, code); err != nil {
		return err
	}
	if err := e.store.UpdateMFA(ctx, acct.ID, acct.MFASecret, true); err != nil {
		return storeError(err)
	}
	return nil
}

// DisableMFA turns MFA off after re-checking the password. A supplied code
// must verify as well. The secret and every backup code are removed.
func (e *Engine) DisableMFA(ctx context.Context, accountID, password, code string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	err := e.disableMFA(ctx, accountID, password, strings.TrimSpace(code))
	if err != nil {
		e.emitAudit(ctx, EventMFAFailure, accountID, "", err, nil)
		return err
	}
	e.emitAudit(ctx, EventMFADisabled, accountID, "", nil, nil)
	return nil
}

func (e *Engine) disableMFA(ctx context.Context, accountID, password, code string) error {
	acct, err := e.account(ctx, accountID)
	if err != nil {
		return err
	}
	if !acct.MFAEnabled {
		return ErrMFANotEnabled
	}
	if ok, _ := e.hasher.Verify(password, acct.PasswordHash); !ok {
		return ErrInvalidCredentials
	}
	if code != "" {
		if err := e.checkTOTP(ctx, acct, code); err != nil {
			return err
		}
	}

	if err := e.store.UpdateMFA(ctx, acct.ID, "", false); err != nil {
		return storeError(err)
	}
	if err := e.store.DeleteBackupCodes(ctx, acct.ID); err != nil {
		return storeError(err)
	}
	return nil
}

// RegenerateBackupCodes replaces every backup code of an MFA account. It
// needs a current TOTP code.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, accountID, code string) ([]string, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	codes, err := e.regenerateBackupCodes(ctx, accountID, strings.TrimSpace(code))
	if err != nil {
		e.emitAudit(ctx, EventBackupCodesGenerated, accountID, "", err, nil)
		return nil, err
	}
	e.emitAudit(ctx, EventBackupCodesGenerated, accountID, "", nil, map[string]string{"count": fmt.Sprint(len(codes))})
	return codes, nil
}

func (e *Engine) regenerateBackupCodes(ctx context.Context, accountID, code string) ([]string, error) {
	acct, err := e.account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !acct.MFAEnabled {
		return nil, ErrMFANotEnabled
	}
	if err := e.checkTOTP(ctx, acct, code); err != nil {
		return nil, err
	}
	return e.replaceBackupCodes(ctx, acct.ID)
}

// RemainingBackupCodes returns how many unused backup codes accountID has.
func (e *Engine) RemainingBackupCodes(ctx context.Context, accountID string) (int, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.store.RemainingBackupCodes(ctx, accountID)
	if err != nil {
		return 0, storeError(err)
	}
	return n, nil
}

// checkTOTP decrypts the stored secret and verifies code against it, under
// the MFA attempt budget. It fails closed on an undecryptable secret.
func (e *Engine) checkTOTP(ctx context.Context, acct *Account, code string) error {
	if code == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidMFACode)
	}
	if err := e.limiter.CheckMFA(ctx, acct.ID); err != nil {
		return rateError(err)
	}

	secret, err := e.fields.Decrypt(acct.MFASecret)
	if err != nil || secret == "" {
		return errors.Join(ErrMFASecretUnavailable, err)
	}

	if !e.mfa.Verify(secret, code, e.now()) {
		if err := e.limiter.RecordMFAFailure(ctx, acct.ID); err != nil {
			e.warn("lexauth: mfa failure counter update failed", "account_id", acct.ID, "error", err)
		}
		return ErrInvalidMFACode
	}
	if err := e.limiter.ResetMFA(ctx, acct.ID); err != nil {
		e.warn("lexauth: mfa counter reset failed", "account_id", acct.ID, "error", err)
	}
	return nil
}

func (e *Engine) replaceBackupCodes(ctx context.Context, accountID string) ([]string, error) {
	codes, err := mfa.GenerateBackupCodes(e.mfa.BackupCodeCount())
	if err != nil {
		return nil, err
	}
	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = mfa.HashBackupCode(accountID, mfa.CanonicalizeBackupCode(c))
	}
	if err := e.store.ReplaceBackupCodes(ctx, accountID, hashes); err != nil {
		return nil, storeError(err)
	}
	return codes, nil
}
