package flows

import (
	"context"
	"errors"
	"time"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureUnknownAccount
	LoginFailureBadPassword
	LoginFailureInactive
	LoginFailureMFARateLimited
	LoginFailureMFASecret
	LoginFailureInvalidMFACode
	LoginFailureIssue
	LoginFailureStore
)

// LoginAccount is the flow-local account view.
type LoginAccount struct {
	ID           string
	PasswordHash string
	IsActive     bool
	MFAEnabled   bool
	MFASecret    string
}

// IssuedSession is a freshly persisted session and its raw tokens.
type IssuedSession struct {
	SessionID    string
	AccessToken  string
	RefreshToken string
}

// LoginResult carries the outcome. RequiresMFA results have no session.
type LoginResult struct {
	Failure        LoginFailureKind
	Err            error
	AccountID      string
	RequiresMFA    bool
	UsedBackupCode bool
	Rehash         bool
	Session        IssuedSession
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Now func() time.Time

	CheckRate         func(ctx context.Context, email, ip string) error
	RecordFailure     func(ctx context.Context, email, ip string) error
	ResetRate         func(ctx context.Context, email string) error
	CheckMFARate      func(ctx context.Context, accountID string) error
	RecordMFAFailure  func(ctx context.Context, accountID string) error
	ResetMFARate      func(ctx context.Context, accountID string) error
	LookupAccount     func(ctx context.Context, email string) (*LoginAccount, error)
	VerifyPassword    func(password, digest string) (ok bool, rehash bool)
	DummyVerify       func(password string)
	DecryptSecret     func(blob string) (string, error)
	VerifyTOTP        func(secret, code string, at time.Time) bool
	ConsumeBackupCode func(ctx context.Context, accountID, code string) (bool, error)
	IssueSession      func(ctx context.Context, accountID string) (IssuedSession, error)
	NotFound          error
	Warn              func(string, ...any)
}

// RunLogin verifies credentials and MFA and issues a session.
func RunLogin(ctx context.Context, email, password, mfaCode, ip string, deps LoginDeps) LoginResult {
	now := nowOr(deps.Now)
	warn := warnOr(deps.Warn)

	if deps.CheckRate != nil {
		if err := deps.CheckRate(ctx, email, ip); err != nil {
			return LoginResult{Failure: LoginFailureRateLimited, Err: err}
		}
	}

	recordFailure := func() {
		if deps.RecordFailure == nil {
			return
		}
		if err := deps.RecordFailure(ctx, email, ip); err != nil {
			warn("lexauth: login failure counter update failed", "error", err)
		}
	}

	acct, err := deps.LookupAccount(ctx, email)
	if err != nil {
		if deps.NotFound != nil && errors.Is(err, deps.NotFound) {
			// Spend the same work as a real verify.
			if deps.DummyVerify != nil {
				deps.DummyVerify(password)
			}
			recordFailure()
			return LoginResult{Failure: LoginFailureUnknownAccount, Err: err}
		}
		return LoginResult{Failure: LoginFailureStore, Err: err}
	}

	ok, rehash := deps.VerifyPassword(password, acct.PasswordHash)
	if !ok {
		recordFailure()
		return LoginResult{Failure: LoginFailureBadPassword, Err: errors.New("password mismatch"), AccountID: acct.ID}
	}
	if !acct.IsActive {
		return LoginResult{Failure: LoginFailureInactive, Err: errors.New("account inactive"), AccountID: acct.ID}
	}

	result := LoginResult{AccountID: acct.ID, Rehash: rehash}

	if acct.MFAEnabled {
		if mfaCode == "" {
			result.RequiresMFA = true
			return result
		}
		used, failure := verifyLoginMFA(ctx, acct, mfaCode, now(), deps)
		if failure.Failure != LoginFailureNone {
			failure.AccountID = acct.ID
			return failure
		}
		result.UsedBackupCode = used
	}

	issued, err := deps.IssueSession(ctx, acct.ID)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, AccountID: acct.ID}
	}
	result.Session = issued

	if deps.ResetRate != nil {
		if err := deps.ResetRate(ctx, email); err != nil {
			warn("lexauth: login counter reset failed", "error", err)
		}
	}
	return result
}

// verifyLoginMFA checks a TOTP code, then falls back to a backup code.
func verifyLoginMFA(ctx context.Context, acct *LoginAccount, code string, at time.Time, deps LoginDeps) (bool, LoginResult) {
	warn := warnOr(deps.Warn)

	if deps.CheckMFARate != nil {
		if err := deps.CheckMFARate(ctx, acct.ID); err != nil {
			return false, LoginResult{Failure: LoginFailureMFARateLimited, Err: err}
		}
	}

	secret, err := deps.DecryptSecret(acct.MFASecret)
	if err != nil || secret == "" {
		if err == nil {
			err = errors.New("empty mfa secret")
		}
		return false, LoginResult{Failure: LoginFailureMFASecret, Err: err}
	}

	if deps.VerifyTOTP(secret, code, at) {
		if deps.ResetMFARate != nil {
			if err := deps.ResetMFARate(ctx, acct.ID); err != nil {
				warn("lexauth: mfa counter reset failed", "error", err)
			}
		}
		return false, LoginResult{}
	}

	if deps.ConsumeBackupCode != nil {
		consumed, err := deps.ConsumeBackupCode(ctx, acct.ID, code)
		if err != nil {
			return false, LoginResult{Failure: LoginFailureStore, Err: err}
		}
		if consumed {
			return true, LoginResult{}
		}
	}

	if deps.RecordMFAFailure != nil {
		if err := deps.RecordMFAFailure(ctx, acct.ID); err != nil {
			warn("lexauth: mfa failure counter update failed", "error", err)
		}
	}
	return false, LoginResult{Failure: LoginFailureInvalidMFACode, Err: errors.New("mfa code mismatch")}
}
