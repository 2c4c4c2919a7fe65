package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/lexauth/jwt"
	"github.com/MrEthical07/lexauth/session"
)

// RefreshFailureKind classifies refresh failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureParse
	RefreshFailureWrongType
	RefreshFailureSessionNotFound
	RefreshFailureSessionMismatch
	RefreshFailureSessionDead
	RefreshFailureReuse
	RefreshFailureAccountMissing
	RefreshFailureAccountInactive
	RefreshFailureIssue
	RefreshFailureStore
)

// RefreshResult carries either new tokens or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	AccountID    string
	SessionID    string
	AccessToken  string
	RefreshToken string
}

// RefreshSessionStore is the session surface refresh needs.
type RefreshSessionStore interface {
	FindByRefreshHash(ctx context.Context, hash string) (*session.Session, error)
	ReplaceAccess(ctx context.Context, sessionID, accessHash string, at time.Time) error
	Rotate(ctx context.Context, sessionID, oldRefresh, newRefresh, newAccess string, at time.Time) error
	Revoke(ctx context.Context, sessionID string, at time.Time) error
}

// RefreshDeps captures refresh dependencies.
type RefreshDeps struct {
	Rotate bool
	Now    func() time.Time

	ParseToken      func(token string) (*jwt.Claims, error)
	AccountActive   func(ctx context.Context, accountID string) (bool, error)
	IssueAccess     func(subject, sessionID string) (string, error)
	IssueRefresh    func(subject, sessionID string) (string, error)
	HashToken       func(token string) string
	Sessions        RefreshSessionStore
	AccountNotFound error
	Warn            func(string, ...any)
}

// RunRefresh validates a refresh token against its session and issues a new
// access token, rotating the refresh token when configured.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	now := nowOr(deps.Now)
	warn := warnOr(deps.Warn)

	claims, err := deps.ParseToken(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureParse, Err: err}
	}
	if !jwt.VerifyType(claims, jwt.TypeRefresh) {
		return RefreshResult{Failure: RefreshFailureWrongType, Err: errors.New("not a refresh token"), AccountID: claims.Subject}
	}

	base := RefreshResult{AccountID: claims.Subject, SessionID: claims.SID}
	oldHash := deps.HashToken(refreshToken)

	sess, err := deps.Sessions.FindByRefreshHash(ctx, oldHash)
	switch {
	case errors.Is(err, session.ErrRefreshReused):
		if sess != nil {
			if revokeErr := deps.Sessions.Revoke(ctx, sess.ID, now()); revokeErr != nil && !errors.Is(revokeErr, session.ErrNotFound) {
				warn("lexauth: revoke after refresh reuse failed", "error", revokeErr)
			}
		}
		return fail(base, RefreshFailureReuse, err)
	case errors.Is(err, session.ErrNotFound):
		return fail(base, RefreshFailureSessionNotFound, err)
	case err != nil:
		return fail(base, RefreshFailureStore, err)
	}

	if sess.ID != claims.SID || sess.AccountID != claims.Subject {
		return fail(base, RefreshFailureSessionMismatch, errors.New("session does not match token claims"))
	}
	if !sess.Usable(now()) {
		return fail(base, RefreshFailureSessionDead, session.ErrSessionDead)
	}

	active, err := deps.AccountActive(ctx, claims.Subject)
	if err != nil {
		if deps.AccountNotFound != nil && errors.Is(err, deps.AccountNotFound) {
			return fail(base, RefreshFailureAccountMissing, err)
		}
		return fail(base, RefreshFailureStore, err)
	}
	if !active {
		return fail(base, RefreshFailureAccountInactive, errors.New("account inactive"))
	}

	access, err := deps.IssueAccess(claims.Subject, sess.ID)
	if err != nil {
		return fail(base, RefreshFailureIssue, err)
	}

	if !deps.Rotate {
		err := deps.Sessions.ReplaceAccess(ctx, sess.ID, deps.HashToken(access), now())
		if err != nil {
			return storeFailure(base, err)
		}
		base.AccessToken = access
		base.RefreshToken = refreshToken
		return base
	}

	refresh, err := deps.IssueRefresh(claims.Subject, sess.ID)
	if err != nil {
		return fail(base, RefreshFailureIssue, err)
	}
	err = deps.Sessions.Rotate(ctx, sess.ID, oldHash, deps.HashToken(refresh), deps.HashToken(access), now())
	if errors.Is(err, session.ErrRefreshMismatch) {
		// A concurrent refresh won; this token is now retired.
		if revokeErr := deps.Sessions.Revoke(ctx, sess.ID, now()); revokeErr != nil && !errors.Is(revokeErr, session.ErrNotFound) {
			warn("lexauth: revoke after refresh race failed", "error", revokeErr)
		}
		return fail(base, RefreshFailureReuse, err)
	}
	if err != nil {
		return storeFailure(base, err)
	}

	base.AccessToken = access
	base.RefreshToken = refresh
	return base
}

func fail(base RefreshResult, kind RefreshFailureKind, err error) RefreshResult {
	base.Failure = kind
	base.Err = err
	return base
}

func storeFailure(base RefreshResult, err error) RefreshResult {
	switch {
	case errors.Is(err, session.ErrSessionDead):
		return fail(base, RefreshFailureSessionDead, err)
	case errors.Is(err, session.ErrNotFound):
		return fail(base, RefreshFailureSessionNotFound, err)
	default:
		return fail(base, RefreshFailureStore, err)
	}
}
