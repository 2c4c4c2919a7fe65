package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/lexauth/jwt"
	"github.com/MrEthical07/lexauth/session"
)

// BearerFailureKind classifies bearer validation failures.
type BearerFailureKind int

const (
	BearerFailureNone BearerFailureKind = iota
	BearerFailureParse
	BearerFailureWrongType
	BearerFailureSessionNotFound
	BearerFailureSessionDead
	BearerFailureSuperseded
	BearerFailureStore
)

// BearerResult carries the authenticated subject or the failure.
type BearerResult struct {
	Failure   BearerFailureKind
	Err       error
	AccountID string
	SessionID string
}

// BearerSessionStore is the session surface bearer validation needs.
type BearerSessionStore interface {
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	Touch(ctx context.Context, sessionID string, at time.Time) error
}

// BearerDeps captures bearer validation dependencies.
type BearerDeps struct {
	// Bind requires a usable session whose access hash matches the token.
	Bind bool
	Now  func() time.Time

	ParseToken func(token string) (*jwt.Claims, error)
	HashToken  func(token string) string
	Sessions   BearerSessionStore
	Warn       func(string, ...any)
}

// RunValidateBearer checks an access token and, when bound, its session.
// Session activity is bumped best-effort.
func RunValidateBearer(ctx context.Context, token string, deps BearerDeps) BearerResult {
	now := nowOr(deps.Now)
	warn := warnOr(deps.Warn)

	claims, err := deps.ParseToken(token)
	if err != nil {
		return BearerResult{Failure: BearerFailureParse, Err: err}
	}
	if !jwt.VerifyType(claims, jwt.TypeAccess) {
		return BearerResult{Failure: BearerFailureWrongType, Err: errors.New("not an access token"), AccountID: claims.Subject}
	}

	result := BearerResult{AccountID: claims.Subject, SessionID: claims.SID}
	if deps.Sessions == nil || claims.SID == "" {
		if deps.Bind {
			result.Failure = BearerFailureSessionNotFound
			result.Err = errors.New("token carries no session")
		}
		return result
	}

	if !deps.Bind {
		if err := deps.Sessions.Touch(ctx, claims.SID, now()); err != nil {
			warn("lexauth: session activity update failed", "error", err)
		}
		return result
	}

	sess, err := deps.Sessions.Get(ctx, claims.SID)
	if errors.Is(err, session.ErrNotFound) {
		result.Failure, result.Err = BearerFailureSessionNotFound, err
		return result
	}
	if err != nil {
		result.Failure, result.Err = BearerFailureStore, err
		return result
	}
	if sess.AccountID != claims.Subject {
		result.Failure, result.Err = BearerFailureSessionNotFound, errors.New("session owner mismatch")
		return result
	}
	if !sess.Usable(now()) {
		result.Failure, result.Err = BearerFailureSessionDead, session.ErrSessionDead
		return result
	}
	if sess.AccessHash != deps.HashToken(token) {
		result.Failure, result.Err = BearerFailureSuperseded, errors.New("access token no longer current")
		return result
	}

	if err := deps.Sessions.Touch(ctx, sess.ID, now()); err != nil {
		warn("lexauth: session activity update failed", "error", err)
	}
	return result
}
