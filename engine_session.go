package lexauth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/MrEthical07/lexauth/internal/flows"
	"github.com/MrEthical07/lexauth/session"
)

// Refresh exchanges a refresh token for a new access token.
//
// With rotation enabled the refresh token is replaced as well and the old one
// is retired; presenting a retired token revokes the session. Without
// rotation the same refresh token is returned and only the access token of
// the session changes.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	if refreshToken == "" {
		return nil, ErrInvalidOrExpiredToken
	}

	res := flows.RunRefresh(ctx, refreshToken, e.flows.Refresh)
	if res.Failure != flows.RefreshFailureNone {
		err := refreshError(res)
		eventType := EventRefreshInvalid
		if res.Failure == flows.RefreshFailureReuse {
			eventType = EventRefreshReuseDetected
		}
		e.emitAudit(ctx, eventType, res.AccountID, res.SessionID, err, nil)
		return nil, err
	}

	e.emitAudit(ctx, EventRefreshSuccess, res.AccountID, res.SessionID, nil, nil)
	pair := e.tokenPair(res.AccessToken, res.RefreshToken)
	return &pair, nil
}

func refreshError(res flows.RefreshResult) error {
	switch res.Failure {
	case flows.RefreshFailureParse:
		return errors.Join(ErrInvalidOrExpiredToken, res.Err)
	case flows.RefreshFailureWrongType:
		return errors.Join(ErrInvalidOrExpiredToken, ErrTokenWrongType)
	case flows.RefreshFailureSessionNotFound, flows.RefreshFailureSessionMismatch, flows.RefreshFailureSessionDead:
		return errors.Join(ErrInvalidOrExpiredToken, ErrSessionDead)
	case flows.RefreshFailureReuse:
		return errors.Join(ErrInvalidOrExpiredToken, ErrRefreshReuse)
	case flows.RefreshFailureAccountMissing:
		return errors.Join(ErrInvalidOrExpiredToken, res.Err)
	case flows.RefreshFailureAccountInactive:
		return ErrAccountInactive
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	}
}

// Logout revokes every session of accountID.
func (e *Engine) Logout(ctx context.Context, accountID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	n, err := e.sessions.RevokeAllForAccount(ctx, accountID, e.now())
	if err != nil {
		err = storeError(err)
		e.emitAudit(ctx, EventLogoutAll, accountID, "", err, nil)
		return err
	}
	e.emitAudit(ctx, EventLogoutAll, accountID, "", nil, map[string]string{"revoked": strconv.Itoa(n)})
	return nil
}

// RevokeSession revokes one session of accountID. A session owned by someone
// else is reported as ErrNotFound.
func (e *Engine) RevokeSession(ctx context.Context, accountID, sessionID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	err := e.revokeSession(ctx, accountID, sessionID)
	e.emitAudit(ctx, EventLogoutSession, accountID, sessionID, err, nil)
	return err
}

func (e *Engine) revokeSession(ctx context.Context, accountID, sessionID string) error {
	if sessionID == "" {
		return ErrNotFound
	}
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return storeError(err)
	}
	if sess.AccountID != accountID {
		return ErrNotFound
	}
	if err := e.sessions.Revoke(ctx, sessionID, e.now()); err != nil {
		return storeError(err)
	}
	return nil
}

// ListSessions returns the usable sessions of accountID, newest first. The
// session of the calling identity, if any, is marked current.
func (e *Engine) ListSessions(ctx context.Context, accountID string) ([]SessionInfo, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	all, err := e.sessions.ListForAccount(ctx, accountID)
	if err != nil {
		return nil, storeError(err)
	}

	var current string
	if id, ok := IdentityFromContext(ctx); ok {
		current = id.SessionID
	}

	now := e.now()
	out := make([]SessionInfo, 0, len(all))
	for _, s := range all {
		if !s.Usable(now) {
			continue
		}
		out = append(out, sessionInfo(s, current))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func sessionInfo(s *session.Session, current string) SessionInfo {
	return SessionInfo{
		ID:             s.ID,
		CreatedAt:      s.CreatedAt,
		ExpiresAt:      s.ExpiresAt,
		LastActivityAt: s.LastActivityAt,
		IP:             s.IP,
		UserAgent:      s.UserAgent,
		Current:        current != "" && s.ID == current,
	}
}
