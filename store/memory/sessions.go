package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/lexauth/session"
)

// Sessions is an in-memory session store with the same semantics as
// session.RedisStore. Expired sessions behave as if evicted.
type Sessions struct {
	mu sync.Mutex

	now      func() time.Time
	byID     map[string]*session.Session
	byHash   map[string]string
	retired  map[string]string
	accounts map[string]map[string]struct{}
}

// NewSessions returns an empty store. now defaults to time.Now.
func NewSessions(now func() time.Time) *Sessions {
	if now == nil {
		now = time.Now
	}
	return &Sessions{
		now:      now,
		byID:     make(map[string]*session.Session),
		byHash:   make(map[string]string),
		retired:  make(map[string]string),
		accounts: make(map[string]map[string]struct{}),
	}
}

func (s *Sessions) Create(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sess
	s.byID[sess.ID] = &cp
	s.byHash[sess.RefreshHash] = sess.ID
	if s.accounts[sess.AccountID] == nil {
		s.accounts[sess.AccountID] = make(map[string]struct{})
	}
	s.accounts[sess.AccountID][sess.ID] = struct{}{}
	return nil
}

// live returns the stored session unless it has expired.
func (s *Sessions) live(id string) (*session.Session, bool) {
	sess, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	if !s.now().Before(sess.ExpiresAt) {
		delete(s.byID, id)
		delete(s.byHash, sess.RefreshHash)
		delete(s.accounts[sess.AccountID], id)
		return nil, false
	}
	return sess, true
}

func (s *Sessions) Get(_ context.Context, sessionID string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.live(sessionID)
	if !ok {
		return nil, session.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *Sessions) FindByRefreshHash(_ context.Context, hash string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byHash[hash]; ok {
		sess, live := s.live(id)
		if !live {
			return nil, session.ErrNotFound
		}
		cp := *sess
		return &cp, nil
	}
	if id, ok := s.retired[hash]; ok {
		sess, live := s.live(id)
		if !live {
			delete(s.retired, hash)
			return nil, session.ErrNotFound
		}
		cp := *sess
		return &cp, session.ErrRefreshReused
	}
	return nil, session.ErrNotFound
}

// usable returns the session for a mutation or the matching error.
func (s *Sessions) usable(id string) (*session.Session, error) {
	sess, ok := s.live(id)
	if !ok {
		return nil, session.ErrNotFound
	}
	if !sess.Active() {
		return nil, session.ErrSessionDead
	}
	return sess, nil
}

func (s *Sessions) ReplaceAccess(_ context.Context, sessionID, accessHash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.usable(sessionID)
	if err != nil {
		return err
	}
	sess.AccessHash = accessHash
	sess.LastActivityAt = at
	return nil
}

func (s *Sessions) Rotate(_ context.Context, sessionID, oldRefresh, newRefresh, newAccess string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.usable(sessionID)
	if err != nil {
		return err
	}
	if sess.RefreshHash != oldRefresh {
		return session.ErrRefreshMismatch
	}

	delete(s.byHash, oldRefresh)
	s.retired[oldRefresh] = sessionID
	s.byHash[newRefresh] = sessionID

	sess.PrevRefreshHash = oldRefresh
	sess.RefreshHash = newRefresh
	sess.AccessHash = newAccess
	sess.LastActivityAt = at
	return nil
}

func (s *Sessions) Touch(_ context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.live(sessionID); ok {
		sess.LastActivityAt = at
	}
	return nil
}

func (s *Sessions) Revoke(_ context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.live(sessionID)
	if !ok {
		return session.ErrNotFound
	}
	s.revoke(sess, at)
	return nil
}

func (s *Sessions) revoke(sess *session.Session, at time.Time) bool {
	if !sess.Active() {
		return false
	}
	sess.RevokedAt = at
	delete(s.byHash, sess.RefreshHash)
	return true
}

func (s *Sessions) RevokeAllForAccount(_ context.Context, accountID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id := range s.accounts[accountID] {
		sess, ok := s.live(id)
		if !ok {
			continue
		}
		if s.revoke(sess, at) {
			n++
		}
	}
	return n, nil
}

func (s *Sessions) ListForAccount(_ context.Context, accountID string) ([]*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*session.Session
	for id := range s.accounts[accountID] {
		sess, ok := s.live(id)
		if !ok {
			continue
		}
		cp := *sess
		out = append(out, &cp)
	}
	return out, nil
}
