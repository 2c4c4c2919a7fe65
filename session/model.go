package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no session matches.
	ErrNotFound = errors.New("session not found")
	// ErrRefreshReused is returned when a retired refresh token is presented.
	ErrRefreshReused = errors.New("refresh token reused")
	// ErrRefreshMismatch is returned when a rotation loses a race.
	ErrRefreshMismatch = errors.New("refresh hash mismatch")
	// ErrSessionDead is returned when mutating a revoked or expired session.
	ErrSessionDead = errors.New("session revoked or expired")
	// ErrRedisUnavailable wraps transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Session is one issued token pair.
type Session struct {
	ID          string
	AccountID   string
	AccessHash  string
	RefreshHash string
	// PrevRefreshHash is the refresh hash retired by the last rotation.
	PrevRefreshHash string
	CreatedAt       time.Time
	ExpiresAt       time.Time
	LastActivityAt  time.Time
	RevokedAt       time.Time
	IP              string
	UserAgent       string
}

// Active reports whether the session has not been revoked.
func (s *Session) Active() bool {
	return s != nil && s.RevokedAt.IsZero()
}

// Usable reports whether the session is active and unexpired at now.
func (s *Session) Usable(now time.Time) bool {
	return s.Active() && now.Before(s.ExpiresAt)
}

// HashToken returns the hex SHA-256 of a raw token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
