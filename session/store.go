package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldID           = "id"
	fieldAccountID    = "account_id"
	fieldAccessHash   = "access_hash"
	fieldRefreshHash  = "refresh_hash"
	fieldPrevRefresh  = "prev_refresh_hash"
	fieldCreatedAt    = "created_at"
	fieldExpiresAt    = "expires_at"
	fieldLastActivity = "last_activity_at"
	fieldRevokedAt    = "revoked_at"
	fieldIP           = "ip"
	fieldUserAgent    = "user_agent"
)

const (
	scriptNotFound int64 = 0
	scriptDead     int64 = 1
	scriptMismatch int64 = 2
	scriptOK       int64 = 3
)

// KEYS[1] session hash. ARGV[1] access hash, ARGV[2] activity ms, ARGV[3] now ms.
const replaceAccessScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local revoked = redis.call("HGET", KEYS[1], "revoked_at")
local exp = tonumber(redis.call("HGET", KEYS[1], "expires_at") or "0")
if (revoked and revoked ~= "") or exp <= tonumber(ARGV[3]) then
  return 1
end
redis.call("HSET", KEYS[1], "access_hash", ARGV[1], "last_activity_at", ARGV[2])
return 3
`

// KEYS[1] session hash, KEYS[2] old refresh index, KEYS[3] retired index,
// KEYS[4] new refresh index. ARGV[1] old hash, ARGV[2] new hash,
// ARGV[3] new access hash, ARGV[4] now ms, ARGV[5] session id.
const rotateScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local revoked = redis.call("HGET", KEYS[1], "revoked_at")
local exp = tonumber(redis.call("HGET", KEYS[1], "expires_at") or "0")
if (revoked and revoked ~= "") or exp <= tonumber(ARGV[4]) then
  return 1
end
if redis.call("HGET", KEYS[1], "refresh_hash") ~= ARGV[1] then
  return 2
end
redis.call("HSET", KEYS[1], "refresh_hash", ARGV[2], "prev_refresh_hash", ARGV[1], "access_hash", ARGV[3], "last_activity_at", ARGV[4])
redis.call("DEL", KEYS[2])
redis.call("SET", KEYS[3], ARGV[5])
redis.call("PEXPIREAT", KEYS[3], exp)
redis.call("SET", KEYS[4], ARGV[5])
redis.call("PEXPIREAT", KEYS[4], exp)
return 3
`

// KEYS[1] session hash, KEYS[2] refresh index. ARGV[1] revoked ms.
const revokeScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local revoked = redis.call("HGET", KEYS[1], "revoked_at")
if revoked and revoked ~= "" then
  return 1
end
redis.call("HSET", KEYS[1], "revoked_at", ARGV[1])
redis.call("DEL", KEYS[2])
return 3
`

// KEYS[1] session hash. ARGV[1] activity ms.
const touchScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "last_activity_at", ARGV[1])
return 3
`

var (
	replaceAccessLua = redis.NewScript(replaceAccessScript)
	rotateLua        = redis.NewScript(rotateScript)
	revokeLua        = redis.NewScript(revokeScript)
	touchLua         = redis.NewScript(touchScript)
)

// RedisStore persists sessions in Redis. Records expire with the session.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore returns a store namespacing keys under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "lexauth"
	}
	return &RedisStore{redis: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + ":sess:" + sessionID
}

func (s *RedisStore) refreshKey(hash string) string {
	return s.prefix + ":rt:" + hash
}

func (s *RedisStore) retiredKey(hash string) string {
	return s.prefix + ":rtold:" + hash
}

func (s *RedisStore) accountKey(accountID string) string {
	return s.prefix + ":acct:" + accountID
}

// Create stores a new session with its refresh index and account index.
func (s *RedisStore) Create(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" || sess.AccountID == "" || sess.RefreshHash == "" {
		return errors.New("session: incomplete session")
	}

	sessionKey := s.key(sess.ID)
	refreshKey := s.refreshKey(sess.RefreshHash)
	accountKey := s.accountKey(sess.AccountID)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, sessionKey, encodeFields(sess))
		pipe.ExpireAt(ctx, sessionKey, sess.ExpiresAt)
		pipe.Set(ctx, refreshKey, sess.ID, 0)
		pipe.ExpireAt(ctx, refreshKey, sess.ExpiresAt)
		pipe.SAdd(ctx, accountKey, sess.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.extendAccountIndex(ctx, accountKey, sess.ExpiresAt)
}

// extendAccountIndex keeps the account set alive as long as its newest session.
func (s *RedisStore) extendAccountIndex(ctx context.Context, accountKey string, until time.Time) error {
	ttl, err := s.redis.PTTL(ctx, accountKey).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl < 0 || s.now().Add(ttl).Before(until) {
		if err := s.redis.ExpireAt(ctx, accountKey, until).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return nil
}

// Get loads a session by id.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeFields(fields)
}

// FindByRefreshHash resolves the session owning hash. A hash that was
// rotated away returns the session together with ErrRefreshReused.
func (s *RedisStore) FindByRefreshHash(ctx context.Context, hash string) (*Session, error) {
	sessionID, err := s.redis.Get(ctx, s.refreshKey(hash)).Result()
	if err == nil {
		return s.Get(ctx, sessionID)
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sessionID, err = s.redis.Get(ctx, s.retiredKey(hash)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess, ErrRefreshReused
}

// ReplaceAccess overwrites the stored access hash in place, so earlier
// access tokens of the session stop matching.
func (s *RedisStore) ReplaceAccess(ctx context.Context, sessionID, accessHash string, at time.Time) error {
	code, err := s.run(ctx, replaceAccessLua, []string{s.key(sessionID)},
		accessHash, at.UnixMilli(), s.now().UnixMilli())
	if err != nil {
		return err
	}
	return statusError(code)
}

// Rotate swaps the refresh hash if it still equals oldRefresh, replaces the
// access hash and retires the old refresh hash for reuse detection.
func (s *RedisStore) Rotate(ctx context.Context, sessionID, oldRefresh, newRefresh, newAccess string, at time.Time) error {
	keys := []string{
		s.key(sessionID),
		s.refreshKey(oldRefresh),
		s.retiredKey(oldRefresh),
		s.refreshKey(newRefresh),
	}
	code, err := s.run(ctx, rotateLua, keys, oldRefresh, newRefresh, newAccess, at.UnixMilli(), sessionID)
	if err != nil {
		return err
	}
	return statusError(code)
}

// Touch bumps last activity. Missing sessions are ignored.
func (s *RedisStore) Touch(ctx context.Context, sessionID string, at time.Time) error {
	_, err := s.run(ctx, touchLua, []string{s.key(sessionID)}, at.UnixMilli())
	return err
}

// Revoke marks the session revoked and drops its refresh index. Revoking an
// already revoked session is a no-op.
func (s *RedisStore) Revoke(ctx context.Context, sessionID string, at time.Time) error {
	refreshHash, err := s.redis.HGet(ctx, s.key(sessionID), fieldRefreshHash).Result()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	code, err := s.run(ctx, revokeLua, []string{s.key(sessionID), s.refreshKey(refreshHash)}, at.UnixMilli())
	if err != nil {
		return err
	}
	if code == scriptNotFound {
		return ErrNotFound
	}
	return nil
}

// RevokeAllForAccount revokes every live session of accountID and returns
// how many were revoked by this call.
func (s *RedisStore) RevokeAllForAccount(ctx context.Context, accountID string, at time.Time) (int, error) {
	ids, err := s.redis.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	revoked := 0
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			s.redis.SRem(ctx, s.accountKey(accountID), id)
			continue
		}
		if err != nil {
			return revoked, err
		}
		if !sess.Active() {
			continue
		}
		if err := s.Revoke(ctx, id, at); err != nil && !errors.Is(err, ErrNotFound) {
			return revoked, err
		}
		revoked++
	}
	return revoked, nil
}

// ListForAccount returns every stored session of accountID, live or not.
// Expired records have already been evicted by Redis.
func (s *RedisStore) ListForAccount(ctx context.Context, accountID string) ([]*Session, error) {
	accountKey := s.accountKey(accountID)
	ids, err := s.redis.SMembers(ctx, accountKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.key(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	out := make([]*Session, 0, len(ids))
	var stale []interface{}
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		sess, err := decodeFields(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if len(stale) > 0 {
		s.redis.SRem(ctx, accountKey, stale...)
	}
	return out, nil
}

func (s *RedisStore) run(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) (int64, error) {
	code, err := script.Run(ctx, s.redis, keys, args...).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return code, nil
}

func statusError(code int64) error {
	switch code {
	case scriptOK:
		return nil
	case scriptNotFound:
		return ErrNotFound
	case scriptDead:
		return ErrSessionDead
	case scriptMismatch:
		return ErrRefreshMismatch
	default:
		return fmt.Errorf("%w: unknown script status %d", ErrRedisUnavailable, code)
	}
}

func encodeFields(sess *Session) map[string]interface{} {
	return map[string]interface{}{
		fieldID:           sess.ID,
		fieldAccountID:    sess.AccountID,
		fieldAccessHash:   sess.AccessHash,
		fieldRefreshHash:  sess.RefreshHash,
		fieldPrevRefresh:  sess.PrevRefreshHash,
		fieldCreatedAt:    formatMillis(sess.CreatedAt),
		fieldExpiresAt:    formatMillis(sess.ExpiresAt),
		fieldLastActivity: formatMillis(sess.LastActivityAt),
		fieldRevokedAt:    formatMillis(sess.RevokedAt),
		fieldIP:           sess.IP,
		fieldUserAgent:    sess.UserAgent,
	}
}

func decodeFields(f map[string]string) (*Session, error) {
	sess := &Session{
		ID:              f[fieldID],
		AccountID:       f[fieldAccountID],
		AccessHash:      f[fieldAccessHash],
		RefreshHash:     f[fieldRefreshHash],
		PrevRefreshHash: f[fieldPrevRefresh],
		IP:              f[fieldIP],
		UserAgent:       f[fieldUserAgent],
	}
	if sess.ID == "" || sess.AccountID == "" {
		return nil, fmt.Errorf("%w: corrupt session record", ErrRedisUnavailable)
	}

	var err error
	if sess.CreatedAt, err = parseMillis(f[fieldCreatedAt]); err != nil {
		return nil, err
	}
	if sess.ExpiresAt, err = parseMillis(f[fieldExpiresAt]); err != nil {
		return nil, err
	}
	if sess.LastActivityAt, err = parseMillis(f[fieldLastActivity]); err != nil {
		return nil, err
	}
	if sess.RevokedAt, err = parseMillis(f[fieldRevokedAt]); err != nil {
		return nil, err
	}
	return sess, nil
}

func formatMillis(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: corrupt timestamp", ErrRedisUnavailable)
	}
	return time.UnixMilli(ms).UTC(), nil
}
