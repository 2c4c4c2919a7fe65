package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter budgets. A zero Max disables that limit.
type Config struct {
	Prefix           string        `yaml:"prefix"`
	EnableIPThrottle bool          `yaml:"enable_ip_throttle"`
	MaxLoginAttempts int           `yaml:"max_login_attempts"`
	LoginWindow      time.Duration `yaml:"login_window"`
	MaxResetRequests int           `yaml:"max_reset_requests"`
	ResetWindow      time.Duration `yaml:"reset_window"`
	MaxMFAAttempts   int           `yaml:"max_mfa_attempts"`
	MFAWindow        time.Duration `yaml:"mfa_window"`
}

// DefaultConfig returns conservative budgets.
func DefaultConfig() Config {
	return Config{
		Prefix:           "lexauth:rl",
		EnableIPThrottle: true,
		MaxLoginAttempts: 5,
		LoginWindow:      15 * time.Minute,
		MaxResetRequests: 3,
		ResetWindow:      time.Hour,
		MaxMFAAttempts:   5,
		MFAWindow:        5 * time.Minute,
	}
}

// Limiter enforces per-identifier and per-IP budgets using Redis counters.
// A nil Limiter allows everything.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by redisClient.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "lexauth:rl"
	}
	return &Limiter{redis: redisClient, config: cfg}
}

// CheckLogin reports ErrRateLimited when email or ip has used its failed
// login budget.
func (l *Limiter) CheckLogin(ctx context.Context, email, ip string) error {
	if l == nil || l.config.MaxLoginAttempts <= 0 {
		return nil
	}
	if err := l.checkCounter(ctx, l.loginKey(email), l.config.MaxLoginAttempts); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		return l.checkCounter(ctx, l.loginIPKey(ip), l.config.MaxLoginAttempts)
	}
	return nil
}

// RecordLoginFailure counts a failed login for email and ip.
func (l *Limiter) RecordLoginFailure(ctx context.Context, email, ip string) error {
	if l == nil || l.config.MaxLoginAttempts <= 0 {
		return nil
	}
	if _, err := l.incrementWithTTL(ctx, l.loginKey(email), l.config.LoginWindow); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if _, err := l.incrementWithTTL(ctx, l.loginIPKey(ip), l.config.LoginWindow); err != nil {
			return err
		}
	}
	return nil
}

// ResetLogin clears the per-email counter after a successful login. The IP
// counter is left to expire.
func (l *Limiter) ResetLogin(ctx context.Context, email string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.loginKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// AllowReset counts a reset request for email and reports ErrRateLimited
// once the budget is spent.
func (l *Limiter) AllowReset(ctx context.Context, email string) error {
	if l == nil || l.config.MaxResetRequests <= 0 {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, l.key("reset", email), l.config.ResetWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxResetRequests) {
		return ErrRateLimited
	}
	return nil
}

// CheckMFA reports ErrRateLimited when accountID has spent its MFA budget.
func (l *Limiter) CheckMFA(ctx context.Context, accountID string) error {
	if l == nil || l.config.MaxMFAAttempts <= 0 {
		return nil
	}
	return l.checkCounter(ctx, l.key("mfa", accountID), l.config.MaxMFAAttempts)
}

// RecordMFAFailure counts a wrong MFA code for accountID.
func (l *Limiter) RecordMFAFailure(ctx context.Context, accountID string) error {
	if l == nil || l.config.MaxMFAAttempts <= 0 {
		return nil
	}
	_, err := l.incrementWithTTL(ctx, l.key("mfa", accountID), l.config.MFAWindow)
	return err
}

// ResetMFA clears the MFA counter after a successful code.
func (l *Limiter) ResetMFA(ctx context.Context, accountID string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key("mfa", accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// LoginAttempts returns the failed login count for email.
func (l *Limiter) LoginAttempts(ctx context.Context, email string) (int, error) {
	count, err := l.redis.Get(ctx, l.loginKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) key(kind, id string) string {
	return l.config.Prefix + ":" + kind + ":" + id
}

func (l *Limiter) loginKey(email string) string {
	return l.key("login:acct", email)
}

func (l *Limiter) loginIPKey(ip string) string {
	return l.key("login:ip", ip)
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL is set only on the first hit.
	if count == 1 && ttl > 0 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}
