package flows

import (
	"context"
	"errors"
	"time"
)

// APIKeyFailureKind classifies API key validation failures.
type APIKeyFailureKind int

const (
	APIKeyFailureNone APIKeyFailureKind = iota
	APIKeyFailureMalformed
	APIKeyFailureUnknown
	APIKeyFailureRevoked
	APIKeyFailureExpired
	APIKeyFailureStore
)

// APIKeyRecord is the flow-local key view.
type APIKeyRecord struct {
	ID        string
	AccountID string
	Hash      string
	Active    bool
	ExpiresAt time.Time
	Scopes    []string
}

// APIKeyResult carries the matched key or the failure.
type APIKeyResult struct {
	Failure APIKeyFailureKind
	Err     error
	Key     APIKeyRecord
}

// APIKeyDeps captures API key validation dependencies.
type APIKeyDeps struct {
	Now func() time.Time

	PrefixOf func(presented string) (string, error)
	Lookup   func(ctx context.Context, prefix string) ([]APIKeyRecord, error)
	Verify   func(presented, hash string) bool
	Touch    func(ctx context.Context, keyID string, at time.Time) error
	Warn     func(string, ...any)
}

// RunValidateAPIKey resolves a presented key by prefix, verifies its hash
// and checks that it is active and unexpired.
func RunValidateAPIKey(ctx context.Context, presented string, deps APIKeyDeps) APIKeyResult {
	now := nowOr(deps.Now)
	warn := warnOr(deps.Warn)

	prefix, err := deps.PrefixOf(presented)
	if err != nil {
		return APIKeyResult{Failure: APIKeyFailureMalformed, Err: err}
	}

	candidates, err := deps.Lookup(ctx, prefix)
	if err != nil {
		return APIKeyResult{Failure: APIKeyFailureStore, Err: err}
	}

	for _, k := range candidates {
		if !deps.Verify(presented, k.Hash) {
			continue
		}
		if !k.Active {
			return APIKeyResult{Failure: APIKeyFailureRevoked, Err: errors.New("api key revoked"), Key: k}
		}
		at := now()
		if !k.ExpiresAt.IsZero() && !at.Before(k.ExpiresAt) {
			return APIKeyResult{Failure: APIKeyFailureExpired, Err: errors.New("api key expired"), Key: k}
		}
		if deps.Touch != nil {
			if err := deps.Touch(ctx, k.ID, at); err != nil {
				warn("lexauth: api key last-used update failed", "error", err)
			}
		}
		return APIKeyResult{Key: k}
	}
	return APIKeyResult{Failure: APIKeyFailureUnknown, Err: errors.New("no api key matches")}
}
