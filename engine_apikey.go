package lexauth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/lexauth/internal"
	"github.com/MrEthical07/lexauth/permission"
)

const maxAPIKeyNameLength = 100

// IssueAPIKey creates a key for accountID. The raw key is only in the
// returned value; the store keeps its prefix and hash. A zero expiresIn
// means the configured maximum, or no expiry when there is none.
func (e *Engine) IssueAPIKey(ctx context.Context, accountID, name string, scopes []string, expiresIn time.Duration) (*IssuedAPIKey, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	issued, err := e.issueAPIKey(ctx, accountID, strings.TrimSpace(name), scopes, expiresIn)
	if err != nil {
		e.emitAudit(ctx, EventAPIKeyCreated, accountID, "", err, nil)
		return nil, err
	}
	e.emitAudit(ctx, EventAPIKeyCreated, accountID, "", nil, map[string]string{
		"key_id":     issued.ID,
		"key_prefix": issued.Prefix,
	})
	return issued, nil
}

func (e *Engine) issueAPIKey(ctx context.Context, accountID, name string, scopes []string, expiresIn time.Duration) (*IssuedAPIKey, error) {
	if name == "" || len(name) > maxAPIKeyNameLength {
		return nil, fmt.Errorf("%w: key name must be 1-%d characters", ErrInvalidInput, maxAPIKeyNameLength)
	}
	for _, s := range scopes {
		if _, _, err := permission.ParseName(s); err != nil {
			return nil, fmt.Errorf("%w: scope %q: %v", ErrInvalidInput, s, err)
		}
	}

	maxTTL := e.config.APIKeys.MaxTTL
	switch {
	case expiresIn < 0:
		return nil, fmt.Errorf("%w: expiry must not be negative", ErrInvalidInput)
	case maxTTL > 0 && expiresIn > maxTTL:
		return nil, fmt.Errorf("%w: expiry exceeds %s", ErrInvalidInput, maxTTL)
	case expiresIn == 0:
		expiresIn = maxTTL
	}

	if _, err := e.account(ctx, accountID); err != nil {
		return nil, err
	}

	if limit := e.config.APIKeys.MaxPerUser; limit > 0 {
		existing, err := e.store.APIKeysForAccount(ctx, accountID)
		if err != nil {
			return nil, storeError(err)
		}
		now := e.now()
		active := 0
		for _, k := range existing {
			if k.Usable(now) {
				active++
			}
		}
		if active >= limit {
			return nil, fmt.Errorf("%w: at most %d active api keys", ErrInvalidInput, limit)
		}
	}

	key, err := e.keys.Generate()
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	record := APIKey{
		ID:        internal.NewID(),
		AccountID: accountID,
		Name:      name,
		Prefix:    key.Prefix,
		KeyHash:   key.Hash,
		Scopes:    append([]string(nil), scopes...),
		IsActive:  true,
		CreatedAt: now,
	}
	if expiresIn > 0 {
		record.ExpiresAt = now.Add(expiresIn)
	}
	if err := e.store.CreateAPIKey(ctx, &record); err != nil {
		return nil, storeError(err)
	}

	return &IssuedAPIKey{APIKey: record, Key: key.Full}, nil
}

// ListAPIKeys returns every key of accountID, revoked ones included.
func (e *Engine) ListAPIKeys(ctx context.Context, accountID string) ([]APIKey, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	keys, err := e.store.APIKeysForAccount(ctx, accountID)
	if err != nil {
		return nil, storeError(err)
	}
	for i := range keys {
		keys[i].KeyHash = ""
	}
	return keys, nil
}

// RevokeAPIKey deactivates a key. A key owned by another account is
// reported as ErrNotFound.
func (e *Engine) RevokeAPIKey(ctx context.Context, accountID, keyID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	err := e.revokeAPIKey(ctx, accountID, keyID)
	e.emitAudit(ctx, EventAPIKeyRevoked, accountID, "", err, map[string]string{"key_id": keyID})
	return err
}

func (e *Engine) revokeAPIKey(ctx context.Context, accountID, keyID string) error {
	if keyID == "" {
		return ErrNotFound
	}
	key, err := e.store.APIKeyByID(ctx, keyID)
	if err != nil {
		return storeError(err)
	}
	if key.AccountID != accountID {
		return ErrNotFound
	}
	if err := e.store.RevokeAPIKey(ctx, keyID); err != nil {
		return storeError(err)
	}
	return nil
}
