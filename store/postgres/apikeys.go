package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/lexauth"
)

const apiKeyColumns = `id, account_id, name, key_prefix, key_hash, scopes, is_active, expires_at, last_used_at, created_at`

func scanAPIKey(row rowScanner) (lexauth.APIKey, error) {
	var (
		k                 lexauth.APIKey
		rawScopes         []byte
		expires, lastUsed sql.NullTime
	)
	if err := row.Scan(&k.ID, &k.AccountID, &k.Name, &k.Prefix, &k.KeyHash, &rawScopes,
		&k.IsActive, &expires, &lastUsed, &k.CreatedAt); err != nil {
		return lexauth.APIKey{}, err
	}
	if len(rawScopes) > 0 {
		if err := json.Unmarshal(rawScopes, &k.Scopes); err != nil {
			return lexauth.APIKey{}, fmt.Errorf("decode scopes: %w", err)
		}
	}
	k.ExpiresAt = expires.Time
	k.LastUsedAt = lastUsed.Time
	return k, nil
}

func (s *Store) CreateAPIKey(ctx context.Context, k *lexauth.APIKey) error {
	if s.db == nil {
		return errNoDB
	}
	scopes := k.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	rawScopes, err := json.Marshal(scopes)
	if err != nil {
		return fmt.Errorf("marshal scopes: %w", err)
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		insert into api_keys (id, account_id, name, key_prefix, key_hash, scopes, is_active, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, k.ID, k.AccountID, k.Name, k.Prefix, k.KeyHash, rawScopes, k.IsActive, nullTime(k.ExpiresAt), k.CreatedAt)
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrForeignKeyViolation:
			return lexauth.ErrNotFound
		case pgErrUniqueViolation:
			return fmt.Errorf("api key collision: %w", err)
		}
	}
	return err
}

func (s *Store) APIKeysByPrefix(ctx context.Context, prefix string) ([]lexauth.APIKey, error) {
	return s.apiKeysWhere(ctx, "key_prefix = $1 order by created_at", prefix)
}

// APIKeysForAccount returns every key of accountID, newest first.
func (s *Store) APIKeysForAccount(ctx context.Context, accountID string) ([]lexauth.APIKey, error) {
	return s.apiKeysWhere(ctx, "account_id = $1 order by created_at desc", accountID)
}

func (s *Store) apiKeysWhere(ctx context.Context, cond string, arg any) ([]lexauth.APIKey, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select `+apiKeyColumns+` from api_keys where `+cond, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []lexauth.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) APIKeyByID(ctx context.Context, id string) (*lexauth.APIKey, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	k, err := scanAPIKey(s.db.QueryRowContext(ctx, `select `+apiKeyColumns+` from api_keys where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lexauth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *Store) RevokeAPIKey(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	return expectOne(s.db.ExecContext(ctx, `update api_keys set is_active = false where id = $1`, id))
}

func (s *Store) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	if s.db == nil {
		return errNoDB
	}
	return expectOne(s.db.ExecContext(ctx, `update api_keys set last_used_at = $2 where id = $1`, id, at.UTC()))
}
