package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/lexauth"
)

const accountColumns = `id, email, username, full_name, bio, avatar_url, timezone, language,
	password_hash, is_active, is_verified,
	is_superuser, mfa_enabled, mfa_secret, reset_token_hash, reset_token_expires,
	created_at, updated_at, last_login_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*lexauth.Account, error) {
	var (
		a                                lexauth.Account
		username, fullName, mfaSecret    sql.NullString
		bio, avatar, timezone, language  sql.NullString
		resetHash                        sql.NullString
		resetExpires, lastLogin, updated sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Email, &username, &fullName, &bio, &avatar, &timezone, &language,
		&a.PasswordHash, &a.IsActive, &a.IsVerified,
		&a.IsSuperuser, &a.MFAEnabled, &mfaSecret, &resetHash, &resetExpires,
		&a.CreatedAt, &updated, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lexauth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Username = username.String
	a.FullName = fullName.String
	a.Bio = bio.String
	a.AvatarURL = avatar.String
	a.Timezone = timezone.String
	a.Language = language.String
	a.MFASecret = mfaSecret.String
	a.ResetTokenHash = resetHash.String
	a.ResetTokenExpires = resetExpires.Time
	a.UpdatedAt = updated.Time
	a.LastLoginAt = lastLogin.Time
	return &a, nil
}

// CreateAccount inserts the account and its role assignments in one
// transaction.
func (s *Store) CreateAccount(ctx context.Context, a *lexauth.Account, roles ...string) error {
	if s.db == nil {
		return errNoDB
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		insert into accounts (id, email, username, full_name, bio, avatar_url, timezone, language,
			password_hash, is_active, is_verified, is_superuser, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, a.ID, strings.ToLower(a.Email), nullIfEmpty(a.Username), nullIfEmpty(a.FullName),
		nullIfEmpty(a.Bio), nullIfEmpty(a.AvatarURL), nullIfEmpty(a.Timezone), nullIfEmpty(a.Language),
		a.PasswordHash, a.IsActive, a.IsVerified, a.IsSuperuser, a.CreatedAt, a.UpdatedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return lexauth.ErrDuplicateIdentity
	}
	if err != nil {
		return err
	}

	for _, role := range roles {
		_, err := tx.ExecContext(ctx, `
			insert into account_roles (account_id, role_name) values ($1, $2)
			on conflict do nothing
		`, a.ID, role)
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return lexauth.ErrNotFound
		}
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) AccountByID(ctx context.Context, id string) (*lexauth.Account, error) {
	return s.accountWhere(ctx, "id = $1", id)
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (*lexauth.Account, error) {
	return s.accountWhere(ctx, "email = $1", strings.ToLower(email))
}

func (s *Store) AccountByUsername(ctx context.Context, username string) (*lexauth.Account, error) {
	return s.accountWhere(ctx, "username = $1", username)
}

func (s *Store) AccountByResetToken(ctx context.Context, tokenHash string) (*lexauth.Account, error) {
	if tokenHash == "" {
		return nil, lexauth.ErrNotFound
	}
	return s.accountWhere(ctx, "reset_token_hash = $1", tokenHash)
}

func (s *Store) accountWhere(ctx context.Context, cond string, arg any) (*lexauth.Account, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `select `+accountColumns+` from accounts where `+cond, arg)
	return scanAccount(row)
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.updateAccount(ctx, id, "password_hash = $2", hash)
}

func (s *Store) UpdateProfile(ctx context.Context, id string, p lexauth.Profile) error {
	err := s.updateAccount(ctx, id,
		"username = $2, full_name = $3, bio = $4, avatar_url = $5, timezone = $6, language = $7",
		nullIfEmpty(p.Username), nullIfEmpty(p.FullName), nullIfEmpty(p.Bio),
		nullIfEmpty(p.AvatarURL), nullIfEmpty(p.Timezone), nullIfEmpty(p.Language))
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return lexauth.ErrDuplicateIdentity
	}
	return err
}

func (s *Store) UpdateMFA(ctx context.Context, id, encryptedSecret string, enabled bool) error {
	return s.updateAccount(ctx, id, "mfa_secret = $2, mfa_enabled = $3", nullIfEmpty(encryptedSecret), enabled)
}

func (s *Store) SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error {
	return s.updateAccount(ctx, id, "reset_token_hash = $2, reset_token_expires = $3", tokenHash, expires.UTC())
}

// ClearResetToken matches on the hash as well as the id, so of two
// concurrent redemptions only one affects a row.
func (s *Store) ClearResetToken(ctx context.Context, id, tokenHash string) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	if tokenHash == "" {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx, `
		update accounts set reset_token_hash = null, reset_token_expires = null, updated_at = now()
		where id = $1 and reset_token_hash = $2
	`, id, tokenHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	if s.db == nil {
		return errNoDB
	}
	return expectOne(s.db.ExecContext(ctx, `update accounts set last_login_at = $2 where id = $1`, id, at.UTC()))
}

// SetActive activates or deactivates an account.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	return s.updateAccount(ctx, id, "is_active = $2", active)
}

func (s *Store) updateAccount(ctx context.Context, id, set string, args ...any) error {
	if s.db == nil {
		return errNoDB
	}
	all := append([]any{id}, args...)
	return expectOne(s.db.ExecContext(ctx, `update accounts set `+set+`, updated_at = now() where id = $1`, all...))
}
