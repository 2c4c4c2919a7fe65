// Package postgres implements lexauth.Store on PostgreSQL through
// database/sql and the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/MrEthical07/lexauth"
	"github.com/MrEthical07/lexauth/permission"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

//go:embed schema.sql
var schema string

var errNoDB = errors.New("database connection unavailable")

var _ lexauth.Store = (*Store)(nil)

// Store is a Postgres-backed lexauth.Store.
type Store struct {
	db *sql.DB
}

// Open connects with the pgx driver and applies pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Seed installs the catalog's permissions and roles. Existing rows are kept.
func (s *Store) Seed(ctx context.Context, catalog permission.Catalog) error {
	if s.db == nil {
		return errNoDB
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range catalog.Permissions {
		if _, err := tx.ExecContext(ctx, `
			insert into permissions (name, resource, action, description, is_system)
			values ($1, $2, $3, $4, $5)
			on conflict (name) do nothing
		`, p.Name, p.Resource, p.Action, nullIfEmpty(p.Description), p.IsSystem); err != nil {
			return err
		}
	}
	for _, r := range catalog.Roles {
		if _, err := tx.ExecContext(ctx, `
			insert into roles (name, description, is_system)
			values ($1, $2, $3)
			on conflict (name) do nothing
		`, r.Name, nullIfEmpty(r.Description), r.IsSystem); err != nil {
			return err
		}
		for _, p := range r.Permissions {
			if _, err := tx.ExecContext(ctx, `
				insert into role_permissions (role_name, permission_name)
				values ($1, $2)
				on conflict do nothing
			`, r.Name, p.Name); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// expectOne maps a zero-row update to lexauth.ErrNotFound.
func expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return lexauth.ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
