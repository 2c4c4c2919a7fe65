package postgres

import "context"

// ReplaceBackupCodes swaps the account's code hashes in one transaction.
func (s *Store) ReplaceBackupCodes(ctx context.Context, accountID string, hashes []string) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from backup_codes where account_id = $1`, accountID); err != nil {
		return err
	}
	for _, h := range hashes {
		if _, err := tx.ExecContext(ctx, `
			insert into backup_codes (account_id, code_hash) values ($1, $2)
			on conflict do nothing
		`, accountID, h); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ConsumeBackupCode deletes a matching hash. The delete is the check, so
// two concurrent logins cannot both spend the same code.
func (s *Store) ConsumeBackupCode(ctx context.Context, accountID, hash string) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from backup_codes where account_id = $1 and code_hash = $2`, accountID, hash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) RemainingBackupCodes(ctx context.Context, accountID string) (int, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from backup_codes where account_id = $1`, accountID).Scan(&n)
	return n, err
}

func (s *Store) DeleteBackupCodes(ctx context.Context, accountID string) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `delete from backup_codes where account_id = $1`, accountID)
	return err
}
