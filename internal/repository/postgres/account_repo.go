package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/avolkov87/mailhub/internal/errs"
	"github.com/avolkov87/mailhub/internal/model"
)

// AccountRepo implements AccountRepository using PostgreSQL.
type AccountRepo struct{ db *DB }

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

// GetByID selects an account by provider-assigned ID.
func (r *AccountRepo) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	const q = `
SELECT id, user_id, access_token, email_address, name, created_at
FROM accounts WHERE id=$1`
	row := r.db.Pool.QueryRow(ctx, q, id)
	var a model.Account
	if err := row.Scan(&a.ID, &a.UserID, &a.AccessToken, &a.EmailAddress, &a.Name, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrStoreUnavailable
	}
	return &a, nil
}

// CountByUser returns the number of accounts linked to a user.
func (r *AccountRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	const q = `SELECT COUNT(*) FROM accounts WHERE user_id=$1`
	var n int
	if err := r.db.Pool.QueryRow(ctx, q, userID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// LinkUnderQuota inserts the account only if the owner stays under
// maxAccounts, as one transaction. The owner's user row is locked FOR
// UPDATE first, so concurrent linking attempts for the same user
// serialize and exactly one wins the last slot. Re-linking an existing
// account refreshes its token and identity and skips the quota check.
func (r *AccountRepo) LinkUnderQuota(ctx context.Context, acc *model.Account, maxAccounts int) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const lockUser = `SELECT id FROM users WHERE id=$1 FOR UPDATE`
	var ownerID string
	if err = tx.QueryRow(ctx, lockUser, acc.UserID).Scan(&ownerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		return err
	}

	const selAcc = `SELECT user_id FROM accounts WHERE id=$1 FOR UPDATE`
	var existingOwner string
	scanErr := tx.QueryRow(ctx, selAcc, acc.ID).Scan(&existingOwner)
	switch {
	case scanErr == nil:
		// Token refresh on re-link; ownership never changes here.
		if existingOwner != acc.UserID {
			return errs.ErrAlreadyExists
		}
		const upd = `UPDATE accounts SET access_token=$2, email_address=$3, name=$4 WHERE id=$1`
		_, err = tx.Exec(ctx, upd, acc.ID, acc.AccessToken, acc.EmailAddress, acc.Name)
		return err
	case errors.Is(scanErr, pgx.ErrNoRows):
		// fall through to quota-guarded insert
	default:
		return scanErr
	}

	if maxAccounts >= 0 {
		const cnt = `SELECT COUNT(*) FROM accounts WHERE user_id=$1`
		var n int
		if err = tx.QueryRow(ctx, cnt, acc.UserID).Scan(&n); err != nil {
			return err
		}
		if n >= maxAccounts {
			return errs.ErrQuotaExceeded
		}
	}

	const ins = `
INSERT INTO accounts (id, user_id, access_token, email_address, name)
VALUES ($1, $2, $3, $4, $5)`
	if _, err = tx.Exec(ctx, ins, acc.ID, acc.UserID, acc.AccessToken, acc.EmailAddress, acc.Name); err != nil {
		if isUniqueViolation(err) {
			return errs.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// ThreadRepo implements ThreadRepository using PostgreSQL.
type ThreadRepo struct{ db *DB }

// NewThreadRepo constructs a thread repository.
func NewThreadRepo(db *DB) *ThreadRepo { return &ThreadRepo{db: db} }

// CountByFolder returns how many threads an account has in a folder.
func (r *ThreadRepo) CountByFolder(ctx context.Context, accountID int64, folder model.Folder) (int, error) {
	const q = `SELECT COUNT(*) FROM threads WHERE account_id=$1 AND folder=$2 AND NOT done`
	var n int
	if err := r.db.Pool.QueryRow(ctx, q, accountID, string(folder)).Scan(&n); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0, err
		}
		return 0, errs.ErrStoreUnavailable
	}
	return n, nil
}
