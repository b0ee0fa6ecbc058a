package repository

import (
	"context"

	"github.com/avolkov87/mailhub/internal/model"
)

// AccountRepository provides access to linked mail accounts.
type AccountRepository interface {
	// GetByID loads an account by provider-assigned ID.
	GetByID(ctx context.Context, id int64) (*model.Account, error)

	// CountByUser returns the number of accounts linked to a user.
	// Counts read here are advisory; LinkUnderQuota re-reads inside its
	// transaction.
	CountByUser(ctx context.Context, userID string) (int, error)

	// LinkUnderQuota atomically checks the owner's account count against
	// maxAccounts and inserts the account, serialized per user via a row
	// lock. Returns errs.ErrQuotaExceeded on denial with no side effects.
	// Re-linking an existing account ID refreshes its token instead and
	// never counts against quota. maxAccounts < 0 disables the check.
	LinkUnderQuota(ctx context.Context, acc *model.Account, maxAccounts int) error
}

// ThreadRepository provides read access to synchronized thread counts.
type ThreadRepository interface {
	// CountByFolder returns the number of threads in a folder of an account.
	CountByFolder(ctx context.Context, accountID int64, folder model.Folder) (int, error)
}
