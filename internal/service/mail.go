package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/avolkov87/mailhub/internal/errs"
	"github.com/avolkov87/mailhub/internal/model"
	"github.com/avolkov87/mailhub/internal/repository"
)

// MailProvider is the subset of the provider client the mail service needs.
type MailProvider interface {
	// TriggerSync runs a provider-side mailbox synchronization.
	TriggerSync(ctx context.Context, accessToken string) error
	// GetMessage fetches one message payload for pass-through display.
	GetMessage(ctx context.Context, accessToken, messageID string) (json.RawMessage, error)
}

// MailService is the internal query surface consumed by the UI.
type MailService interface {
	// GetNumThreads returns the thread count for an account folder.
	GetNumThreads(ctx context.Context, accountID int64, tab model.Folder) (int, error)
	// SyncEmails triggers provider-side synchronization for the account.
	SyncEmails(ctx context.Context, accountID int64) error
	// GetMessage passes a message payload through from the provider.
	GetMessage(ctx context.Context, accountID int64, messageID string) (json.RawMessage, error)
}

type MailServiceImpl struct {
	accounts repository.AccountRepository
	threads  repository.ThreadRepository
	provider MailProvider
	log      *zap.Logger
}

// NewMailService constructs MailService with required dependencies.
func NewMailService(
	accounts repository.AccountRepository,
	threads repository.ThreadRepository,
	prov MailProvider,
	log *zap.Logger,
) *MailServiceImpl {
	return &MailServiceImpl{accounts: accounts, threads: threads, provider: prov, log: log}
}

// GetNumThreads counts threads in one folder of an account.
func (s *MailServiceImpl) GetNumThreads(ctx context.Context, accountID int64, tab model.Folder) (int, error) {
	if accountID == 0 || !tab.Valid() {
		return 0, fmt.Errorf("validation: accountID/tab")
	}
	return s.threads.CountByFolder(ctx, accountID, tab)
}

// SyncEmails resolves the account's token and triggers the provider
// sync. The scheduler owns overlap exclusion; this method is the plain
// trigger it serializes.
func (s *MailServiceImpl) SyncEmails(ctx context.Context, accountID int64) error {
	if accountID == 0 {
		return errs.ErrNotFound
	}
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if err := s.provider.TriggerSync(ctx, acc.AccessToken); err != nil {
		return fmt.Errorf("sync account %d: %w", accountID, err)
	}
	return nil
}

// GetMessage fetches one message payload using the account's token.
func (s *MailServiceImpl) GetMessage(ctx context.Context, accountID int64, messageID string) (json.RawMessage, error) {
	if accountID == 0 || messageID == "" {
		return nil, errs.ErrNotFound
	}
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.provider.GetMessage(ctx, acc.AccessToken, messageID)
}
