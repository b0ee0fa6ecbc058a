// Package service contains application services for account linking and
// mailbox queries.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/avolkov87/mailhub/internal/billing"
	"github.com/avolkov87/mailhub/internal/errs"
	"github.com/avolkov87/mailhub/internal/identity"
	"github.com/avolkov87/mailhub/internal/model"
	"github.com/avolkov87/mailhub/internal/quota"
	"github.com/avolkov87/mailhub/internal/repository"
)

// OAuthProvider is the subset of the provider client the linker needs.
type OAuthProvider interface {
	// AuthorizeURL builds the provider consent URL.
	AuthorizeURL(serviceType, state string) string
	// ExchangeCode trades an authorization code for an access token.
	ExchangeCode(ctx context.Context, code string) (model.ExchangeResult, error)
	// GetAccountDetails fetches the mailbox identity behind a token.
	GetAccountDetails(ctx context.Context, accessToken string) (model.AccountDetails, error)
}

// LinkService defines account provisioning and OAuth linking operations.
type LinkService interface {
	// EnsureUser idempotently provisions the local user record for an
	// authenticated principal. An existing record is returned unchanged.
	EnsureUser(ctx context.Context, userID string) (*model.User, error)
	// AuthorizeURL returns the provider consent URL after an advisory
	// quota pre-check, so users over quota fail before the redirect.
	AuthorizeURL(ctx context.Context, userID, serviceType string) (string, error)
	// LinkAccount exchanges the authorization code and persists the
	// account under the owner's quota, atomically.
	LinkAccount(ctx context.Context, userID, code string) (*model.Account, error)
}

type LinkServiceImpl struct {
	users    repository.UserRepository
	accounts repository.AccountRepository
	identity identity.Client
	billing  billing.Client
	provider OAuthProvider
	policy   quota.Policy
	log      *zap.Logger
}

// NewLinkService constructs LinkService with required dependencies.
func NewLinkService(
	users repository.UserRepository,
	accounts repository.AccountRepository,
	ident identity.Client,
	bill billing.Client,
	prov OAuthProvider,
	policy quota.Policy,
	log *zap.Logger,
) *LinkServiceImpl {
	return &LinkServiceImpl{
		users:    users,
		accounts: accounts,
		identity: ident,
		billing:  bill,
		provider: prov,
		policy:   policy,
		log:      log,
	}
}

// EnsureUser returns the local user, creating it on first authenticated
// contact from the identity provider's record. A present record is
// never overwritten here; identity-sync events own attribute updates.
func (s *LinkServiceImpl) EnsureUser(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, errs.ErrAuthRequired
	}
	u, err := s.users.GetByID(ctx, userID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	ident, err := s.identity.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("identity lookup: %w", err)
	}
	email, ok := ident.PrimaryEmail()
	if !ok {
		return nil, errs.ErrMissingPrimaryEmail
	}

	u = &model.User{
		ID:           userID,
		EmailAddress: email,
		FirstName:    ident.FirstName,
		LastName:     ident.LastName,
		ImageURL:     ident.ImageURL,
		Role:         model.RoleUser,
	}
	if err := s.users.Create(ctx, u); err != nil {
		// lost a concurrent first-contact race; the other writer's row wins
		if errors.Is(err, errs.ErrAlreadyExists) {
			return s.users.GetByID(ctx, userID)
		}
		return nil, err
	}
	s.log.Info("user created", zap.String("userID", userID))
	return u, nil
}

// AuthorizeURL ensures the user exists, pre-checks quota against the
// current account count, and returns the consent URL with a fresh state
// nonce. The pre-check is advisory; LinkAccount re-checks inside the
// linking transaction.
func (s *LinkServiceImpl) AuthorizeURL(ctx context.Context, userID, serviceType string) (string, error) {
	u, err := s.EnsureUser(ctx, userID)
	if err != nil {
		return "", err
	}

	status, err := s.billing.SubscriptionStatus(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("subscription lookup: %w", err)
	}
	count, err := s.accounts.CountByUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if d := s.policy.CanLinkAccount(u.Role, status, count); !d.Allowed {
		return "", fmt.Errorf("%w: %s", errs.ErrQuotaExceeded, d.Reason)
	}

	state, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return s.provider.AuthorizeURL(serviceType, state.String()), nil
}

// LinkAccount performs the full linking flow: code exchange, mailbox
// identity lookup, then the quota-guarded insert. Exchange and lookup
// failures surface to the caller so the UI can report the failed link;
// nothing is persisted before the final transactional step.
func (s *LinkServiceImpl) LinkAccount(ctx context.Context, userID, code string) (*model.Account, error) {
	u, err := s.EnsureUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, fmt.Errorf("%w: empty code", errs.ErrExchangeFailed)
	}

	res, err := s.provider.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	details, err := s.provider.GetAccountDetails(ctx, res.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("account details: %w", err)
	}

	status, err := s.billing.SubscriptionStatus(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("subscription lookup: %w", err)
	}
	limit := s.policy.LimitFor(u.Role, status)

	acc := &model.Account{
		ID:           res.AccountID,
		UserID:       userID,
		AccessToken:  res.AccessToken,
		EmailAddress: details.Email,
		Name:         details.Name,
	}
	if err := s.accounts.LinkUnderQuota(ctx, acc, limit); err != nil {
		return nil, err
	}

	s.log.Info("account linked",
		zap.String("userID", userID),
		zap.Int64("accountID", acc.ID),
		zap.String("email", acc.EmailAddress),
	)
	return acc, nil
}

// GetOwnedAccount loads an account and verifies ownership. Accounts of
// other users are reported as not found.
func GetOwnedAccount(ctx context.Context, accounts repository.AccountRepository, userID string, accountID int64) (*model.Account, error) {
	acc, err := accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.UserID != userID {
		return nil, errs.ErrNotFound
	}
	return acc, nil
}
