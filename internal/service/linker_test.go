package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avolkov87/mailhub/internal/billing"
	"github.com/avolkov87/mailhub/internal/errs"
	"github.com/avolkov87/mailhub/internal/identity"
	"github.com/avolkov87/mailhub/internal/model"
	"github.com/avolkov87/mailhub/internal/quota"
	"github.com/avolkov87/mailhub/internal/repository"
)

type fakeUsers struct {
	byID map[string]*model.User

	createErr   error
	missNextGet bool
	createCalls int
	getCalls    int
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.createCalls++
	if f.createErr != nil {
		return f.createErr
	}
	if f.byID == nil {
		f.byID = map[string]*model.User{}
	}
	if _, exists := f.byID[u.ID]; exists {
		return errs.ErrAlreadyExists
	}
	cpy := *u
	f.byID[u.ID] = &cpy
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	f.getCalls++
	if f.missNextGet {
		f.missNextGet = false
		return nil, errs.ErrNotFound
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

type fakeAccounts struct {
	byID map[int64]*model.Account

	linkErr   error
	linkCalls int
	lastLimit int
}

var _ repository.AccountRepository = (*fakeAccounts)(nil)

func (f *fakeAccounts) GetByID(_ context.Context, id int64) (*model.Account, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (f *fakeAccounts) CountByUser(_ context.Context, userID string) (int, error) {
	n := 0
	for _, a := range f.byID {
		if a.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeAccounts) LinkUnderQuota(_ context.Context, acc *model.Account, maxAccounts int) error {
	f.linkCalls++
	f.lastLimit = maxAccounts
	if f.linkErr != nil {
		return f.linkErr
	}
	n := 0
	for _, a := range f.byID {
		if a.UserID == acc.UserID {
			n++
		}
	}
	if _, exists := f.byID[acc.ID]; !exists && maxAccounts >= 0 && n >= maxAccounts {
		return errs.ErrQuotaExceeded
	}
	if f.byID == nil {
		f.byID = map[int64]*model.Account{}
	}
	cpy := *acc
	f.byID[acc.ID] = &cpy
	return nil
}

type fakeIdentity struct {
	ident    *model.Identity
	err      error
	getCalls int
}

var _ identity.Client = (*fakeIdentity)(nil)

func (f *fakeIdentity) GetUser(context.Context, string) (*model.Identity, error) {
	f.getCalls++
	return f.ident, f.err
}

type fakeBilling struct {
	status model.SubscriptionStatus
	err    error
}

var _ billing.Client = (*fakeBilling)(nil)

func (f *fakeBilling) SubscriptionStatus(context.Context, string) (model.SubscriptionStatus, error) {
	return f.status, f.err
}

type fakeProvider struct {
	exchange    model.ExchangeResult
	exchangeErr error
	details     model.AccountDetails
	detailsErr  error

	exchangeCalls int
}

var _ OAuthProvider = (*fakeProvider)(nil)

func (f *fakeProvider) AuthorizeURL(serviceType, state string) string {
	return "https://provider.test/v1/auth/authorize?serviceType=" + serviceType + "&state=" + state
}

func (f *fakeProvider) ExchangeCode(context.Context, string) (model.ExchangeResult, error) {
	f.exchangeCalls++
	return f.exchange, f.exchangeErr
}

func (f *fakeProvider) GetAccountDetails(context.Context, string) (model.AccountDetails, error) {
	return f.details, f.detailsErr
}

func (f *fakeProvider) TriggerSync(context.Context, string) error { return nil }

func (f *fakeProvider) GetMessage(context.Context, string, string) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func jane() *model.Identity {
	return &model.Identity{
		ID:                    "user_2x1",
		PrimaryEmailAddressID: "em1",
		EmailAddresses: []model.IdentityEmail{
			{ID: "em1", EmailAddress: "jane@example.com"},
		},
		FirstName: "Jane",
		LastName:  "Doe",
	}
}

func newLinker(users *fakeUsers, accounts *fakeAccounts, ident *fakeIdentity, bill *fakeBilling, prov *fakeProvider) *LinkServiceImpl {
	return NewLinkService(users, accounts, ident, bill, prov, quota.NewPolicy(2, 5), zap.NewNop())
}

func TestEnsureUser_CreatesOnce(t *testing.T) {
	users := &fakeUsers{}
	ident := &fakeIdentity{ident: jane()}
	s := newLinker(users, &fakeAccounts{}, ident, &fakeBilling{status: model.SubscriptionFree}, &fakeProvider{})
	ctx := context.Background()

	u, err := s.EnsureUser(ctx, "user_2x1")
	require.NoError(t, err)
	require.Equal(t, "jane@example.com", u.EmailAddress)
	require.Equal(t, model.RoleUser, u.Role)
	require.Equal(t, 1, users.createCalls)

	// second call returns the existing record and performs no write
	u2, err := s.EnsureUser(ctx, "user_2x1")
	require.NoError(t, err)
	require.Equal(t, u.ID, u2.ID)
	require.Equal(t, 1, users.createCalls)
	require.Equal(t, 1, ident.getCalls)
}

func TestEnsureUser_MissingPrimaryEmail(t *testing.T) {
	id := jane()
	id.PrimaryEmailAddressID = "em-gone"
	users := &fakeUsers{}
	s := newLinker(users, &fakeAccounts{}, &fakeIdentity{ident: id}, &fakeBilling{}, &fakeProvider{})

	_, err := s.EnsureUser(context.Background(), "user_2x1")
	require.ErrorIs(t, err, errs.ErrMissingPrimaryEmail)
	require.Zero(t, users.createCalls)
}

// Another session inserts the row between this session's read and
// create; the unique violation resolves to the winner's record.
func TestEnsureUser_ConcurrentCreateRace(t *testing.T) {
	winner := &model.User{ID: "user_2x1", EmailAddress: "winner@example.com", Role: model.RoleUser}
	users := &fakeUsers{
		byID:        map[string]*model.User{"user_2x1": winner},
		createErr:   errs.ErrAlreadyExists,
		missNextGet: true,
	}
	s := newLinker(users, &fakeAccounts{}, &fakeIdentity{ident: jane()}, &fakeBilling{}, &fakeProvider{})

	u, err := s.EnsureUser(context.Background(), "user_2x1")
	require.NoError(t, err)
	require.Equal(t, 1, users.createCalls)
	require.Equal(t, winner.EmailAddress, u.EmailAddress)
}

func TestEnsureUser_NoPrincipal(t *testing.T) {
	s := newLinker(&fakeUsers{}, &fakeAccounts{}, &fakeIdentity{}, &fakeBilling{}, &fakeProvider{})
	_, err := s.EnsureUser(context.Background(), "")
	require.ErrorIs(t, err, errs.ErrAuthRequired)
}

func TestLinkAccount_OK(t *testing.T) {
	users := &fakeUsers{byID: map[string]*model.User{
		"user_2x1": {ID: "user_2x1", Role: model.RoleUser},
	}}
	accounts := &fakeAccounts{}
	prov := &fakeProvider{
		exchange: model.ExchangeResult{AccountID: 42, AccessToken: "tok", UserID: "u1", UserSession: "s1"},
		details:  model.AccountDetails{Email: "jane@gmail.com", Name: "Jane Doe"},
	}
	s := newLinker(users, accounts, &fakeIdentity{}, &fakeBilling{status: model.SubscriptionFree}, prov)

	acc, err := s.LinkAccount(context.Background(), "user_2x1", "abc123")
	require.NoError(t, err)
	require.Equal(t, int64(42), acc.ID)
	require.Equal(t, "tok", acc.AccessToken)
	require.Equal(t, "jane@gmail.com", acc.EmailAddress)
	require.Equal(t, 2, accounts.lastLimit) // free tier limit passed into the tx
}

func TestLinkAccount_ExchangeFailed_NoSideEffects(t *testing.T) {
	users := &fakeUsers{byID: map[string]*model.User{
		"user_2x1": {ID: "user_2x1", Role: model.RoleUser},
	}}
	accounts := &fakeAccounts{}
	prov := &fakeProvider{exchangeErr: errs.ErrExchangeFailed}
	s := newLinker(users, accounts, &fakeIdentity{}, &fakeBilling{status: model.SubscriptionFree}, prov)

	_, err := s.LinkAccount(context.Background(), "user_2x1", "consumed")
	require.ErrorIs(t, err, errs.ErrExchangeFailed)
	require.Zero(t, accounts.linkCalls)
}

func TestLinkAccount_QuotaDenied(t *testing.T) {
	users := &fakeUsers{byID: map[string]*model.User{
		"user_2x1": {ID: "user_2x1", Role: model.RoleUser},
	}}
	accounts := &fakeAccounts{byID: map[int64]*model.Account{
		1: {ID: 1, UserID: "user_2x1"},
		2: {ID: 2, UserID: "user_2x1"},
	}}
	prov := &fakeProvider{
		exchange: model.ExchangeResult{AccountID: 42, AccessToken: "tok"},
		details:  model.AccountDetails{Email: "jane@gmail.com"},
	}
	s := newLinker(users, accounts, &fakeIdentity{}, &fakeBilling{status: model.SubscriptionFree}, prov)

	_, err := s.LinkAccount(context.Background(), "user_2x1", "abc123")
	require.ErrorIs(t, err, errs.ErrQuotaExceeded)
	require.Len(t, accounts.byID, 2)
}

func TestLinkAccount_AdminBypassesQuota(t *testing.T) {
	users := &fakeUsers{byID: map[string]*model.User{
		"admin_1": {ID: "admin_1", Role: model.RoleAdmin},
	}}
	accounts := &fakeAccounts{byID: map[int64]*model.Account{
		1: {ID: 1, UserID: "admin_1"},
		2: {ID: 2, UserID: "admin_1"},
		3: {ID: 3, UserID: "admin_1"},
	}}
	prov := &fakeProvider{
		exchange: model.ExchangeResult{AccountID: 99, AccessToken: "tok"},
		details:  model.AccountDetails{Email: "ops@example.com"},
	}
	s := newLinker(users, accounts, &fakeIdentity{}, &fakeBilling{status: model.SubscriptionFree}, prov)

	acc, err := s.LinkAccount(context.Background(), "admin_1", "abc123")
	require.NoError(t, err)
	require.Equal(t, quota.Unlimited, accounts.lastLimit)
	require.Equal(t, int64(99), acc.ID)
}

func TestAuthorizeURL_QuotaPreCheck(t *testing.T) {
	users := &fakeUsers{byID: map[string]*model.User{
		"user_2x1": {ID: "user_2x1", Role: model.RoleUser},
	}}
	accounts := &fakeAccounts{byID: map[int64]*model.Account{
		1: {ID: 1, UserID: "user_2x1"},
		2: {ID: 2, UserID: "user_2x1"},
	}}
	s := newLinker(users, accounts, &fakeIdentity{}, &fakeBilling{status: model.SubscriptionFree}, &fakeProvider{})

	_, err := s.AuthorizeURL(context.Background(), "user_2x1", "Google")
	require.ErrorIs(t, err, errs.ErrQuotaExceeded)
}

func TestAuthorizeURL_OK(t *testing.T) {
	users := &fakeUsers{byID: map[string]*model.User{
		"user_2x1": {ID: "user_2x1", Role: model.RoleUser},
	}}
	s := newLinker(users, &fakeAccounts{}, &fakeIdentity{}, &fakeBilling{status: model.SubscriptionPro}, &fakeProvider{})

	u, err := s.AuthorizeURL(context.Background(), "user_2x1", "Office365")
	require.NoError(t, err)
	require.Contains(t, u, "serviceType=Office365")
	require.Contains(t, u, "state=")
}
