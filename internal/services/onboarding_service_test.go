package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"account-access-service/internal/models"
)

// MockTokenRedeemer mocks the saga's token surface
type MockTokenRedeemer struct {
	mock.Mock
}

func (m *MockTokenRedeemer) Validate(id uuid.UUID, secret string) (*models.PostSaleToken, error) {
	args := m.Called(id, secret)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PostSaleToken), args.Error(1)
}

func (m *MockTokenRedeemer) Consume(ctx context.Context, id uuid.UUID, secret string, userID uuid.UUID) (*models.Account, error) {
	args := m.Called(id, secret, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

// MockIdentityProvider mocks the identity collaborator
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) CreateUser(email, name, password string) (*models.User, error) {
	args := m.Called(email, name, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockIdentityProvider) Authenticate(email, password string) (*models.User, error) {
	args := m.Called(email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// MockSessionIssuer mocks session establishment
type MockSessionIssuer struct {
	mock.Mock
}

func (m *MockSessionIssuer) Establish(user *models.User) (*SessionPair, error) {
	args := m.Called(user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*SessionPair), args.Error(1)
}

type onboardingFixture struct {
	tokens   *MockTokenRedeemer
	identity *MockIdentityProvider
	sessions *MockSessionIssuer
	accounts *MockAccountStore
	svc      *OnboardingService
}

func newOnboardingFixture() *onboardingFixture {
	f := &onboardingFixture{
		tokens:   &MockTokenRedeemer{},
		identity: &MockIdentityProvider{},
		sessions: &MockSessionIssuer{},
		accounts: &MockAccountStore{},
	}
	f.svc = NewOnboardingService(f.tokens, f.identity, f.sessions, f.accounts, newTestLogger())
	return f
}

func redeemRequest() RedeemRequest {
	return RedeemRequest{
		TokenID:  uuid.New(),
		Secret:   "s3cret",
		Name:     "Jordan",
		Password: "correct-horse-1",
	}
}

func TestRedeemToken_InvalidToken(t *testing.T) {
	f := newOnboardingFixture()
	req := redeemRequest()
	f.tokens.On("Validate", req.TokenID, req.Secret).Return(nil, &TokenStatusError{Status: "expired"})

	result, err := f.svc.RedeemToken(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, result.Outcome)
	assert.Equal(t, ReasonTokenInvalid, result.Reason)
	assert.Equal(t, 1, result.Step)
	f.identity.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestRedeemToken_EmailAlreadyExists(t *testing.T) {
	f := newOnboardingFixture()
	req := redeemRequest()
	token := liveToken(req.Secret)
	f.tokens.On("Validate", req.TokenID, req.Secret).Return(token, nil)
	f.identity.On("CreateUser", token.Email, req.Name, req.Password).Return(nil, ErrEmailTaken)

	result, err := f.svc.RedeemToken(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, result.Outcome)
	assert.Equal(t, ReasonEmailAlreadyExists, result.Reason)
	assert.Equal(t, 2, result.Step)
}

func TestRedeemToken_IdentityCreationFailed(t *testing.T) {
	f := newOnboardingFixture()
	req := redeemRequest()
	token := liveToken(req.Secret)
	f.tokens.On("Validate", req.TokenID, req.Secret).Return(token, nil)
	f.identity.On("CreateUser", token.Email, req.Name, req.Password).Return(nil, errors.New("idp down"))

	result, err := f.svc.RedeemToken(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, ReasonIdentityCreationFailed, result.Reason)
	assert.Equal(t, 2, result.Step)
	f.tokens.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything, mock.Anything)
}

func TestRedeemToken_AccountCreationFailed(t *testing.T) {
	f := newOnboardingFixture()
	req := redeemRequest()
	token := liveToken(req.Secret)
	user := &models.User{ID: uuid.New(), Email: token.Email}
	f.tokens.On("Validate", req.TokenID, req.Secret).Return(token, nil)
	f.identity.On("CreateUser", token.Email, req.Name, req.Password).Return(user, nil)
	f.tokens.On("Consume", req.TokenID, req.Secret, user.ID).Return(nil, errors.New("db down"))

	result, err := f.svc.RedeemToken(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, ReasonAccountCreationFailed, result.Reason)
	assert.Equal(t, 3, result.Step)
	f.sessions.AssertNotCalled(t, "Establish", mock.Anything)
}

func TestRedeemToken_SessionEstablishmentFailed(t *testing.T) {
	f := newOnboardingFixture()
	req := redeemRequest()
	token := liveToken(req.Secret)
	user := &models.User{ID: uuid.New(), Email: token.Email}
	account := &models.Account{ID: uuid.New(), Slug: "acc-1a2b3c"}
	f.tokens.On("Validate", req.TokenID, req.Secret).Return(token, nil)
	f.identity.On("CreateUser", token.Email, req.Name, req.Password).Return(user, nil)
	f.tokens.On("Consume", req.TokenID, req.Secret, user.ID).Return(account, nil)
	f.sessions.On("Establish", user).Return(nil, errors.New("signer broken"))

	result, err := f.svc.RedeemToken(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, ReasonSessionFailed, result.Reason)
	assert.Equal(t, 4, result.Step)
}

func TestRedeemToken_AccountNotFound(t *testing.T) {
	f := newOnboardingFixture()
	req := redeemRequest()
	token := liveToken(req.Secret)
	user := &models.User{ID: uuid.New(), Email: token.Email}
	account := &models.Account{ID: uuid.New(), Slug: "acc-1a2b3c"}
	f.tokens.On("Validate", req.TokenID, req.Secret).Return(token, nil)
	f.identity.On("CreateUser", token.Email, req.Name, req.Password).Return(user, nil)
	f.tokens.On("Consume", req.TokenID, req.Secret, user.ID).Return(account, nil)
	f.sessions.On("Establish", user).Return(&SessionPair{AccessToken: "a", RefreshToken: "r"}, nil)
	f.accounts.On("GetByID", account.ID).Return(nil, nil)

	result, err := f.svc.RedeemToken(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, ReasonAccountNotFound, result.Reason)
	assert.Equal(t, 5, result.Step)
}

func TestRedeemToken_SuccessRedirectsToSlug(t *testing.T) {
	f := newOnboardingFixture()
	req := redeemRequest()
	token := liveToken(req.Secret)
	user := &models.User{ID: uuid.New(), Email: token.Email}
	account := &models.Account{ID: uuid.New(), Slug: "acc-1a2b3c", Status: models.AccountStatusPendingSetup}
	f.tokens.On("Validate", req.TokenID, req.Secret).Return(token, nil)
	f.identity.On("CreateUser", token.Email, req.Name, req.Password).Return(user, nil)
	f.tokens.On("Consume", req.TokenID, req.Secret, user.ID).Return(account, nil)
	f.sessions.On("Establish", user).Return(&SessionPair{AccessToken: "a", RefreshToken: "r"}, nil)
	f.accounts.On("GetByID", account.ID).Return(account, nil)

	result, err := f.svc.RedeemToken(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, OutcomeRedirect, result.Outcome)
	assert.Equal(t, "/a/acc-1a2b3c", result.Redirect)
	assert.Empty(t, result.Reason)
	require.NotNil(t, result.Session)
	assert.Equal(t, "a", result.Session.AccessToken)
}
