package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"account-access-service/internal/config"
	"account-access-service/internal/models"
	"account-access-service/internal/repository"
)

func testTokenConfig() config.TokenConfig {
	return config.TokenConfig{
		ExpiryDays:      7,
		AdminDailyLimit: 20,
		OwnerDailyLimit: 100,
		EmailDailyLimit: 5,
		BurstLimit:      3,
		BurstWindowMins: 5,
	}
}

func newTokenFixture(tokens *MockTokenStore, slugs *MockSlugChecker) *TokenService {
	if slugs == nil {
		slugs = &MockSlugChecker{}
	}
	return NewTokenService(tokens, slugs, nopActivityStore{}, nopEventPublisher{}, newTestMetrics(), testTokenConfig(), newTestLogger())
}

func TestGenerate_AdminDailyLimit(t *testing.T) {
	actorID := uuid.New()
	tokens := &MockTokenStore{}
	// The 21st token of the day for an admin trips the actor limit.
	tokens.On("CountByActorSince", actorID, mock.Anything).Return(int64(20), nil).Once()

	svc := newTokenFixture(tokens, nil)
	_, err := svc.Generate(context.Background(), actorID, models.RoleAdmin, "buyer@example.com", "Acme", "")

	rlErr, ok := AsRateLimitError(err)
	require.True(t, ok)
	assert.Equal(t, RateScopePerActorDay, rlErr.ScopeDetail)
	assert.Equal(t, int64(20), rlErr.Limit)
	tokens.AssertNotCalled(t, "Create", mock.Anything)
}

func TestGenerate_DailyLimitTrails24Hours(t *testing.T) {
	actorID := uuid.New()
	now := time.Date(2026, 8, 29, 0, 30, 0, 0, time.UTC)

	// Tokens issued before midnight still count: the window is the trailing
	// 24 hours, never the calendar day.
	tokens := &MockTokenStore{}
	tokens.On("CountByActorSince", actorID, now.Add(-24*time.Hour)).Return(int64(20), nil).Once()

	svc := newTokenFixture(tokens, nil)
	svc.now = func() time.Time { return now }

	_, err := svc.Generate(context.Background(), actorID, models.RoleAdmin, "buyer@example.com", "Acme", "")

	rlErr, ok := AsRateLimitError(err)
	require.True(t, ok)
	assert.Equal(t, RateScopePerActorDay, rlErr.ScopeDetail)
	tokens.AssertExpectations(t)
}

func TestGenerate_OwnerGetsHigherActorLimit(t *testing.T) {
	actorID := uuid.New()
	tokens := &MockTokenStore{}
	tokens.On("CountByActorSince", actorID, mock.Anything).Return(int64(20), nil).Once() // day window
	tokens.On("CountByEmailSince", "buyer@example.com", mock.Anything).Return(int64(0), nil).Once()
	tokens.On("CountByActorSince", actorID, mock.Anything).Return(int64(0), nil).Once() // burst window
	tokens.On("Create", mock.Anything).Return(nil)

	svc := newTokenFixture(tokens, nil)
	generated, err := svc.Generate(context.Background(), actorID, models.RoleOwner, "buyer@example.com", "Acme", "")

	require.NoError(t, err)
	assert.NotEmpty(t, generated.Secret)
}

func TestGenerate_EmailDailyLimit(t *testing.T) {
	actorID := uuid.New()
	tokens := &MockTokenStore{}
	tokens.On("CountByActorSince", actorID, mock.Anything).Return(int64(1), nil).Once()
	tokens.On("CountByEmailSince", "buyer@example.com", mock.Anything).Return(int64(5), nil).Once()

	svc := newTokenFixture(tokens, nil)
	_, err := svc.Generate(context.Background(), actorID, models.RoleAdmin, "Buyer@Example.com", "Acme", "")

	rlErr, ok := AsRateLimitError(err)
	require.True(t, ok)
	assert.Equal(t, RateScopePerEmailDay, rlErr.ScopeDetail)
}

func TestGenerate_BurstLimit(t *testing.T) {
	actorID := uuid.New()
	tokens := &MockTokenStore{}
	tokens.On("CountByActorSince", actorID, mock.Anything).Return(int64(5), nil).Once() // day window
	tokens.On("CountByEmailSince", "buyer@example.com", mock.Anything).Return(int64(0), nil).Once()
	tokens.On("CountByActorSince", actorID, mock.Anything).Return(int64(3), nil).Once() // burst window

	svc := newTokenFixture(tokens, nil)
	_, err := svc.Generate(context.Background(), actorID, models.RoleAdmin, "buyer@example.com", "Acme", "")

	rlErr, ok := AsRateLimitError(err)
	require.True(t, ok)
	assert.Equal(t, RateScopeBurst, rlErr.ScopeDetail)
}

func TestGenerate_RequiresAdminRole(t *testing.T) {
	tokens := &MockTokenStore{}
	svc := newTokenFixture(tokens, nil)

	_, err := svc.Generate(context.Background(), uuid.New(), models.RoleEditor, "buyer@example.com", "Acme", "")

	accessErr, ok := AsAccessError(err)
	require.True(t, ok)
	assert.Equal(t, AccessCodeForbiddenAccount, accessErr.Code)
	tokens.AssertNotCalled(t, "CountByActorSince", mock.Anything, mock.Anything)
}

func TestGenerate_StoresHashNotSecret(t *testing.T) {
	actorID := uuid.New()
	tokens := &MockTokenStore{}
	tokens.On("CountByActorSince", actorID, mock.Anything).Return(int64(0), nil)
	tokens.On("CountByEmailSince", "buyer@example.com", mock.Anything).Return(int64(0), nil)
	tokens.On("Create", mock.Anything).Return(nil)

	svc := newTokenFixture(tokens, nil)
	generated, err := svc.Generate(context.Background(), actorID, models.RoleAdmin, "buyer@example.com", "Acme", "CT-2026-0042")

	require.NoError(t, err)
	assert.Equal(t, hashSecret(generated.Secret), generated.Token.SecretHash)
	assert.NotContains(t, generated.Token.SecretHash, generated.Secret)
	assert.Equal(t, models.RoleOwner, generated.Token.Role)
	assert.Equal(t, "CT-2026-0042", generated.Token.ContractRef)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), generated.Token.ExpiresAt, time.Minute)
}

func liveToken(secret string) *models.PostSaleToken {
	return &models.PostSaleToken{
		ID:          uuid.New(),
		SecretHash:  hashSecret(secret),
		Email:       "buyer@example.com",
		AccountName: "Acme",
		Role:        models.RoleOwner,
		CreatedBy:   uuid.New(),
		ExpiresAt:   time.Now().Add(24 * time.Hour),
	}
}

func TestValidate_AlreadyUsedWinsOverExpired(t *testing.T) {
	token := liveToken("s3cret")
	used := time.Now().Add(-48 * time.Hour)
	token.UsedAt = &used
	token.ExpiresAt = time.Now().Add(-24 * time.Hour) // also expired

	tokens := &MockTokenStore{}
	tokens.On("GetByID", token.ID).Return(token, nil)

	svc := newTokenFixture(tokens, nil)
	_, err := svc.Validate(token.ID, "s3cret")

	tsErr, ok := AsTokenStatusError(err)
	require.True(t, ok)
	assert.Equal(t, "already_used", tsErr.Status)
}

func TestValidate_Expired(t *testing.T) {
	token := liveToken("s3cret")
	token.ExpiresAt = time.Now().Add(-time.Minute)

	tokens := &MockTokenStore{}
	tokens.On("GetByID", token.ID).Return(token, nil)

	svc := newTokenFixture(tokens, nil)
	_, err := svc.Validate(token.ID, "s3cret")

	tsErr, ok := AsTokenStatusError(err)
	require.True(t, ok)
	assert.Equal(t, "expired", tsErr.Status)
}

func TestValidate_OpaqueInvalid(t *testing.T) {
	token := liveToken("s3cret")

	tokens := &MockTokenStore{}
	tokens.On("GetByID", token.ID).Return(token, nil)
	missingID := uuid.New()
	tokens.On("GetByID", missingID).Return(nil, nil)

	svc := newTokenFixture(tokens, nil)

	// Wrong secret and missing token look the same.
	_, errWrong := svc.Validate(token.ID, "wrong")
	_, errMissing := svc.Validate(missingID, "s3cret")

	wrongErr, ok := AsTokenStatusError(errWrong)
	require.True(t, ok)
	missingErr, ok := AsTokenStatusError(errMissing)
	require.True(t, ok)
	assert.Equal(t, wrongErr.Status, missingErr.Status)
	assert.Equal(t, "not_found", wrongErr.Status)
}

func TestRevoke_Idempotent(t *testing.T) {
	tokenID := uuid.New()
	tokens := &MockTokenStore{}
	tokens.On("Revoke", tokenID).Return(true, nil).Once()
	tokens.On("Revoke", tokenID).Return(false, nil).Once()

	logger, hook := logrustest.NewNullLogger()
	svc := NewTokenService(tokens, &MockSlugChecker{}, nopActivityStore{}, nopEventPublisher{}, newTestMetrics(), testTokenConfig(), logger)

	assert.NoError(t, svc.Revoke(context.Background(), tokenID))
	// Second revoke touches nothing, still succeeds, and says so in the log.
	assert.NoError(t, svc.Revoke(context.Background(), tokenID))

	var events []string
	for _, entry := range hook.AllEntries() {
		if v, ok := entry.Data["event"]; ok {
			events = append(events, v.(string))
		}
	}
	assert.Contains(t, events, "token.revoked")
	assert.Contains(t, events, "token.revoke_noop")
	tokens.AssertExpectations(t)
}

func TestConsume_ProvisionsPendingAccount(t *testing.T) {
	token := liveToken("s3cret")
	token.AccountName = ""
	userID := uuid.New()

	tokens := &MockTokenStore{}
	tokens.On("GetByID", token.ID).Return(token, nil)
	tokens.On("Consume", token.ID, mock.Anything, mock.Anything).Return(nil)

	slugs := &MockSlugChecker{}
	slugs.On("SlugExists", mock.Anything).Return(false, nil)

	svc := newTokenFixture(tokens, slugs)
	account, err := svc.Consume(context.Background(), token.ID, "s3cret", userID)

	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusPendingSetup, account.Status)
	assert.True(t, strings.HasPrefix(account.Slug, "acc-"))
	assert.Equal(t, "Conta "+account.Slug, account.Name)
	assert.Equal(t, userID, account.OwnerUserID)
}

func TestConsume_LosesCleanlyWhenTokenBurned(t *testing.T) {
	token := liveToken("s3cret")

	tokens := &MockTokenStore{}
	tokens.On("GetByID", token.ID).Return(token, nil)
	tokens.On("Consume", token.ID, mock.Anything, mock.Anything).Return(repository.ErrTokenConsumed)

	slugs := &MockSlugChecker{}
	slugs.On("SlugExists", mock.Anything).Return(false, nil)

	svc := newTokenFixture(tokens, slugs)
	_, err := svc.Consume(context.Background(), token.ID, "s3cret", uuid.New())

	tsErr, ok := AsTokenStatusError(err)
	require.True(t, ok)
	assert.Equal(t, "already_used", tsErr.Status)
}
