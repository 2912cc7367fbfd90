package services

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"account-access-service/internal/metrics"
	"account-access-service/internal/models"
	natsclient "account-access-service/internal/nats"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestMetrics() *metrics.Metrics {
	return metrics.NewWith(prometheus.NewRegistry())
}

// MockAccountStore mocks the account persistence surface
type MockAccountStore struct {
	mock.Mock
}

func (m *MockAccountStore) GetByKey(key string) (*models.Account, error) {
	args := m.Called(key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountStore) GetByID(id uuid.UUID) (*models.Account, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountStore) GetAccessView(accountID, userID uuid.UUID) (*models.AccessView, error) {
	args := m.Called(accountID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AccessView), args.Error(1)
}

// MockMembershipStore mocks the membership persistence surface
type MockMembershipStore struct {
	mock.Mock
}

func (m *MockMembershipStore) GetMembership(accountID, userID uuid.UUID) (*models.Membership, error) {
	args := m.Called(accountID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Membership), args.Error(1)
}

func (m *MockMembershipStore) GetByID(id uuid.UUID) (*models.Membership, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Membership), args.Error(1)
}

func (m *MockMembershipStore) UpdateRole(id, accountID uuid.UUID, role string) (bool, error) {
	args := m.Called(id, accountID, role)
	return args.Bool(0), args.Error(1)
}

func (m *MockMembershipStore) Deactivate(id, accountID uuid.UUID) (bool, error) {
	args := m.Called(id, accountID)
	return args.Bool(0), args.Error(1)
}

func (m *MockMembershipStore) ListMembers(accountID uuid.UUID) ([]models.Membership, error) {
	args := m.Called(accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Membership), args.Error(1)
}

func (m *MockMembershipStore) ListAccountSummaries(userID uuid.UUID) ([]models.AccountSummary, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AccountSummary), args.Error(1)
}

// MockActivityStore mocks the audit trail
type MockActivityStore struct {
	mock.Mock
}

func (m *MockActivityStore) Record(entry *models.ActivityLog) error {
	args := m.Called(entry)
	return args.Error(0)
}

func (m *MockActivityStore) ListByAccount(accountID uuid.UUID, limit int) ([]models.ActivityLog, error) {
	args := m.Called(accountID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ActivityLog), args.Error(1)
}

// nopActivityStore accepts every entry; for tests that don't assert on audit
type nopActivityStore struct{}

func (nopActivityStore) Record(entry *models.ActivityLog) error { return nil }

func (nopActivityStore) ListByAccount(accountID uuid.UUID, limit int) ([]models.ActivityLog, error) {
	return nil, nil
}

// nopSummaryCache is an always-cold cache
type nopSummaryCache struct{}

func (nopSummaryCache) GetAccountSummaries(ctx context.Context, userID string) ([]models.AccountSummary, error) {
	return nil, nil
}

func (nopSummaryCache) SetAccountSummaries(ctx context.Context, userID string, summaries []models.AccountSummary) error {
	return nil
}

func (nopSummaryCache) InvalidateAccountSummaries(ctx context.Context, userID string) {}

// nopEventPublisher drops every event
type nopEventPublisher struct{}

func (nopEventPublisher) PublishMemberEvent(ctx context.Context, eventType string, event *natsclient.MemberEvent) error {
	return nil
}

func (nopEventPublisher) PublishTokenEvent(ctx context.Context, eventType string, event *natsclient.TokenEvent) error {
	return nil
}

func (nopEventPublisher) PublishAccountEvent(ctx context.Context, eventType string, event *natsclient.AccountEvent) error {
	return nil
}

// MockTokenStore mocks the token persistence surface
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) Create(token *models.PostSaleToken) error {
	args := m.Called(token)
	return args.Error(0)
}

func (m *MockTokenStore) GetByID(id uuid.UUID) (*models.PostSaleToken, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PostSaleToken), args.Error(1)
}

func (m *MockTokenStore) CountByActorSince(actorID uuid.UUID, since time.Time) (int64, error) {
	args := m.Called(actorID, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTokenStore) CountByEmailSince(email string, since time.Time) (int64, error) {
	args := m.Called(email, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTokenStore) Revoke(id uuid.UUID) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}

func (m *MockTokenStore) Consume(tokenID uuid.UUID, account *models.Account, membership *models.Membership) error {
	args := m.Called(tokenID, account, membership)
	return args.Error(0)
}

// MockSlugChecker mocks slug availability checks
type MockSlugChecker struct {
	mock.Mock
}

func (m *MockSlugChecker) SlugExists(slug string) (bool, error) {
	args := m.Called(slug)
	return args.Bool(0), args.Error(1)
}
