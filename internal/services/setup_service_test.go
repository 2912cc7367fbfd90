package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"account-access-service/internal/models"
)

// MockSetupStore mocks the account surface setup completion needs
type MockSetupStore struct {
	mock.Mock
}

func (m *MockSetupStore) GetByID(id uuid.UUID) (*models.Account, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockSetupStore) UpdateName(id uuid.UUID, name string) error {
	args := m.Called(id, name)
	return args.Error(0)
}

func (m *MockSetupStore) UpsertProfile(profile *models.AccountProfile) error {
	args := m.Called(profile)
	return args.Error(0)
}

func (m *MockSetupStore) ActivateFromPendingSetup(id uuid.UUID) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}

func pendingAccount() *models.Account {
	return &models.Account{
		ID:        uuid.New(),
		Name:      "Conta acc-7f3a9b",
		Slug:      "acc-7f3a9b",
		Subdomain: "acc-7f3a9b",
		Status:    models.AccountStatusPendingSetup,
		Plan:      models.PlanFree,
	}
}

func newSetupFixture(accounts *MockSetupStore) *SetupService {
	return NewSetupService(accounts, nopEventPublisher{}, newTestLogger())
}

func TestCompleteSetup_FieldValidation(t *testing.T) {
	tests := []struct {
		name          string
		req           SetupRequest
		expectedCodes map[string]string
	}{
		{
			name:          "name missing",
			req:           SetupRequest{},
			expectedCodes: map[string]string{"name": "required"},
		},
		{
			name:          "provisioning default name by subdomain",
			req:           SetupRequest{Name: "Conta acc-7f3a9b"},
			expectedCodes: map[string]string{"name": "name_is_default"},
		},
		{
			name:          "provisioning default name by pattern",
			req:           SetupRequest{Name: "Conta acc-zz99xx"},
			expectedCodes: map[string]string{"name": "name_is_default"},
		},
		{
			name:          "provisioning default name case insensitive",
			req:           SetupRequest{Name: "conta ACC-7F3A9B"},
			expectedCodes: map[string]string{"name": "name_is_default"},
		},
		{
			name:          "unknown channel",
			req:           SetupRequest{Name: "Bakery", PreferredChannel: "sms"},
			expectedCodes: map[string]string{"preferred_channel": "invalid_channel"},
		},
		{
			name:          "whatsapp channel needs a number",
			req:           SetupRequest{Name: "Bakery", PreferredChannel: "whatsapp"},
			expectedCodes: map[string]string{"whatsapp_number": "required"},
		},
		{
			name:          "whatsapp number too short",
			req:           SetupRequest{Name: "Bakery", PreferredChannel: "whatsapp", WhatsappNumber: "123456789"},
			expectedCodes: map[string]string{"whatsapp_number": "whatsapp_invalid"},
		},
		{
			name:          "whatsapp number too long",
			req:           SetupRequest{Name: "Bakery", PreferredChannel: "whatsapp", WhatsappNumber: "1234567890123456"},
			expectedCodes: map[string]string{"whatsapp_number": "whatsapp_invalid"},
		},
		{
			name:          "site url not a url",
			req:           SetupRequest{Name: "Bakery", SiteURL: "justtext"},
			expectedCodes: map[string]string{"site_url": "invalid_url"},
		},
		{
			name:          "site url with embedded space",
			req:           SetupRequest{Name: "Bakery", SiteURL: "https://exa mple.com"},
			expectedCodes: map[string]string{"site_url": "invalid_url"},
		},
		{
			name: "all failures reported together",
			req:  SetupRequest{Name: "Conta acc-7f3a9b", PreferredChannel: "sms", SiteURL: "justtext"},
			expectedCodes: map[string]string{
				"name":              "name_is_default",
				"preferred_channel": "invalid_channel",
				"site_url":          "invalid_url",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account := pendingAccount()
			accounts := &MockSetupStore{}
			accounts.On("GetByID", account.ID).Return(account, nil)

			svc := newSetupFixture(accounts)
			_, err := svc.CompleteSetup(context.Background(), account.ID, tt.req)

			verrs, ok := AsValidationErrors(err)
			require.True(t, ok, "expected validation errors, got %v", err)
			require.Len(t, verrs, len(tt.expectedCodes))
			for _, verr := range verrs {
				assert.Equal(t, tt.expectedCodes[verr.Field], verr.Code, "field %s", verr.Field)
			}
			accounts.AssertNotCalled(t, "UpsertProfile", mock.Anything)
			accounts.AssertNotCalled(t, "ActivateFromPendingSetup", mock.Anything)
		})
	}
}

func TestCompleteSetup_DefaultNameWhitespaceInsensitive(t *testing.T) {
	account := pendingAccount()
	account.Slug = "acme"
	account.Subdomain = "acme"
	account.Name = "Conta acme"
	accounts := &MockSetupStore{}
	accounts.On("GetByID", account.ID).Return(account, nil)

	svc := newSetupFixture(accounts)
	// Doubled interior whitespace does not sneak the default name through.
	_, err := svc.CompleteSetup(context.Background(), account.ID, SetupRequest{Name: "Conta  acme"})

	verrs, ok := AsValidationErrors(err)
	require.True(t, ok)
	require.Len(t, verrs, 1)
	assert.Equal(t, "name_is_default", verrs[0].Code)
}

func TestCompleteSetup_ChannelDefaultsToEmail(t *testing.T) {
	account := pendingAccount()
	accounts := &MockSetupStore{}
	accounts.On("GetByID", account.ID).Return(account, nil)
	accounts.On("UpdateName", account.ID, "Bakery").Return(nil)
	accounts.On("UpsertProfile", mock.Anything).Return(nil)
	accounts.On("ActivateFromPendingSetup", account.ID).Return(true, nil)

	svc := newSetupFixture(accounts)
	result, err := svc.CompleteSetup(context.Background(), account.ID, SetupRequest{Name: "Bakery"})

	require.NoError(t, err)
	assert.Equal(t, ChannelEmail, result.Profile.PreferredChannel)
}

func TestCompleteSetup_WhatsappFormattingStripped(t *testing.T) {
	account := pendingAccount()
	accounts := &MockSetupStore{}
	accounts.On("GetByID", account.ID).Return(account, nil)
	accounts.On("UpdateName", account.ID, "Bakery").Return(nil)
	accounts.On("UpsertProfile", mock.Anything).Return(nil)
	accounts.On("ActivateFromPendingSetup", account.ID).Return(true, nil)

	svc := newSetupFixture(accounts)
	result, err := svc.CompleteSetup(context.Background(), account.ID, SetupRequest{
		Name:             "Bakery",
		PreferredChannel: "whatsapp",
		WhatsappNumber:   "+55 (11) 98765-4321",
	})

	require.NoError(t, err)
	assert.Equal(t, "5511987654321", result.Profile.WhatsappNumber)
}

func TestCompleteSetup_SiteURLNormalization(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare host gets https", "example.com", "https://example.com"},
		{"path and query kept", "example.com/shop?ref=1", "https://example.com/shop?ref=1"},
		{"trailing slash kept with path", "https://example.com/path/", "https://example.com/path/"},
		{"http scheme kept", "http://example.com/about", "http://example.com/about"},
		{"port kept", "https://example.com:8443", "https://example.com:8443"},
		{"host lowercased", "HTTPS://Example.COM", "https://example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account := pendingAccount()
			accounts := &MockSetupStore{}
			accounts.On("GetByID", account.ID).Return(account, nil)
			accounts.On("UpdateName", account.ID, "Bakery").Return(nil)
			accounts.On("UpsertProfile", mock.Anything).Return(nil)
			accounts.On("ActivateFromPendingSetup", account.ID).Return(true, nil)

			svc := newSetupFixture(accounts)
			result, err := svc.CompleteSetup(context.Background(), account.ID, SetupRequest{
				Name:    "Bakery",
				SiteURL: tt.input,
			})

			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.Profile.SiteURL)
		})
	}
}

func TestCompleteSetup_ActivationIsConditionalAndIdempotent(t *testing.T) {
	account := pendingAccount()
	accounts := &MockSetupStore{}
	accounts.On("GetByID", account.ID).Return(account, nil)
	accounts.On("UpdateName", account.ID, "Bakery").Return(nil)
	accounts.On("UpsertProfile", mock.Anything).Return(nil)
	accounts.On("ActivateFromPendingSetup", account.ID).Return(true, nil).Once()
	accounts.On("ActivateFromPendingSetup", account.ID).Return(false, nil).Once()

	svc := newSetupFixture(accounts)

	first, err := svc.CompleteSetup(context.Background(), account.ID, SetupRequest{Name: "Bakery"})
	require.NoError(t, err)
	assert.True(t, first.Activated)
	assert.Equal(t, models.AccountStatusActive, first.Account.Status)

	// Repeat call updates the profile but never re-fires the transition.
	second, err := svc.CompleteSetup(context.Background(), account.ID, SetupRequest{Name: "Bakery"})
	require.NoError(t, err)
	assert.False(t, second.Activated)
	accounts.AssertExpectations(t)
}
