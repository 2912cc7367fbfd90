package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"account-access-service/internal/models"
)

// AccountRepository handles account and profile persistence
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// GetByKey finds an account whose slug or subdomain matches the resolved
// tenant key. Returns (nil, nil) when no account matches.
func (r *AccountRepository) GetByKey(key string) (*models.Account, error) {
	var account models.Account
	err := r.db.Where("slug = ? OR subdomain = ?", key, key).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account by key: %w", err)
	}
	return &account, nil
}

// GetByID returns (nil, nil) when the account does not exist.
func (r *AccountRepository) GetByID(id uuid.UUID) (*models.Account, error) {
	var account models.Account
	err := r.db.Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (r *AccountRepository) Create(account *models.Account) error {
	if err := r.db.Create(account).Error; err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// SlugExists checks slug availability for provisioning.
func (r *AccountRepository) SlugExists(slug string) (bool, error) {
	var count int64
	if err := r.db.Model(&models.Account{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return count > 0, nil
}

// ActivateFromPendingSetup flips status to active only when the account is
// still in pending_setup, stamping setup_completed_at in the same write so
// the timestamp is set exactly once. Returns true when the transition fired;
// false means the account was already past setup, which callers treat as
// success.
func (r *AccountRepository) ActivateFromPendingSetup(id uuid.UUID) (bool, error) {
	result := r.db.Model(&models.Account{}).
		Where("id = ? AND status = ?", id, models.AccountStatusPendingSetup).
		Updates(map[string]interface{}{
			"status":             models.AccountStatusActive,
			"setup_completed_at": time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to activate account: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// UpdateName sets the account's display name.
func (r *AccountRepository) UpdateName(id uuid.UUID, name string) error {
	result := r.db.Model(&models.Account{}).Where("id = ?", id).
		Updates(map[string]interface{}{"name": name})
	if result.Error != nil {
		return fmt.Errorf("failed to update account name: %w", result.Error)
	}
	return nil
}

// UpsertProfile writes the setup-completion fields, inserting or replacing
// the existing profile row.
func (r *AccountRepository) UpsertProfile(profile *models.AccountProfile) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"preferred_channel", "whatsapp_number", "site_url", "updated_at",
		}),
	}).Create(profile).Error
	if err != nil {
		return fmt.Errorf("failed to upsert account profile: %w", err)
	}
	return nil
}

// GetProfile returns (nil, nil) when no profile has been saved yet.
func (r *AccountRepository) GetProfile(accountID uuid.UUID) (*models.AccountProfile, error) {
	var profile models.AccountProfile
	err := r.db.Where("account_id = ?", accountID).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account profile: %w", err)
	}
	return &profile, nil
}

// GetAccessView looks up the denormalized verdict for (account, user).
// Returns (nil, nil) when no projection row exists.
func (r *AccountRepository) GetAccessView(accountID, userID uuid.UUID) (*models.AccessView, error) {
	var view models.AccessView
	err := r.db.Where("account_id = ? AND user_id = ?", accountID, userID).First(&view).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get access view: %w", err)
	}
	return &view, nil
}
