package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"account-access-service/internal/models"
)

// TokenRepository handles post-sale token persistence
type TokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Create(token *models.PostSaleToken) error {
	if err := r.db.Create(token).Error; err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

// GetByID returns (nil, nil) when the token does not exist.
func (r *TokenRepository) GetByID(id uuid.UUID) (*models.PostSaleToken, error) {
	var token models.PostSaleToken
	err := r.db.Where("id = ?", id).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return &token, nil
}

// CountByActorSince counts tokens created by an actor at or after the cutoff.
func (r *TokenRepository) CountByActorSince(actorID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.PostSaleToken{}).
		Where("created_by = ? AND created_at >= ?", actorID, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count actor tokens: %w", err)
	}
	return count, nil
}

// CountByEmailSince counts tokens issued for an email at or after the cutoff.
func (r *TokenRepository) CountByEmailSince(email string, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.PostSaleToken{}).
		Where("email = ? AND created_at >= ?", email, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count email tokens: %w", err)
	}
	return count, nil
}

// Revoke expires a token immediately by setting expires_at to now. Only
// live tokens are touched; revoking a used or already-revoked token changes
// nothing, and both paths report success to keep the operation idempotent.
func (r *TokenRepository) Revoke(id uuid.UUID) (bool, error) {
	now := time.Now()
	result := r.db.Model(&models.PostSaleToken{}).
		Where("id = ? AND used_at IS NULL AND expires_at > ?", id, now).
		Updates(map[string]interface{}{"expires_at": now})
	if result.Error != nil {
		return false, fmt.Errorf("failed to revoke token: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Consume atomically marks the token used and provisions the account with
// its owner membership. The conditional update on used_at decides the
// winner under concurrency; the loser's transaction rolls back with
// ErrTokenConsumed and leaves no partial account behind.
func (r *TokenRepository) Consume(tokenID uuid.UUID, account *models.Account, membership *models.Membership) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		result := tx.Model(&models.PostSaleToken{}).
			Where("id = ? AND used_at IS NULL AND expires_at > ?", tokenID, now).
			Updates(map[string]interface{}{
				"used_at":    now,
				"used_by":    membership.UserID,
				"account_id": account.ID,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to mark token used: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrTokenConsumed
		}
		if err := tx.Create(account).Error; err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}
		membership.AccountID = account.ID
		if err := tx.Create(membership).Error; err != nil {
			return fmt.Errorf("failed to create owner membership: %w", err)
		}
		return nil
	})
}

// ErrTokenConsumed signals that the token was no longer consumable when the
// consume transaction ran (used, revoked or expired in the meantime).
var ErrTokenConsumed = errors.New("token no longer consumable")
