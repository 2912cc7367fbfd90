package repository

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"account-access-service/internal/models"
)

// ActivityRepository records audit rows for denied decisions and token
// lifecycle transitions. Writes are best-effort; callers log failures and
// keep going.
type ActivityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

func (r *ActivityRepository) Record(entry *models.ActivityLog) error {
	if err := r.db.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// ListByAccount returns the most recent entries for an account.
func (r *ActivityRepository) ListByAccount(accountID uuid.UUID, limit int) ([]models.ActivityLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var entries []models.ActivityLog
	err := r.db.Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	return entries, nil
}
