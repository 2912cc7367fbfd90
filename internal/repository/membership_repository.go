package repository

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"account-access-service/internal/models"
)

// MembershipRepository handles membership persistence
type MembershipRepository struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// GetMembership finds the membership of a user in an account regardless of
// status. Returns (nil, nil) when none exists.
func (r *MembershipRepository) GetMembership(accountID, userID uuid.UUID) (*models.Membership, error) {
	var membership models.Membership
	err := r.db.Where("account_id = ? AND user_id = ?", accountID, userID).First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &membership, nil
}

// GetByID returns (nil, nil) when the membership does not exist.
func (r *MembershipRepository) GetByID(id uuid.UUID) (*models.Membership, error) {
	var membership models.Membership
	err := r.db.Where("id = ?", id).First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &membership, nil
}

func (r *MembershipRepository) Create(membership *models.Membership) error {
	if err := r.db.Create(membership).Error; err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

// ListMembers returns all memberships of an account, active first.
func (r *MembershipRepository) ListMembers(accountID uuid.UUID) ([]models.Membership, error) {
	var memberships []models.Membership
	err := r.db.Where("account_id = ?", accountID).
		Order("status ASC, created_at ASC").
		Find(&memberships).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return memberships, nil
}

// otherActiveOwnerExists guards an update against stripping the sole active
// owner: the row is only touched when it is not an owner row, or another
// active owner of the same account exists. Evaluated inside the UPDATE so
// two concurrent demotions cannot both pass a stale count.
const otherActiveOwnerExists = "role <> ? OR (SELECT count(*) FROM account_memberships o WHERE o.account_id = ? AND o.role = ? AND o.status = ? AND o.id <> ?) > 0"

// UpdateRole changes a membership's role. Demotions away from owner carry
// the last-owner guard in the statement itself; zero rows affected means the
// guard refused the change.
func (r *MembershipRepository) UpdateRole(id, accountID uuid.UUID, role string) (bool, error) {
	query := r.db.Model(&models.Membership{}).Where("id = ?", id)
	if role != models.RoleOwner {
		query = query.Where(otherActiveOwnerExists,
			models.RoleOwner, accountID, models.RoleOwner, models.MemberStatusActive, id)
	}
	result := query.Updates(map[string]interface{}{"role": role})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update role: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Deactivate marks a membership inactive. The last-owner guard rides in the
// same conditional update; already-inactive and guard-refused rows both come
// back as zero rows affected.
func (r *MembershipRepository) Deactivate(id, accountID uuid.UUID) (bool, error) {
	result := r.db.Model(&models.Membership{}).
		Where("id = ? AND status = ?", id, models.MemberStatusActive).
		Where(otherActiveOwnerExists,
			models.RoleOwner, accountID, models.RoleOwner, models.MemberStatusActive, id).
		Updates(map[string]interface{}{"status": models.MemberStatusInactive})
	if result.Error != nil {
		return false, fmt.Errorf("failed to deactivate membership: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListAccountSummaries joins a user's active memberships with their
// accounts for the account-switcher listing.
func (r *MembershipRepository) ListAccountSummaries(userID uuid.UUID) ([]models.AccountSummary, error) {
	var summaries []models.AccountSummary
	err := r.db.Table("account_memberships").
		Select("accounts.id AS account_id, accounts.name, accounts.slug, accounts.status, account_memberships.role").
		Joins("JOIN accounts ON accounts.id = account_memberships.account_id").
		Where("account_memberships.user_id = ? AND account_memberships.status = ?",
			userID, models.MemberStatusActive).
		Order("accounts.name ASC").
		Scan(&summaries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list account summaries: %w", err)
	}
	for i := range summaries {
		summaries[i].Status = models.NormalizeAccountStatus(summaries[i].Status)
		summaries[i].Role = models.NormalizeRole(summaries[i].Role)
	}
	return summaries, nil
}
