package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"account-access-service/internal/metrics"
	"account-access-service/internal/models"
	natsclient "account-access-service/internal/nats"
)

// AccountStore is the account persistence surface the engine needs.
type AccountStore interface {
	GetByKey(key string) (*models.Account, error)
	GetByID(id uuid.UUID) (*models.Account, error)
	GetAccessView(accountID, userID uuid.UUID) (*models.AccessView, error)
}

// MembershipStore is the membership persistence surface the engine needs.
// UpdateRole and Deactivate carry the last-owner guard inside the store's
// conditional update; false without error means the guard refused.
type MembershipStore interface {
	GetMembership(accountID, userID uuid.UUID) (*models.Membership, error)
	GetByID(id uuid.UUID) (*models.Membership, error)
	UpdateRole(id, accountID uuid.UUID, role string) (bool, error)
	Deactivate(id, accountID uuid.UUID) (bool, error)
	ListMembers(accountID uuid.UUID) ([]models.Membership, error)
	ListAccountSummaries(userID uuid.UUID) ([]models.AccountSummary, error)
}

// ActivityStore records and lists audit entries. Record failures are
// logged, never fatal.
type ActivityStore interface {
	Record(entry *models.ActivityLog) error
	ListByAccount(accountID uuid.UUID, limit int) ([]models.ActivityLog, error)
}

// SummaryCache is the advisory listing cache. A nil cache is valid.
type SummaryCache interface {
	GetAccountSummaries(ctx context.Context, userID string) ([]models.AccountSummary, error)
	SetAccountSummaries(ctx context.Context, userID string, summaries []models.AccountSummary) error
	InvalidateAccountSummaries(ctx context.Context, userID string)
}

// MemberEventPublisher publishes membership lifecycle events.
type MemberEventPublisher interface {
	PublishMemberEvent(ctx context.Context, eventType string, event *natsclient.MemberEvent) error
}

// AccessContext is the granted view of one user inside one account.
type AccessContext struct {
	Account    *models.Account        `json:"account"`
	Membership *models.Membership     `json:"membership"`
	Role       string                 `json:"role"`
	Limits     models.EffectiveLimits `json:"limits"`
}

// AccessService decides whether a user may act inside an account.
type AccessService struct {
	accounts    AccountStore
	memberships MembershipStore
	activity    ActivityStore
	cache       SummaryCache
	events      MemberEventPublisher
	metrics     *metrics.Metrics
	logger      *logrus.Entry
}

func NewAccessService(
	accounts AccountStore,
	memberships MembershipStore,
	activity ActivityStore,
	cache SummaryCache,
	events MemberEventPublisher,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *AccessService {
	return &AccessService{
		accounts:    accounts,
		memberships: memberships,
		activity:    activity,
		cache:       cache,
		events:      events,
		metrics:     m,
		logger:      logger.WithField("component", "access_service"),
	}
}

// GetAccessContext resolves the caller's standing inside the account named
// by tenantKey. Denials come back as *AccessError; any other error is an
// infrastructure failure. A denormalized access-view row, when present,
// decides the outcome verbatim and no derivation runs.
func (s *AccessService) GetAccessContext(ctx context.Context, userID uuid.UUID, tenantKey string) (*AccessContext, error) {
	start := time.Now()

	if tenantKey == "" {
		return nil, s.deny(start, userID, nil, AccessCodeUnresolvedTenant, "no tenant in request", "")
	}

	account, err := s.accounts.GetByKey(tenantKey)
	if err != nil {
		return nil, fmt.Errorf("access lookup failed: %w", err)
	}
	if account == nil {
		// Same external message as every other denial so callers cannot
		// probe which accounts exist.
		return nil, s.deny(start, userID, nil, AccessCodeUnresolvedTenant, "account_missing", "")
	}

	view, err := s.accounts.GetAccessView(account.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("access view lookup failed: %w", err)
	}
	if view != nil {
		if !view.Allow {
			code := AccessCodeForbiddenAccount
			if view.Reason == "member_inactive" || view.Reason == "account_blocked" {
				code = AccessCodeInactiveMember
			}
			return nil, s.deny(start, userID, &account.ID, code, "view:"+view.Reason, view.Role)
		}
		s.allow(start, userID, account.ID, view.Role, "view")
		return &AccessContext{
			Account: account,
			Role:    view.Role,
			Limits:  account.Limits(),
		}, nil
	}

	membership, err := s.memberships.GetMembership(account.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("membership lookup failed: %w", err)
	}
	if membership == nil {
		return nil, s.deny(start, userID, &account.ID, AccessCodeForbiddenAccount, "no_membership", "")
	}
	if membership.Status != models.MemberStatusActive {
		return nil, s.deny(start, userID, &account.ID, AccessCodeInactiveMember, "member_inactive", membership.Role)
	}
	// pending_setup stays reachable so the owner can finish setup;
	// inactive and suspended accounts shut everyone out, owners included.
	if account.Status == models.AccountStatusInactive || account.Status == models.AccountStatusSuspended {
		return nil, s.deny(start, userID, &account.ID, AccessCodeInactiveMember, "account_"+account.Status, membership.Role)
	}

	s.allow(start, userID, account.ID, membership.Role, "membership")
	return &AccessContext{
		Account:    account,
		Membership: membership,
		Role:       membership.Role,
		Limits:     account.Limits(),
	}, nil
}

// RequireRole checks the context's role against a minimum by weight.
func (s *AccessService) RequireRole(accessCtx *AccessContext, minRole string) error {
	if accessCtx == nil {
		return NewAccessError(AccessCodeForbiddenAccount, "no access context")
	}
	if !models.RoleAtLeast(accessCtx.Role, minRole) {
		s.logDecision(logrus.Fields{
			"event":      "access.role_check",
			"decision":   "deny",
			"reason":     "insufficient_role",
			"role":       accessCtx.Role,
			"account_id": accessCtx.Account.ID.String(),
		})
		return NewAccessError(AccessCodeForbiddenAccount, "insufficient role")
	}
	return nil
}

// ChangeRole updates a member's role. Demoting the last active owner is
// refused with NO_OWNER_GUARD; the guard lives inside the store's
// conditional update, so two concurrent demotions cannot both slip past a
// stale owner count.
func (s *AccessService) ChangeRole(ctx context.Context, accessCtx *AccessContext, membershipID uuid.UUID, newRole string) error {
	if err := s.RequireRole(accessCtx, models.RoleAdmin); err != nil {
		return err
	}
	newRole = models.NormalizeRole(newRole)

	target, err := s.memberships.GetByID(membershipID)
	if err != nil {
		return fmt.Errorf("failed to load membership: %w", err)
	}
	if target == nil || target.AccountID != accessCtx.Account.ID {
		return NewAccessError(AccessCodeForbiddenAccount, "membership not found")
	}
	// Only owners may mint or demote owners.
	if (target.Role == models.RoleOwner || newRole == models.RoleOwner) && accessCtx.Role != models.RoleOwner {
		return NewAccessError(AccessCodeForbiddenAccount, "only owners can change owner roles")
	}

	changed, err := s.memberships.UpdateRole(membershipID, target.AccountID, newRole)
	if err != nil {
		return fmt.Errorf("failed to change role: %w", err)
	}
	if !changed {
		return s.ownerGuard(target)
	}
	s.cache.InvalidateAccountSummaries(ctx, target.UserID.String())
	return nil
}

// DeactivateMember marks a membership inactive. The last active owner
// cannot be deactivated. Deactivating an already-inactive member succeeds.
func (s *AccessService) DeactivateMember(ctx context.Context, accessCtx *AccessContext, membershipID uuid.UUID) error {
	if err := s.RequireRole(accessCtx, models.RoleAdmin); err != nil {
		return err
	}

	target, err := s.memberships.GetByID(membershipID)
	if err != nil {
		return fmt.Errorf("failed to load membership: %w", err)
	}
	if target == nil || target.AccountID != accessCtx.Account.ID {
		return NewAccessError(AccessCodeForbiddenAccount, "membership not found")
	}
	if target.Status != models.MemberStatusActive {
		return nil
	}
	if target.Role == models.RoleOwner && accessCtx.Role != models.RoleOwner {
		return NewAccessError(AccessCodeForbiddenAccount, "only owners can deactivate owners")
	}

	changed, err := s.memberships.Deactivate(membershipID, target.AccountID)
	if err != nil {
		return fmt.Errorf("failed to deactivate member: %w", err)
	}
	if !changed {
		// The row was active at read time, so zero rows affected means the
		// conditional update's owner guard refused (or a concurrent
		// deactivation of the same owner row already settled it, which the
		// guard also refuses). Non-owner rows losing a benign race just
		// report success.
		if target.Role == models.RoleOwner {
			return s.ownerGuard(target)
		}
		return nil
	}
	s.cache.InvalidateAccountSummaries(ctx, target.UserID.String())
	if err := s.events.PublishMemberEvent(ctx, natsclient.EventMemberDeactivated, &natsclient.MemberEvent{
		AccountID: target.AccountID.String(),
		UserID:    target.UserID.String(),
		Role:      target.Role,
	}); err != nil {
		s.logger.WithError(err).Warn("Failed to publish member deactivated event")
	}
	return nil
}

// ListMembers returns the account's memberships.
func (s *AccessService) ListMembers(accessCtx *AccessContext) ([]models.Membership, error) {
	if err := s.RequireRole(accessCtx, models.RoleViewer); err != nil {
		return nil, err
	}
	return s.memberships.ListMembers(accessCtx.Account.ID)
}

// ListAccounts returns the user's account summaries, served from the
// advisory cache when warm. Cache failures fall through to the database.
func (s *AccessService) ListAccounts(ctx context.Context, userID uuid.UUID) ([]models.AccountSummary, error) {
	if cached, err := s.cache.GetAccountSummaries(ctx, userID.String()); err == nil && cached != nil {
		return cached, nil
	} else if err != nil {
		s.logger.WithError(err).Debug("Summary cache read failed")
	}

	summaries, err := s.memberships.ListAccountSummaries(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	if err := s.cache.SetAccountSummaries(ctx, userID.String(), summaries); err != nil {
		s.logger.WithError(err).Debug("Summary cache write failed")
	}
	return summaries, nil
}

// ListActivity returns the account's recent audit trail, newest first.
func (s *AccessService) ListActivity(accessCtx *AccessContext, limit int) ([]models.ActivityLog, error) {
	if err := s.RequireRole(accessCtx, models.RoleAdmin); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	entries, err := s.activity.ListByAccount(accessCtx.Account.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	return entries, nil
}

// ownerGuard reports a conditional update refused by the last-owner clause.
func (s *AccessService) ownerGuard(target *models.Membership) error {
	s.logDecision(logrus.Fields{
		"event":      "access.owner_guard",
		"decision":   "deny",
		"reason":     "last_owner",
		"account_id": target.AccountID.String(),
		"user_id":    target.UserID.String(),
	})
	return NewAccessError(AccessCodeNoOwnerGuard, "account must keep at least one active owner")
}

func (s *AccessService) allow(start time.Time, userID, accountID uuid.UUID, role, source string) {
	s.metrics.AccessDecisions.WithLabelValues("allow", source).Inc()
	s.logDecision(logrus.Fields{
		"event":      "access.decision",
		"scope":      source,
		"decision":   "allow",
		"user_id":    userID.String(),
		"account_id": accountID.String(),
		"role":       role,
		"latency_ms": time.Since(start).Milliseconds(),
	})
}

func (s *AccessService) deny(start time.Time, userID uuid.UUID, accountID *uuid.UUID, code, reason, role string) *AccessError {
	s.metrics.AccessDecisions.WithLabelValues("deny", reason).Inc()

	fields := logrus.Fields{
		"event":      "access.decision",
		"decision":   "deny",
		"reason":     reason,
		"code":       code,
		"user_id":    userID.String(),
		"latency_ms": time.Since(start).Milliseconds(),
	}
	if accountID != nil {
		fields["account_id"] = accountID.String()
	}
	if role != "" {
		fields["role"] = role
	}
	s.logDecision(fields)

	entry := &models.ActivityLog{
		UserID:    &userID,
		AccountID: accountID,
		Event:     "access.denied",
		Details:   models.JSONB{"code": code, "reason": reason},
	}
	if err := s.activity.Record(entry); err != nil {
		s.logger.WithError(err).Warn("Failed to record denial")
	}

	// One generic message for every denial; the internal reason stays in
	// logs and the activity trail only.
	return NewAccessError(code, "access denied")
}

func (s *AccessService) logDecision(fields logrus.Fields) {
	s.logger.WithFields(fields).Info("Access decision")
}
