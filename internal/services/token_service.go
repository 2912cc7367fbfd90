package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"account-access-service/internal/config"
	"account-access-service/internal/metrics"
	"account-access-service/internal/models"
	natsclient "account-access-service/internal/nats"
	"account-access-service/internal/repository"
)

// TokenStore is the token persistence surface the lifecycle needs.
type TokenStore interface {
	Create(token *models.PostSaleToken) error
	GetByID(id uuid.UUID) (*models.PostSaleToken, error)
	CountByActorSince(actorID uuid.UUID, since time.Time) (int64, error)
	CountByEmailSince(email string, since time.Time) (int64, error)
	Revoke(id uuid.UUID) (bool, error)
	Consume(tokenID uuid.UUID, account *models.Account, membership *models.Membership) error
}

// SlugChecker verifies slug availability during provisioning.
type SlugChecker interface {
	SlugExists(slug string) (bool, error)
}

// TokenEventPublisher publishes token and account lifecycle events.
type TokenEventPublisher interface {
	PublishTokenEvent(ctx context.Context, eventType string, event *natsclient.TokenEvent) error
	PublishAccountEvent(ctx context.Context, eventType string, event *natsclient.AccountEvent) error
}

// TokenService manages the post-sale token lifecycle.
type TokenService struct {
	tokens   TokenStore
	slugs    SlugChecker
	activity ActivityStore
	events   TokenEventPublisher
	metrics  *metrics.Metrics
	cfg      config.TokenConfig
	logger   *logrus.Entry
	now      func() time.Time
}

func NewTokenService(
	tokens TokenStore,
	slugs SlugChecker,
	activity ActivityStore,
	events TokenEventPublisher,
	m *metrics.Metrics,
	cfg config.TokenConfig,
	logger *logrus.Logger,
) *TokenService {
	return &TokenService{
		tokens:   tokens,
		slugs:    slugs,
		activity: activity,
		events:   events,
		metrics:  m,
		cfg:      cfg,
		logger:   logger.WithField("component", "token_service"),
		now:      time.Now,
	}
}

// GeneratedToken carries the one-time plaintext secret alongside the stored
// token. The secret exists only in this response.
type GeneratedToken struct {
	Token  *models.PostSaleToken `json:"token"`
	Secret string                `json:"secret"`
}

// Generate issues a new post-sale token after checking three independent
// rate limits. Each limit is queried on its own and reports its own
// violation, so one noisy actor cannot mask an email-level abuse signal.
func (s *TokenService) Generate(ctx context.Context, actorID uuid.UUID, actorRole, email, accountName, contractRef string) (*GeneratedToken, error) {
	start := s.now()
	actorRole = models.NormalizeRole(actorRole)
	email = strings.ToLower(strings.TrimSpace(email))

	if !models.RoleAtLeast(actorRole, models.RoleAdmin) {
		s.metrics.TokenOperations.WithLabelValues("generate", "forbidden").Inc()
		return nil, NewAccessError(AccessCodeForbiddenAccount, "insufficient role to issue tokens")
	}

	// Both daily limits count over a trailing 24h window, not the calendar
	// day, so a burst just before midnight cannot reset at 00:00.
	dayStart := start.Add(-24 * time.Hour)
	burstStart := start.Add(-time.Duration(s.cfg.BurstWindowMins) * time.Minute)

	actorLimit := int64(s.cfg.AdminDailyLimit)
	if actorRole == models.RoleOwner {
		actorLimit = int64(s.cfg.OwnerDailyLimit)
	}

	actorCount, err := s.tokens.CountByActorSince(actorID, dayStart)
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	if actorCount >= actorLimit {
		return nil, s.rateLimited(actorID, email, RateScopePerActorDay, actorLimit, actorCount)
	}

	emailCount, err := s.tokens.CountByEmailSince(email, dayStart)
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	if emailCount >= int64(s.cfg.EmailDailyLimit) {
		return nil, s.rateLimited(actorID, email, RateScopePerEmailDay, int64(s.cfg.EmailDailyLimit), emailCount)
	}

	burstCount, err := s.tokens.CountByActorSince(actorID, burstStart)
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	if burstCount >= int64(s.cfg.BurstLimit) {
		return nil, s.rateLimited(actorID, email, RateScopeBurst, int64(s.cfg.BurstLimit), burstCount)
	}

	secret, secretHash, err := newTokenSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token secret: %w", err)
	}

	token := &models.PostSaleToken{
		SecretHash:  secretHash,
		Email:       email,
		AccountName: strings.TrimSpace(accountName),
		ContractRef: strings.TrimSpace(contractRef),
		Role:        models.RoleOwner,
		CreatedBy:   actorID,
		ExpiresAt:   start.Add(time.Duration(s.cfg.ExpiryDays) * 24 * time.Hour),
	}
	if err := s.tokens.Create(token); err != nil {
		s.metrics.TokenOperations.WithLabelValues("generate", "error").Inc()
		return nil, fmt.Errorf("failed to create token: %w", err)
	}

	s.metrics.TokenOperations.WithLabelValues("generate", "ok").Inc()
	s.logger.WithFields(logrus.Fields{
		"event":      "token.generated",
		"token_id":   token.ID.String(),
		"user_id":    actorID.String(),
		"email":      email,
		"latency_ms": s.now().Sub(start).Milliseconds(),
	}).Info("Post-sale token generated")

	if err := s.events.PublishTokenEvent(ctx, natsclient.EventTokenGenerated, &natsclient.TokenEvent{
		TokenID:   token.ID.String(),
		Email:     email,
		CreatedBy: actorID.String(),
	}); err != nil {
		s.logger.WithError(err).Warn("Failed to publish token generated event")
	}

	return &GeneratedToken{Token: token, Secret: secret}, nil
}

// Validate checks a token's standing without consuming it. A used token
// reports already_used even when it is also past its expiry; a missing
// token and a wrong secret both report not_found, never distinguished.
func (s *TokenService) Validate(id uuid.UUID, secret string) (*models.PostSaleToken, error) {
	token, err := s.tokens.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("token lookup failed: %w", err)
	}
	if token == nil || !secretMatches(secret, token.SecretHash) {
		return nil, &TokenStatusError{Status: "not_found"}
	}
	if token.UsedAt != nil {
		return nil, &TokenStatusError{Status: "already_used"}
	}
	if !token.ExpiresAt.After(s.now()) {
		return nil, &TokenStatusError{Status: "expired"}
	}
	return token, nil
}

// Consume atomically burns the token and provisions its account with an
// owner membership for userID. A concurrent consume of the same token
// fails with TokenStatusError and leaves nothing behind.
func (s *TokenService) Consume(ctx context.Context, id uuid.UUID, secret string, userID uuid.UUID) (*models.Account, error) {
	token, err := s.Validate(id, secret)
	if err != nil {
		s.metrics.TokenOperations.WithLabelValues("consume", "invalid").Inc()
		return nil, err
	}

	slug, err := s.provisionSlug()
	if err != nil {
		return nil, err
	}

	name := token.AccountName
	if name == "" {
		name = "Conta " + slug
	}
	account := &models.Account{
		ID:          uuid.New(),
		Name:        name,
		Slug:        slug,
		Subdomain:   slug,
		Status:      models.AccountStatusPendingSetup,
		Plan:        models.PlanFree,
		OwnerUserID: userID,
	}
	membership := &models.Membership{
		UserID: userID,
		Role:   token.Role,
		Status: models.MemberStatusActive,
	}

	if err := s.tokens.Consume(token.ID, account, membership); err != nil {
		s.metrics.TokenOperations.WithLabelValues("consume", "conflict").Inc()
		if errors.Is(err, repository.ErrTokenConsumed) {
			return nil, &TokenStatusError{Status: "already_used"}
		}
		return nil, err
	}

	s.metrics.TokenOperations.WithLabelValues("consume", "ok").Inc()
	s.logger.WithFields(logrus.Fields{
		"event":      "token.consumed",
		"token_id":   token.ID.String(),
		"user_id":    userID.String(),
		"account_id": account.ID.String(),
	}).Info("Post-sale token consumed")

	if err := s.events.PublishAccountEvent(ctx, natsclient.EventAccountCreated, &natsclient.AccountEvent{
		AccountID: account.ID.String(),
		Slug:      account.Slug,
		Status:    account.Status,
	}); err != nil {
		s.logger.WithError(err).Warn("Failed to publish account created event")
	}

	return account, nil
}

// Revoke expires a token immediately. Revoking a used, expired or already
// revoked token is a no-op that still succeeds.
func (s *TokenService) Revoke(ctx context.Context, id uuid.UUID) error {
	changed, err := s.tokens.Revoke(id)
	if err != nil {
		s.metrics.TokenOperations.WithLabelValues("revoke", "error").Inc()
		return err
	}
	if !changed {
		s.metrics.TokenOperations.WithLabelValues("revoke", "noop").Inc()
		s.logger.WithFields(logrus.Fields{
			"event":    "token.revoke_noop",
			"token_id": id.String(),
		}).Info("Token already settled, revoke changed nothing")
		return nil
	}

	s.metrics.TokenOperations.WithLabelValues("revoke", "ok").Inc()
	s.logger.WithFields(logrus.Fields{
		"event":    "token.revoked",
		"token_id": id.String(),
	}).Info("Post-sale token revoked")

	if err := s.events.PublishTokenEvent(ctx, natsclient.EventTokenRevoked, &natsclient.TokenEvent{
		TokenID: id.String(),
	}); err != nil {
		s.logger.WithError(err).Warn("Failed to publish token revoked event")
	}
	return nil
}

func (s *TokenService) rateLimited(actorID uuid.UUID, email, scope string, limit, count int64) error {
	s.metrics.TokenOperations.WithLabelValues("generate", "rate_limited").Inc()
	s.logger.WithFields(logrus.Fields{
		"event":        "rate_limit_exceeded",
		"scope_detail": scope,
		"user_id":      actorID.String(),
		"email":        email,
		"limit":        limit,
		"count":        count,
	}).Warn("Token generation rate limited")

	actorRef := actorID
	if err := s.activity.Record(&models.ActivityLog{
		UserID:  &actorRef,
		Event:   "rate_limit_exceeded",
		Details: models.JSONB{"scope_detail": scope, "limit": limit, "count": count},
	}); err != nil {
		s.logger.WithError(err).Warn("Failed to record rate limit hit")
	}

	return &RateLimitError{ScopeDetail: scope, Limit: limit, Count: count}
}

// provisionSlug generates an unclaimed acc-xxxxxxxx slug.
func (s *TokenService) provisionSlug() (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		slug := "acc-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:10]
		exists, err := s.slugs.SlugExists(slug)
		if err != nil {
			return "", fmt.Errorf("slug check failed: %w", err)
		}
		if !exists {
			return slug, nil
		}
	}
	return "", fmt.Errorf("could not find a free slug")
}

func newTokenSecret() (secret, hash string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	secret = base64.RawURLEncoding.EncodeToString(raw)
	return secret, hashSecret(secret), nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func secretMatches(secret, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(hashSecret(secret)), []byte(storedHash)) == 1
}
