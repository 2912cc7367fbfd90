package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"account-access-service/internal/models"
)

// TokenRedeemer is the slice of the token lifecycle the saga drives.
type TokenRedeemer interface {
	Validate(id uuid.UUID, secret string) (*models.PostSaleToken, error)
	Consume(ctx context.Context, id uuid.UUID, secret string, userID uuid.UUID) (*models.Account, error)
}

// Saga failure reasons. Each step owns its reasons; a reason pins the
// failure to exactly one step.
const (
	ReasonTokenInvalid           = "token_invalid"
	ReasonEmailAlreadyExists     = "email_already_exists"
	ReasonIdentityCreationFailed = "identity_creation_failed"
	ReasonAccountCreationFailed  = "account_creation_failed"
	ReasonSessionFailed          = "session_establishment_failed"
	ReasonAccountNotFound        = "account_not_found"
)

// Result outcome tags
const (
	OutcomeRedirect = "redirect"
	OutcomeContinue = "continue"
)

// OnboardingResult is the tagged outcome of a redemption attempt. Business
// failures are values, not errors; an error return means infrastructure
// broke mid-flight.
type OnboardingResult struct {
	Outcome  string       `json:"outcome"`
	Redirect string       `json:"redirect,omitempty"`
	Reason   string       `json:"reason,omitempty"`
	Step     int          `json:"step,omitempty"`
	Session  *SessionPair `json:"session,omitempty"`
}

// RedeemRequest carries the user-supplied redemption fields.
type RedeemRequest struct {
	TokenID  uuid.UUID
	Secret   string
	Name     string
	Password string
}

// OnboardingService runs the post-sale redemption saga.
type OnboardingService struct {
	tokens   TokenRedeemer
	identity IdentityProvider
	sessions SessionIssuer
	accounts AccountStore
	logger   *logrus.Entry
}

func NewOnboardingService(
	tokens TokenRedeemer,
	identity IdentityProvider,
	sessions SessionIssuer,
	accounts AccountStore,
	logger *logrus.Logger,
) *OnboardingService {
	return &OnboardingService{
		tokens:   tokens,
		identity: identity,
		sessions: sessions,
		accounts: accounts,
		logger:   logger.WithField("component", "onboarding_service"),
	}
}

// RedeemToken runs the five-step onboarding saga: validate the token,
// create the identity, consume the token into an account, establish a
// session, then load the account for the redirect. Steps run in order and
// there is no compensation; a step that fails simply stops the flow with
// its own reason.
func (s *OnboardingService) RedeemToken(ctx context.Context, req RedeemRequest) (*OnboardingResult, error) {
	start := time.Now()

	// Step 1: token must be live before anything is created.
	token, err := s.tokens.Validate(req.TokenID, req.Secret)
	if err != nil {
		var tsErr *TokenStatusError
		if errors.As(err, &tsErr) {
			return s.failStep(start, 1, ReasonTokenInvalid, req.TokenID, nil), nil
		}
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	// Step 2: create the identity. A taken email is its own reason so
	// the frontend can steer the user to login instead of retrying.
	user, err := s.identity.CreateUser(token.Email, req.Name, req.Password)
	if err != nil {
		if isEmailTaken(err) {
			return s.failStep(start, 2, ReasonEmailAlreadyExists, req.TokenID, nil), nil
		}
		s.logger.WithError(err).WithField("token_id", req.TokenID.String()).Error("Identity creation failed")
		return s.failStep(start, 2, ReasonIdentityCreationFailed, req.TokenID, nil), nil
	}

	// Step 3: burn the token and provision the account atomically.
	account, err := s.tokens.Consume(ctx, req.TokenID, req.Secret, user.ID)
	if err != nil {
		// The identity from step 2 stays; the user can redeem another
		// token later or be attached manually.
		s.logger.WithError(err).WithFields(logrus.Fields{
			"token_id": req.TokenID.String(),
			"user_id":  user.ID.String(),
		}).Error("Account provisioning failed, identity kept")
		return s.failStep(start, 3, ReasonAccountCreationFailed, req.TokenID, &user.ID), nil
	}

	// Step 4: establish the session.
	session, err := s.sessions.Establish(user)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":    user.ID.String(),
			"account_id": account.ID.String(),
		}).Error("Session establishment failed after provisioning")
		return s.failStep(start, 4, ReasonSessionFailed, req.TokenID, &user.ID), nil
	}

	// Step 5: reload the account for the redirect target.
	loaded, err := s.accounts.GetByID(account.ID)
	if err != nil || loaded == nil {
		if err != nil {
			s.logger.WithError(err).WithField("account_id", account.ID.String()).Error("Redirect account load failed")
		}
		return s.failStep(start, 5, ReasonAccountNotFound, req.TokenID, &user.ID), nil
	}

	s.logger.WithFields(logrus.Fields{
		"event":      "onboarding.completed",
		"token_id":   req.TokenID.String(),
		"user_id":    user.ID.String(),
		"account_id": loaded.ID.String(),
		"latency_ms": time.Since(start).Milliseconds(),
	}).Info("Onboarding completed")

	return &OnboardingResult{
		Outcome:  OutcomeRedirect,
		Redirect: "/a/" + loaded.Slug,
		Session:  session,
	}, nil
}

// isEmailTaken also recognizes duplicate-identity errors from external
// providers that do not surface ErrEmailTaken.
func isEmailTaken(err error) bool {
	if errors.Is(err, ErrEmailTaken) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already") || strings.Contains(msg, "duplicate")
}

func (s *OnboardingService) failStep(start time.Time, step int, reason string, tokenID uuid.UUID, userID *uuid.UUID) *OnboardingResult {
	fields := logrus.Fields{
		"event":      "onboarding.step_failed",
		"step":       step,
		"reason":     reason,
		"token_id":   tokenID.String(),
		"latency_ms": time.Since(start).Milliseconds(),
	}
	if userID != nil {
		fields["user_id"] = userID.String()
	}
	s.logger.WithFields(fields).Warn("Onboarding stopped")

	return &OnboardingResult{Outcome: OutcomeContinue, Reason: reason, Step: step}
}
