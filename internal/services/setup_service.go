package services

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"account-access-service/internal/models"
	natsclient "account-access-service/internal/nats"
)

// Channels a setup may choose for notifications.
const (
	ChannelEmail    = "email"
	ChannelWhatsapp = "whatsapp"
)

// defaultNamePattern matches names left over from provisioning, which
// always read "Conta acc-<suffix>".
var defaultNamePattern = regexp.MustCompile(`(?i)^conta\s+acc-[a-z0-9]+$`)

// nonDigitPattern strips phone formatting characters before validation.
var nonDigitPattern = regexp.MustCompile(`[+\s\-().]`)

// spacePattern collapses interior whitespace for the default-name check.
var spacePattern = regexp.MustCompile(`\s+`)

// SetupStore is the account persistence surface setup completion needs.
type SetupStore interface {
	GetByID(id uuid.UUID) (*models.Account, error)
	UpdateName(id uuid.UUID, name string) error
	UpsertProfile(profile *models.AccountProfile) error
	ActivateFromPendingSetup(id uuid.UUID) (bool, error)
}

// AccountEventPublisher publishes account lifecycle events.
type AccountEventPublisher interface {
	PublishAccountEvent(ctx context.Context, eventType string, event *natsclient.AccountEvent) error
}

// SetupRequest carries the setup-completion fields as submitted.
type SetupRequest struct {
	Name             string `json:"name"`
	PreferredChannel string `json:"preferred_channel"`
	WhatsappNumber   string `json:"whatsapp_number"`
	SiteURL          string `json:"site_url"`
}

// SetupResult reports the validated fields and whether the account
// transitioned to active on this call.
type SetupResult struct {
	Account   *models.Account        `json:"account"`
	Profile   *models.AccountProfile `json:"profile"`
	Activated bool                   `json:"activated"`
}

// SetupService validates setup completion and drives the
// pending_setup -> active transition.
type SetupService struct {
	accounts SetupStore
	events   AccountEventPublisher
	logger   *logrus.Entry
}

func NewSetupService(accounts SetupStore, events AccountEventPublisher, logger *logrus.Logger) *SetupService {
	return &SetupService{
		accounts: accounts,
		events:   events,
		logger:   logger.WithField("component", "setup_service"),
	}
}

// CompleteSetup validates every field, reports all failures together, and
// on success persists the profile and conditionally activates the account.
// Repeat calls on an already-active account just update the profile.
func (s *SetupService) CompleteSetup(ctx context.Context, accountID uuid.UUID, req SetupRequest) (*SetupResult, error) {
	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil {
		return nil, NewAccessError(AccessCodeForbiddenAccount, "account not found")
	}

	fields, verrs := validateSetup(account, req)
	if len(verrs) > 0 {
		return nil, verrs
	}

	if fields.Name != account.Name {
		if err := s.accounts.UpdateName(accountID, fields.Name); err != nil {
			return nil, err
		}
		account.Name = fields.Name
	}

	profile := &models.AccountProfile{
		AccountID:        accountID,
		PreferredChannel: fields.PreferredChannel,
		WhatsappNumber:   fields.WhatsappNumber,
		SiteURL:          fields.SiteURL,
	}
	if err := s.accounts.UpsertProfile(profile); err != nil {
		return nil, err
	}

	activated, err := s.accounts.ActivateFromPendingSetup(accountID)
	if err != nil {
		return nil, err
	}
	if activated {
		account.Status = models.AccountStatusActive
		s.logger.WithFields(logrus.Fields{
			"event":      "account.activated",
			"account_id": accountID.String(),
			"slug":       account.Slug,
		}).Info("Account setup completed")

		if err := s.events.PublishAccountEvent(ctx, natsclient.EventAccountActivated, &natsclient.AccountEvent{
			AccountID: accountID.String(),
			Slug:      account.Slug,
			Status:    models.AccountStatusActive,
		}); err != nil {
			s.logger.WithError(err).Warn("Failed to publish account activated event")
		}
	}

	return &SetupResult{Account: account, Profile: profile, Activated: activated}, nil
}

// validateSetup checks every field and returns the normalized values
// together with the full failure list.
func validateSetup(account *models.Account, req SetupRequest) (SetupRequest, ValidationErrors) {
	var verrs ValidationErrors
	out := SetupRequest{}

	name := strings.TrimSpace(req.Name)
	collapsed := spacePattern.ReplaceAllString(name, " ")
	switch {
	case name == "":
		verrs = append(verrs, ValidationError{Field: "name", Code: "required", Message: "name is required"})
	case strings.EqualFold(collapsed, "Conta "+account.Subdomain) || defaultNamePattern.MatchString(collapsed):
		verrs = append(verrs, ValidationError{Field: "name", Code: "name_is_default", Message: "name still carries the provisioning default"})
	default:
		out.Name = name
	}

	channel := strings.ToLower(strings.TrimSpace(req.PreferredChannel))
	switch channel {
	case "":
		out.PreferredChannel = ChannelEmail
	case ChannelEmail, ChannelWhatsapp:
		out.PreferredChannel = channel
	default:
		verrs = append(verrs, ValidationError{Field: "preferred_channel", Code: "invalid_channel", Message: "preferred_channel must be email or whatsapp"})
	}

	if out.PreferredChannel == ChannelWhatsapp {
		number := nonDigitPattern.ReplaceAllString(strings.TrimSpace(req.WhatsappNumber), "")
		switch {
		case number == "":
			verrs = append(verrs, ValidationError{Field: "whatsapp_number", Code: "required", Message: "whatsapp_number is required for the whatsapp channel"})
		case !isDigits(number) || len(number) < 10 || len(number) > 15:
			verrs = append(verrs, ValidationError{Field: "whatsapp_number", Code: "whatsapp_invalid", Message: "whatsapp_number must be 10 to 15 digits"})
		default:
			out.WhatsappNumber = number
		}
	} else {
		// Optional outside the whatsapp channel; stored as given.
		out.WhatsappNumber = strings.TrimSpace(req.WhatsappNumber)
	}

	if site := strings.TrimSpace(req.SiteURL); site != "" {
		canonical, ok := normalizeSiteURL(site)
		if !ok {
			verrs = append(verrs, ValidationError{Field: "site_url", Code: "invalid_url", Message: "site_url is not a valid URL"})
		} else {
			out.SiteURL = canonical
		}
	}

	return out, verrs
}

// normalizeSiteURL defaults the scheme to https and lowercases the host.
// Path, query and fragment pass through untouched; an input that carried
// none of them comes out as the bare origin.
func normalizeSiteURL(raw string) (string, bool) {
	if strings.ContainsAny(raw, " \t") {
		return "", false
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", false
	}
	host := strings.ToLower(parsed.Host)
	if host == "" || !strings.Contains(strings.Trim(host, "[]"), ".") {
		return "", false
	}
	parsed.Host = host
	if parsed.Path == "" && parsed.RawQuery == "" && parsed.Fragment == "" {
		return parsed.Scheme + "://" + host, true
	}
	return parsed.String(), true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
