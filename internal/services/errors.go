package services

import (
	"errors"
	"fmt"
)

// Access denial codes. FORBIDDEN_ACCOUNT deliberately covers both "account
// does not exist" and "you are not a member" so responses stay opaque.
const (
	AccessCodeUnresolvedTenant = "UNRESOLVED_TENANT"
	AccessCodeForbiddenAccount = "FORBIDDEN_ACCOUNT"
	AccessCodeInactiveMember   = "INACTIVE_MEMBER"
	AccessCodeNoOwnerGuard     = "NO_OWNER_GUARD"
)

// AccessError is a typed access denial carrying a machine-readable code.
type AccessError struct {
	Code    string
	Message string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAccessError(code, message string) *AccessError {
	return &AccessError{Code: code, Message: message}
}

// AsAccessError checks if an error is an AccessError
func AsAccessError(err error) (*AccessError, bool) {
	var accessErr *AccessError
	if errors.As(err, &accessErr) {
		return accessErr, true
	}
	return nil, false
}

// ValidationError represents a single invalid field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates all field failures of one request so the
// caller sees every problem at once.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed on %d field(s), first: %s", len(e), e[0].Error())
}

// AsValidationErrors checks if an error is a ValidationErrors list
func AsValidationErrors(err error) (ValidationErrors, bool) {
	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		return verrs, true
	}
	return nil, false
}

// Rate limit scope details for token generation.
const (
	RateScopePerActorDay = "per_actor_day"
	RateScopePerEmailDay = "per_email_day"
	RateScopeBurst       = "burst"
)

// RateLimitError reports which of the independent token limits tripped.
type RateLimitError struct {
	ScopeDetail string
	Limit       int64
	Count       int64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (%s): %d/%d", e.ScopeDetail, e.Count, e.Limit)
}

// AsRateLimitError checks if an error is a RateLimitError
func AsRateLimitError(err error) (*RateLimitError, bool) {
	var rlErr *RateLimitError
	if errors.As(err, &rlErr) {
		return rlErr, true
	}
	return nil, false
}

// TokenStatusError reports why a token failed validation.
type TokenStatusError struct {
	Status string // "already_used" or "expired"
}

func (e *TokenStatusError) Error() string {
	return fmt.Sprintf("token %s", e.Status)
}

// AsTokenStatusError checks if an error is a TokenStatusError
func AsTokenStatusError(err error) (*TokenStatusError, bool) {
	var tsErr *TokenStatusError
	if errors.As(err, &tsErr) {
		return tsErr, true
	}
	return nil, false
}
