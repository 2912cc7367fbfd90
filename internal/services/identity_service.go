package services

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"account-access-service/internal/models"
)

// ErrEmailTaken is returned when the email already belongs to a user.
var ErrEmailTaken = errors.New("email already registered")

// ErrBadCredentials is returned on any authentication mismatch.
var ErrBadCredentials = errors.New("invalid credentials")

// UserStore is the identity persistence surface.
type UserStore interface {
	GetByEmail(email string) (*models.User, error)
	Create(user *models.User) error
}

// IdentityProvider is the collaborator the onboarding saga talks to. The
// default implementation is database-backed; deployments fronted by an
// external IdP swap in their own.
type IdentityProvider interface {
	CreateUser(email, name, password string) (*models.User, error)
	Authenticate(email, password string) (*models.User, error)
}

// IdentityService is the DB-backed IdentityProvider.
type IdentityService struct {
	users UserStore
}

func NewIdentityService(users UserStore) *IdentityService {
	return &IdentityService{users: users}
}

// CreateUser registers a new identity. Duplicate emails return
// ErrEmailTaken so the saga can report it as its own failure.
func (s *IdentityService) CreateUser(email, name, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters long")
	}

	existing, err := s.users.GetByEmail(email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
	}
	if err := s.users.Create(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Authenticate verifies credentials. Missing users and wrong passwords
// both come back as ErrBadCredentials.
func (s *IdentityService) Authenticate(email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrBadCredentials
	}
	return user, nil
}
