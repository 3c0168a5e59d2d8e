package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/memberpanel/memberpanel/database/model"
	"github.com/memberpanel/memberpanel/logger"
)

var ErrInvalidCredentials = errors.New("invalid email/password combination")

// PasswordHasher hashes and verifies passwords. Verify never fails open.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// AuthService registers and authenticates users.
type AuthService struct {
	users  CredentialStore
	hasher PasswordHasher

	// compared against when the email is unknown, so both paths pay for one hash check
	dummyHash string
}

func NewAuthService(users CredentialStore, hasher PasswordHasher) *AuthService {
	dummy, err := hasher.Hash("memberpanel-dummy-password")
	if err != nil {
		logger.Warning("unable to prepare dummy hash: ", err)
	}
	return &AuthService{users: users, hasher: hasher, dummyHash: dummy}
}

// Signup creates a user account. Self-registration always yields the user role; an
// admin has to promote the account afterwards.
func (s *AuthService) Signup(ctx context.Context, name, email, password string, requested model.Role) (*model.User, error) {
	if requested == model.RoleAdmin {
		logger.Warningf("signup for %s asked for the admin role, registering as user", email)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleUser,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login returns the user for email when password matches, ErrInvalidCredentials when
// it does not or the email is unknown, and any other error for store failures.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		s.hasher.Verify(password, s.dummyHash)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
