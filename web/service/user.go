// Package service implements the credential store, authentication, role management and
// audit logging used by the web controllers.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/memberpanel/memberpanel/database"
	"github.com/memberpanel/memberpanel/database/model"

	"gorm.io/gorm"
)

var (
	ErrDuplicateEmail = errors.New("email is already registered")
	ErrUserNotFound   = errors.New("user not found")
	ErrInvalidRole    = errors.New("invalid role")
	ErrLastAdmin      = errors.New("cannot demote the last admin")
)

// CredentialStore persists user accounts.
type CredentialStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	SetRole(ctx context.Context, email string, role model.Role) error
	ListAll(ctx context.Context) ([]model.User, error)
}

// UserService is the gorm-backed CredentialStore.
type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// CreateUser inserts user and fills in its id. The email must not be registered yet.
func (s *UserService) CreateUser(ctx context.Context, user *model.User) error {
	if !user.Role.IsValid() {
		return ErrInvalidRole
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
			return fmt.Errorf("check email: %w", err)
		}
		if count > 0 {
			return ErrDuplicateEmail
		}
		err := tx.Create(user).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEmail
		}
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		return nil
	})
}

func (s *UserService) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user := &model.User{}
	err := s.db.WithContext(ctx).Where("email = ?", email).First(user).Error
	if database.IsNotFound(err) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// SetRole changes the role of the user with the given email. Setting the current role
// again succeeds without changes. The last remaining admin cannot be demoted.
func (s *UserService) SetRole(ctx context.Context, email string, role model.Role) error {
	if !role.IsValid() {
		return ErrInvalidRole
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user model.User
		err := tx.Where("email = ?", email).First(&user).Error
		if database.IsNotFound(err) {
			return ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("find user: %w", err)
		}
		if user.Role == role {
			return nil
		}
		if user.IsAdmin() {
			admins, err := countAdmins(tx)
			if err != nil {
				return fmt.Errorf("count admins: %w", err)
			}
			if admins <= 1 {
				return ErrLastAdmin
			}
		}
		if err := tx.Model(&user).Update("role", role).Error; err != nil {
			return fmt.Errorf("update role: %w", err)
		}
		return nil
	})
}

func (s *UserService) ListAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *UserService) CountAdmins(ctx context.Context) (int64, error) {
	return countAdmins(s.db.WithContext(ctx))
}

func countAdmins(tx *gorm.DB) (int64, error) {
	var count int64
	err := tx.Model(&model.User{}).Where("role = ?", model.RoleAdmin).Count(&count).Error
	return count, err
}

var _ CredentialStore = (*UserService)(nil)
