package service

import (
	"context"
	"errors"

	"github.com/memberpanel/memberpanel/database/model"
	"github.com/memberpanel/memberpanel/logger"
)

var ErrSelfDemotion = errors.New("admins cannot demote themselves")

// RoleService promotes and demotes users on behalf of an admin.
type RoleService struct {
	users CredentialStore
	audit *AuditLogService
}

func NewRoleService(users CredentialStore, audit *AuditLogService) *RoleService {
	return &RoleService{users: users, audit: audit}
}

// Promote grants the admin role to target. Promoting an admin again is a no-op success.
func (s *RoleService) Promote(ctx context.Context, actor, target, ip string) error {
	return s.change(ctx, actor, target, ip, model.RoleAdmin, model.ActionPromote)
}

// Demote revokes the admin role of target. An admin cannot demote themselves.
func (s *RoleService) Demote(ctx context.Context, actor, target, ip string) error {
	if actor == target {
		return ErrSelfDemotion
	}
	return s.change(ctx, actor, target, ip, model.RoleUser, model.ActionDemote)
}

// CurrentRole returns the stored role for email.
func (s *RoleService) CurrentRole(ctx context.Context, email string) (model.Role, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

func (s *RoleService) change(ctx context.Context, actor, target, ip string, role model.Role, action model.AuditAction) error {
	if err := s.users.SetRole(ctx, target, role); err != nil {
		return err
	}
	logger.Infof("%s set role of %s to %s", actor, target, role)

	if s.audit != nil {
		_ = s.audit.LogAction(ctx, AuditEntry{
			ActorEmail:  actor,
			Action:      action,
			TargetEmail: target,
			IP:          ip,
			Details:     map[string]any{"role": role},
		})
	}
	return nil
}
