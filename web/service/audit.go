package service

import (
	"context"
	"fmt"
	"time"

	"github.com/memberpanel/memberpanel/database/model"
	"github.com/memberpanel/memberpanel/logger"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditEntry describes one event to record.
type AuditEntry struct {
	ActorEmail  string
	Action      model.AuditAction
	TargetEmail string
	IP          string
	UserAgent   string
	Details     map[string]any
}

// AuditLogService handles audit logging
type AuditLogService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAuditLogService(db *gorm.DB) *AuditLogService {
	return &AuditLogService{db: db, now: time.Now}
}

// LogAction stores entry. Failures are logged and returned; callers treat them as non-fatal.
func (s *AuditLogService) LogAction(ctx context.Context, entry AuditEntry) error {
	details := ""
	if len(entry.Details) > 0 {
		data, err := json.Marshal(entry.Details)
		if err != nil {
			logger.Warning("Failed to marshal audit log details: ", err)
		} else {
			details = string(data)
		}
	}

	row := model.AuditLog{
		Id:          uuid.NewString(),
		ActorEmail:  entry.ActorEmail,
		Action:      entry.Action,
		TargetEmail: entry.TargetEmail,
		IP:          entry.IP,
		UserAgent:   entry.UserAgent,
		Details:     details,
		Timestamp:   s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		logger.Warningf("Failed to create audit log: actor=%s, action=%s, target=%s, error=%v",
			entry.ActorEmail, entry.Action, entry.TargetEmail, err)
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// Recent returns the newest limit entries, newest first.
func (s *AuditLogService) Recent(ctx context.Context, limit int) ([]model.AuditLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var logs []model.AuditLog
	err := s.db.WithContext(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, nil
}

// CleanOldLogs deletes entries older than retentionDays and returns how many were removed.
func (s *AuditLogService) CleanOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	res := s.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&model.AuditLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("clean audit logs: %w", res.Error)
	}
	return res.RowsAffected, nil
}
