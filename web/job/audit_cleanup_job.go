package job

import (
	"context"
	"time"

	"github.com/memberpanel/memberpanel/logger"
	"github.com/memberpanel/memberpanel/web/service"
)

// AuditCleanupJob cleans up old audit logs
type AuditCleanupJob struct {
	auditService  *service.AuditLogService
	retentionDays int
}

// NewAuditCleanupJob creates a new audit cleanup job
func NewAuditCleanupJob(auditService *service.AuditLogService, retentionDays int) *AuditCleanupJob {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &AuditCleanupJob{auditService: auditService, retentionDays: retentionDays}
}

// Run cleans up old audit logs
func (j *AuditCleanupJob) Run() {
	logger.Debug("Audit cleanup job started")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := j.auditService.CleanOldLogs(ctx, j.retentionDays)
	if err != nil {
		logger.Warning("Failed to clean old audit logs:", err)
		return
	}
	logger.Debugf("Audit cleanup removed %d entries (retention: %d days)", removed, j.retentionDays)
}
