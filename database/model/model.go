// Package model holds the gorm models persisted by the members panel.
package model

import "time"

type AuditAction string

const (
	ActionSignup  AuditAction = "SIGNUP"
	ActionLogin   AuditAction = "LOGIN"
	ActionLogout  AuditAction = "LOGOUT"
	ActionPromote AuditAction = "PROMOTE"
	ActionDemote  AuditAction = "DEMOTE"
)

// AuditLog records one authentication or role-change event.
type AuditLog struct {
	Id          string      `json:"id" gorm:"primaryKey;size:36"`
	ActorEmail  string      `json:"actorEmail" gorm:"index"`
	Action      AuditAction `json:"action" gorm:"index;not null"`
	TargetEmail string      `json:"targetEmail"`
	IP          string      `json:"ip"`
	UserAgent   string      `json:"userAgent"`
	Details     string      `json:"details"`
	Timestamp   time.Time   `json:"timestamp" gorm:"index"`
}
