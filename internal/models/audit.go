// internal/models/audit.go
package models

import (
	"github.com/google/uuid"
)

// Audit actions. The strings are stored and exposed through the audit trail
// endpoint, so existing values must never be renamed.
const (
	AuditActionRequestCreated    = "approval_request_created"
	AuditActionRecipientApproved = "recipient_approved"
	AuditActionRecipientRejected = "recipient_rejected"
	AuditActionRequestCompleted  = "approval_request_completed"
	AuditActionRequestCancelled  = "approval_request_cancelled"
	AuditActionRequestDeleted    = "approval_request_deleted"
	AuditActionRequestExpired    = "approval_request_expired"
	AuditActionRecipientExpired  = "recipient_expired"
	AuditActionEmailsSent        = "approval_emails_sent"
	AuditActionEmailsFailed      = "approval_emails_failed"
	AuditActionReminderSent      = "reminder_sent"
	AuditActionTokenCleanup      = "token_cleanup"
	AuditActionAdminUserUpdated  = "admin_user_updated"
)

type AuditLog struct {
	BaseModel
	ApprovalRequestID *uuid.UUID `json:"approval_request_id" gorm:"type:uuid;index"`
	UserID            *uuid.UUID `json:"user_id" gorm:"type:uuid;index"`
	Action            string     `json:"action" gorm:"size:100;not null;index"`
	Details           string     `json:"details" gorm:"type:text"`
	Metadata          JSONB      `json:"metadata" gorm:"type:jsonb"`
	IPAddress         string     `json:"ip_address" gorm:"size:45"`
	UserAgent         string     `json:"user_agent" gorm:"type:text"`

	// Relationships
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
