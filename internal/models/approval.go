// internal/models/approval.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Completion reasons recorded when a request reaches a terminal status.
const (
	CompletionReasonAllApproved       = "all_approved"
	CompletionReasonRejection         = "at_least_one_rejection"
	CompletionReasonAnyApproval       = "at_least_one_approval"
	CompletionReasonAllRejected       = "all_rejected_or_expired"
	CompletionReasonExpiredRecipients = "expired_recipients"
	CompletionReasonCancelled         = "cancelled_by_requester"
	CompletionReasonDueDatePassed     = "expired_due_date"
)

type ApprovalRequest struct {
	BaseModel
	DocumentID       uuid.UUID      `json:"document_id" gorm:"type:uuid;not null;index"`
	RequesterID      uuid.UUID      `json:"requester_id" gorm:"type:uuid;not null;index"`
	Title            string         `json:"title" gorm:"size:200;not null"`
	Description      string         `json:"description" gorm:"type:text"`
	ApprovalType     ApprovalType   `json:"approval_type" gorm:"type:varchar(10);not null"`
	Status           ApprovalStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	DueDate          *time.Time     `json:"due_date" gorm:"index"`
	CompletedAt      *time.Time     `json:"completed_at"`
	CompletionReason string         `json:"completion_reason,omitempty" gorm:"size:100"`
	// Set once the completion email went out; the scheduler retries rows
	// where it is still NULL.
	CompletionNotificationSent *time.Time `json:"-"`

	// Relationships
	Document   Document            `json:"document,omitempty" gorm:"foreignKey:DocumentID"`
	Requester  User                `json:"requester,omitempty" gorm:"foreignKey:RequesterID"`
	Recipients []ApprovalRecipient `json:"recipients,omitempty" gorm:"foreignKey:ApprovalRequestID;constraint:OnDelete:CASCADE"`
}

// IsOverdue reports whether the due date has passed for a still-pending
// request. Terminal requests are never overdue.
func (r *ApprovalRequest) IsOverdue(now time.Time) bool {
	return r.Status == ApprovalStatusPending && r.DueDate != nil && r.DueDate.Before(now)
}

type ApprovalRecipient struct {
	BaseModel
	ApprovalRequestID uuid.UUID       `json:"approval_request_id" gorm:"type:uuid;not null;index"`
	RecipientEmail    string          `json:"recipient_email" gorm:"size:255;not null;index"`
	RecipientName     string          `json:"recipient_name" gorm:"size:255"`
	ApprovalToken     *string         `json:"-" gorm:"size:64;uniqueIndex"`
	Status            RecipientStatus `json:"status" gorm:"type:varchar(20);default:'pending'"`
	Comments          string          `json:"comments,omitempty" gorm:"type:text"`
	RespondedAt       *time.Time      `json:"responded_at"`

	// Relationships
	ApprovalRequest ApprovalRequest `json:"-" gorm:"foreignKey:ApprovalRequestID"`
}

// Outcome is the aggregate result of the recipients' decisions.
type Outcome struct {
	Status ApprovalStatus
	Reason string
}

// ResolveOutcome applies the approval policy to the current recipient states
// and reports whether the request is resolved. It is pure: callers decide
// how to persist the transition.
//
// ALL: one rejection resolves the request immediately; approval requires
// every recipient. Recipients expired before responding block all_approved,
// and once nobody is pending the request fails.
// ANY: one approval resolves the request immediately; rejection requires
// every recipient to have rejected or expired.
func ResolveOutcome(approvalType ApprovalType, recipients []ApprovalRecipient) (Outcome, bool) {
	var approved, rejected, expired, pending int
	for _, rec := range recipients {
		switch rec.Status {
		case RecipientStatusApproved:
			approved++
		case RecipientStatusRejected:
			rejected++
		case RecipientStatusExpired:
			expired++
		default:
			pending++
		}
	}

	switch approvalType {
	case ApprovalTypeAny:
		if approved > 0 {
			return Outcome{Status: ApprovalStatusApproved, Reason: CompletionReasonAnyApproval}, true
		}
		if pending == 0 && len(recipients) > 0 {
			return Outcome{Status: ApprovalStatusRejected, Reason: CompletionReasonAllRejected}, true
		}
	default: // ApprovalTypeAll
		if rejected > 0 {
			return Outcome{Status: ApprovalStatusRejected, Reason: CompletionReasonRejection}, true
		}
		if approved == len(recipients) && len(recipients) > 0 {
			return Outcome{Status: ApprovalStatusApproved, Reason: CompletionReasonAllApproved}, true
		}
		if pending == 0 && expired > 0 {
			return Outcome{Status: ApprovalStatusRejected, Reason: CompletionReasonExpiredRecipients}, true
		}
	}

	return Outcome{Status: ApprovalStatusPending}, false
}
