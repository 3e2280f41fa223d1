// internal/services/approval_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/docuflow/dms-backend/internal/apperrors"
	"github.com/docuflow/dms-backend/internal/config"
	"github.com/docuflow/dms-backend/internal/models"
	"github.com/docuflow/dms-backend/internal/utils"
)

// reminderQueueKey is the Redis sorted set holding scheduled reminder
// deliveries, scored by unix send time. Members are "half:<request_id>" and
// "final:<request_id>".
const reminderQueueKey = "approval_reminders"

type ApprovalService struct {
	db            *gorm.DB
	cfg           *config.Config
	redis         *redis.Client
	notifications *NotificationService
}

// NewApprovalService wires the approval workflow. redisClient may be nil, in
// which case reminder scheduling is disabled.
func NewApprovalService(db *gorm.DB, cfg *config.Config, redisClient *redis.Client, notifications *NotificationService) *ApprovalService {
	return &ApprovalService{
		db:            db,
		cfg:           cfg,
		redis:         redisClient,
		notifications: notifications,
	}
}

type RecipientInput struct {
	Email string `json:"email" validate:"required,email,max=255"`
	Name  string `json:"name" validate:"max=255"`
}

type CreateApprovalRequest struct {
	DocumentID   string           `json:"document_id" validate:"required,uuid"`
	Title        string           `json:"title" validate:"required,max=200"`
	Description  string           `json:"description" validate:"max=2000"`
	ApprovalType string           `json:"approval_type" validate:"required,oneof=all any"`
	DueDate      *time.Time       `json:"due_date" validate:"omitempty,future"`
	Recipients   []RecipientInput `json:"recipients" validate:"required,dive"`
}

type SubmitDecisionRequest struct {
	Decision string `json:"decision" validate:"required"`
	Comments string `json:"comments" validate:"max=1000"`
}

// DecisionResult reports what a token submission did: the recipient's
// recorded decision plus the request status after aggregation.
type DecisionResult struct {
	RequestID        uuid.UUID              `json:"request_id"`
	RecipientStatus  models.RecipientStatus `json:"recipient_status"`
	RequestStatus    models.ApprovalStatus  `json:"request_status"`
	CompletionReason string                 `json:"completion_reason,omitempty"`
}

// ForMeApproval pairs a request with the caller's own recipient state.
type ForMeApproval struct {
	Request     models.ApprovalRequest `json:"request"`
	MyStatus    models.RecipientStatus `json:"my_status"`
	RespondedAt *time.Time             `json:"responded_at,omitempty"`
}

type ApprovalStats struct {
	TotalRequests      int64 `json:"total_requests"`
	PendingRequests    int64 `json:"pending_requests"`
	ApprovedRequests   int64 `json:"approved_requests"`
	RejectedRequests   int64 `json:"rejected_requests"`
	ExpiredRequests    int64 `json:"expired_requests"`
	CancelledRequests  int64 `json:"cancelled_requests"`
	MyPendingApprovals int64 `json:"my_pending_approvals"`
}

// ApprovalTokenInfo is the public preview behind a token link. It never
// consumes the token.
type ApprovalTokenInfo struct {
	Title         string                 `json:"title"`
	Description   string                 `json:"description,omitempty"`
	ApprovalType  models.ApprovalType    `json:"approval_type"`
	RequestStatus models.ApprovalStatus  `json:"request_status"`
	DueDate       *time.Time             `json:"due_date,omitempty"`
	RequesterName string                 `json:"requester_name"`
	RecipientName string                 `json:"recipient_name"`
	MyStatus      models.RecipientStatus `json:"my_status"`
	Document      TokenDocumentInfo      `json:"document"`
}

type TokenDocumentInfo struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// Create validates and persists a request, its recipients and their tokens in
// one transaction, then dispatches invitation emails and schedules reminders
// without blocking the caller.
func (s *ApprovalService) Create(requesterID uuid.UUID, req *CreateApprovalRequest, ipAddress, userAgent string) (*models.ApprovalRequest, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" || len(title) > 200 {
		return nil, apperrors.Validation("title must be between 1 and 200 characters")
	}
	if len(req.Description) > 2000 {
		return nil, apperrors.Validation("description must be at most 2000 characters")
	}

	approvalType := models.ApprovalType(strings.ToLower(strings.TrimSpace(req.ApprovalType)))
	if approvalType != models.ApprovalTypeAll && approvalType != models.ApprovalTypeAny {
		return nil, apperrors.Validation("approval type must be 'all' or 'any'")
	}

	now := time.Now().UTC()
	if req.DueDate != nil && !req.DueDate.After(now) {
		return nil, apperrors.Validation("due date must be in the future")
	}

	recipients, err := s.normalizeRecipients(req.Recipients)
	if err != nil {
		return nil, err
	}

	documentID, err := uuid.Parse(req.DocumentID)
	if err != nil {
		return nil, apperrors.Validation("invalid document id")
	}

	var document models.Document
	if err := s.db.First(&document, documentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("document")
		}
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if document.OwnerID != requesterID {
		return nil, apperrors.Forbidden("only the document owner may request approval")
	}

	var pendingCount int64
	if err := s.db.Model(&models.ApprovalRequest{}).
		Where("document_id = ? AND status = ?", document.ID, models.ApprovalStatusPending).
		Count(&pendingCount).Error; err != nil {
		return nil, fmt.Errorf("failed to check existing requests: %w", err)
	}
	if pendingCount > 0 {
		return nil, apperrors.Validation("document already has a pending approval request")
	}

	request := &models.ApprovalRequest{
		DocumentID:   document.ID,
		RequesterID:  requesterID,
		Title:        title,
		Description:  strings.TrimSpace(req.Description),
		ApprovalType: approvalType,
		Status:       models.ApprovalStatusPending,
		DueDate:      req.DueDate,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(request).Error; err != nil {
			return fmt.Errorf("failed to create approval request: %w", err)
		}

		rows := make([]models.ApprovalRecipient, 0, len(recipients))
		for _, r := range recipients {
			token := utils.GenerateApprovalToken()
			rows = append(rows, models.ApprovalRecipient{
				ApprovalRequestID: request.ID,
				RecipientEmail:    r.Email,
				RecipientName:     r.Name,
				ApprovalToken:     &token,
				Status:            models.RecipientStatusPending,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to create recipients: %w", err)
		}

		return s.createAuditLog(tx, &request.ID, &requesterID, models.AuditActionRequestCreated,
			fmt.Sprintf("approval request %q created with %d recipient(s)", title, len(rows)),
			models.JSONB{
				"approval_type":   string(approvalType),
				"recipient_count": len(rows),
				"document_id":     document.ID.String(),
			}, ipAddress, userAgent)
	})
	if err != nil {
		return nil, err
	}

	var full models.ApprovalRequest
	if err := s.db.Preload("Recipients").Preload("Requester").Preload("Document").
		First(&full, request.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload approval request: %w", err)
	}

	go s.dispatchInvitations(&full)
	s.scheduleReminders(&full)

	return &full, nil
}

func (s *ApprovalService) normalizeRecipients(inputs []RecipientInput) ([]RecipientInput, error) {
	min := s.cfg.Approval.MinRecipients
	max := s.cfg.Approval.MaxRecipients
	if len(inputs) < min || len(inputs) > max {
		return nil, apperrors.Newf(apperrors.KindValidation,
			"recipient count must be between %d and %d", min, max)
	}

	seen := make(map[string]bool, len(inputs))
	out := make([]RecipientInput, 0, len(inputs))
	for _, in := range inputs {
		email := strings.ToLower(strings.TrimSpace(in.Email))
		if email == "" {
			return nil, apperrors.Validation("recipient email is required")
		}
		if seen[email] {
			return nil, apperrors.Newf(apperrors.KindValidation, "duplicate recipient email: %s", email)
		}
		seen[email] = true
		out = append(out, RecipientInput{Email: email, Name: strings.TrimSpace(in.Name)})
	}

	return out, nil
}

// GetByID returns a request with its recipients. Visible to the requester,
// any invited recipient, and admins.
func (s *ApprovalService) GetByID(requestID, callerID uuid.UUID, callerEmail string, isAdmin bool) (*models.ApprovalRequest, error) {
	var request models.ApprovalRequest
	if err := s.db.Preload("Recipients").Preload("Requester").Preload("Document").
		First(&request, requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("approval request")
		}
		return nil, fmt.Errorf("failed to load approval request: %w", err)
	}

	if !s.canView(&request, callerID, callerEmail, isAdmin) {
		return nil, apperrors.Forbidden("you do not have access to this approval request")
	}

	return &request, nil
}

func (s *ApprovalService) canView(request *models.ApprovalRequest, callerID uuid.UUID, callerEmail string, isAdmin bool) bool {
	if isAdmin || request.RequesterID == callerID {
		return true
	}
	for _, r := range request.Recipients {
		if strings.EqualFold(r.RecipientEmail, callerEmail) {
			return true
		}
	}
	return false
}

// ListMine returns requests created by the caller, optionally filtered by
// status.
func (s *ApprovalService) ListMine(callerID uuid.UUID, params utils.PaginationParams) (utils.PaginationResult, error) {
	query := s.db.Model(&models.ApprovalRequest{}).Where("requester_id = ?", callerID)

	if params.Status != "" {
		if !isApprovalStatus(params.Status) {
			return utils.PaginationResult{}, apperrors.Newf(apperrors.KindValidation,
				"unknown status filter: %s", params.Status)
		}
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.PaginationResult{}, fmt.Errorf("failed to count approval requests: %w", err)
	}

	query = utils.ApplySort(query, params, []string{"created_at", "due_date", "status", "title"})
	query = utils.ApplyPagination(query, params)

	var requests []models.ApprovalRequest
	if err := query.Preload("Recipients").Preload("Document").Find(&requests).Error; err != nil {
		return utils.PaginationResult{}, fmt.Errorf("failed to list approval requests: %w", err)
	}

	return utils.CreatePaginationResult(requests, total, params), nil
}

// ListForMe returns requests where the caller is a recipient, matched by
// email. The status filter applies to the caller's own recipient state.
func (s *ApprovalService) ListForMe(callerEmail string, params utils.PaginationParams) (utils.PaginationResult, error) {
	email := strings.ToLower(strings.TrimSpace(callerEmail))
	query := s.db.Model(&models.ApprovalRecipient{}).Where("recipient_email = ?", email)

	if params.Status != "" {
		if !isRecipientStatus(params.Status) {
			return utils.PaginationResult{}, apperrors.Newf(apperrors.KindValidation,
				"unknown status filter: %s", params.Status)
		}
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.PaginationResult{}, fmt.Errorf("failed to count recipient rows: %w", err)
	}

	query = utils.ApplySort(query, params, []string{"created_at"})
	query = utils.ApplyPagination(query, params)

	var rows []models.ApprovalRecipient
	if err := query.
		Preload("ApprovalRequest").
		Preload("ApprovalRequest.Document").
		Preload("ApprovalRequest.Requester").
		Find(&rows).Error; err != nil {
		return utils.PaginationResult{}, fmt.Errorf("failed to list recipient rows: %w", err)
	}

	items := make([]ForMeApproval, 0, len(rows))
	for _, row := range rows {
		items = append(items, ForMeApproval{
			Request:     row.ApprovalRequest,
			MyStatus:    row.Status,
			RespondedAt: row.RespondedAt,
		})
	}

	return utils.CreatePaginationResult(items, total, params), nil
}

// Stats aggregates the caller's requests by status plus the number of
// decisions still waiting on them as a recipient.
func (s *ApprovalService) Stats(callerID uuid.UUID, callerEmail string) (*ApprovalStats, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := s.db.Model(&models.ApprovalRequest{}).
		Select("status, count(*) as count").
		Where("requester_id = ?", callerID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate request stats: %w", err)
	}

	stats := &ApprovalStats{}
	for _, row := range rows {
		stats.TotalRequests += row.Count
		switch models.ApprovalStatus(row.Status) {
		case models.ApprovalStatusPending:
			stats.PendingRequests = row.Count
		case models.ApprovalStatusApproved:
			stats.ApprovedRequests = row.Count
		case models.ApprovalStatusRejected:
			stats.RejectedRequests = row.Count
		case models.ApprovalStatusExpired:
			stats.ExpiredRequests = row.Count
		case models.ApprovalStatusCancelled:
			stats.CancelledRequests = row.Count
		}
	}

	email := strings.ToLower(strings.TrimSpace(callerEmail))
	if err := s.db.Model(&models.ApprovalRecipient{}).
		Joins("JOIN approval_requests ON approval_requests.id = approval_recipients.approval_request_id").
		Where("approval_recipients.recipient_email = ?", email).
		Where("approval_recipients.status = ?", models.RecipientStatusPending).
		Where("approval_requests.status = ?", models.ApprovalStatusPending).
		Where("approval_requests.deleted_at IS NULL").
		Count(&stats.MyPendingApprovals).Error; err != nil {
		return nil, fmt.Errorf("failed to count pending approvals: %w", err)
	}

	return stats, nil
}

// GetTokenInfo resolves a token to a read-only preview for the decision page.
// Unknown or already-used tokens are indistinguishable to the caller.
func (s *ApprovalService) GetTokenInfo(token string) (*ApprovalTokenInfo, error) {
	var recipient models.ApprovalRecipient
	if err := s.db.Where("approval_token = ?", token).First(&recipient).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.TokenInvalid("invalid approval token")
		}
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}
	if recipient.Status != models.RecipientStatusPending {
		return nil, apperrors.TokenInvalid("approval token already used")
	}

	var request models.ApprovalRequest
	if err := s.db.Preload("Document").Preload("Requester").
		First(&request, recipient.ApprovalRequestID).Error; err != nil {
		return nil, fmt.Errorf("failed to load approval request: %w", err)
	}

	return &ApprovalTokenInfo{
		Title:         request.Title,
		Description:   request.Description,
		ApprovalType:  request.ApprovalType,
		RequestStatus: request.Status,
		DueDate:       request.DueDate,
		RequesterName: request.Requester.FullName,
		RecipientName: recipient.RecipientName,
		MyStatus:      recipient.Status,
		Document: TokenDocumentInfo{
			Filename:    request.Document.OriginalFilename,
			ContentType: request.Document.ContentType,
			SizeBytes:   request.Document.SizeBytes,
		},
	}, nil
}

// SubmitDecision consumes a token. The whole path is one transaction: token
// lookup, lazy expiry, the recipient's guarded status flip, aggregation and
// the request's single terminal transition. A request discovered overdue is
// expired and committed even though the caller gets REQUEST_CLOSED.
func (s *ApprovalService) SubmitDecision(token string, req *SubmitDecisionRequest, ipAddress, userAgent string) (*DecisionResult, error) {
	decision := models.DecisionValue(strings.ToLower(strings.TrimSpace(req.Decision)))
	if decision != models.DecisionApproved && decision != models.DecisionRejected {
		return nil, apperrors.Validation("decision must be 'approved' or 'rejected'")
	}
	if len(req.Comments) > 1000 {
		return nil, apperrors.Validation("comments must be at most 1000 characters")
	}

	now := time.Now().UTC()
	var result DecisionResult
	var closed error
	var completed bool
	var requestID uuid.UUID

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var recipient models.ApprovalRecipient
		if err := tx.Where("approval_token = ?", token).First(&recipient).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.TokenInvalid("invalid approval token")
			}
			return fmt.Errorf("failed to look up token: %w", err)
		}
		if recipient.Status != models.RecipientStatusPending {
			return apperrors.TokenInvalid("approval token already used")
		}

		var request models.ApprovalRequest
		if err := tx.First(&request, recipient.ApprovalRequestID).Error; err != nil {
			return fmt.Errorf("failed to load approval request: %w", err)
		}
		requestID = request.ID

		if request.IsOverdue(now) {
			// Commit the expiry, fail the decision.
			if _, err := s.ExpireRequest(tx, &request, now); err != nil {
				return err
			}
			closed = apperrors.RequestClosed("approval request has expired")
			return nil
		}
		if request.Status != models.ApprovalStatusPending {
			return apperrors.RequestClosed("approval request is already closed")
		}

		newStatus := models.RecipientStatusApproved
		action := models.AuditActionRecipientApproved
		if decision == models.DecisionRejected {
			newStatus = models.RecipientStatusRejected
			action = models.AuditActionRecipientRejected
		}

		res := tx.Model(&models.ApprovalRecipient{}).
			Where("id = ? AND status = ?", recipient.ID, models.RecipientStatusPending).
			Updates(map[string]interface{}{
				"status":       newStatus,
				"comments":     strings.TrimSpace(req.Comments),
				"responded_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to record decision: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.Conflict("decision already in progress, refresh and retry")
		}

		if err := s.createAuditLog(tx, &request.ID, nil, action,
			fmt.Sprintf("recipient %s %s the request", recipient.RecipientEmail, decision),
			models.JSONB{
				"recipient_email": recipient.RecipientEmail,
				"decision":        string(decision),
				"has_comments":    strings.TrimSpace(req.Comments) != "",
			}, ipAddress, userAgent); err != nil {
			return err
		}

		var recipients []models.ApprovalRecipient
		if err := tx.Where("approval_request_id = ?", request.ID).Find(&recipients).Error; err != nil {
			return fmt.Errorf("failed to reload recipients: %w", err)
		}

		result = DecisionResult{
			RequestID:       request.ID,
			RecipientStatus: newStatus,
			RequestStatus:   models.ApprovalStatusPending,
		}

		outcome, resolved := models.ResolveOutcome(request.ApprovalType, recipients)
		if !resolved {
			return nil
		}

		transition := tx.Model(&models.ApprovalRequest{}).
			Where("id = ? AND status = ?", request.ID, models.ApprovalStatusPending).
			Updates(map[string]interface{}{
				"status":            outcome.Status,
				"completed_at":      now,
				"completion_reason": outcome.Reason,
			})
		if transition.Error != nil {
			return fmt.Errorf("failed to complete approval request: %w", transition.Error)
		}
		if transition.RowsAffected == 0 {
			// Someone else closed it first; the decision itself stands.
			return nil
		}

		result.RequestStatus = outcome.Status
		result.CompletionReason = outcome.Reason
		completed = true

		return s.createAuditLog(tx, &request.ID, nil, models.AuditActionRequestCompleted,
			fmt.Sprintf("approval request resolved as %s (%s)", outcome.Status, outcome.Reason),
			models.JSONB{
				"status":            string(outcome.Status),
				"completion_reason": outcome.Reason,
			}, ipAddress, userAgent)
	})
	if err != nil {
		return nil, err
	}
	if closed != nil {
		s.clearReminders(requestID)
		return nil, closed
	}

	if completed {
		s.clearReminders(requestID)
		go s.notifyCompletion(requestID)
	}

	return &result, nil
}

// ExpireRequest moves an overdue request to EXPIRED with the same guarded
// update the decision path uses, flips pending recipients so their tokens
// die, and audits the sweep. Callers supply the transaction. Returns false
// when another writer already closed the request.
func (s *ApprovalService) ExpireRequest(tx *gorm.DB, request *models.ApprovalRequest, now time.Time) (bool, error) {
	res := tx.Model(&models.ApprovalRequest{}).
		Where("id = ? AND status = ?", request.ID, models.ApprovalStatusPending).
		Updates(map[string]interface{}{
			"status":            models.ApprovalStatusExpired,
			"completed_at":      now,
			"completion_reason": models.CompletionReasonDueDatePassed,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to expire approval request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	if err := tx.Model(&models.ApprovalRecipient{}).
		Where("approval_request_id = ? AND status = ?", request.ID, models.RecipientStatusPending).
		Update("status", models.RecipientStatusExpired).Error; err != nil {
		return false, fmt.Errorf("failed to expire recipients: %w", err)
	}

	if err := s.createAuditLog(tx, &request.ID, nil, models.AuditActionRequestExpired,
		"approval request expired past its due date",
		models.JSONB{"due_date": request.DueDate}, "", ""); err != nil {
		return false, err
	}

	return true, nil
}

// Cancel closes a PENDING request on the requester's behalf. Pending
// recipients move to EXPIRED so outstanding tokens stop working. The optional
// free-text reason is kept in the audit trail.
func (s *ApprovalService) Cancel(requestID, callerID uuid.UUID, reason, ipAddress, userAgent string) (*models.ApprovalRequest, error) {
	now := time.Now().UTC()
	var pendingRecipients []models.ApprovalRecipient

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var request models.ApprovalRequest
		if err := tx.First(&request, requestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("approval request")
			}
			return fmt.Errorf("failed to load approval request: %w", err)
		}
		if request.RequesterID != callerID {
			return apperrors.Forbidden("only the requester may cancel an approval request")
		}
		if request.Status != models.ApprovalStatusPending {
			return apperrors.RequestClosed("approval request is already closed")
		}

		if err := tx.Where("approval_request_id = ? AND status = ?",
			request.ID, models.RecipientStatusPending).
			Find(&pendingRecipients).Error; err != nil {
			return fmt.Errorf("failed to load pending recipients: %w", err)
		}

		res := tx.Model(&models.ApprovalRequest{}).
			Where("id = ? AND status = ?", request.ID, models.ApprovalStatusPending).
			Updates(map[string]interface{}{
				"status":            models.ApprovalStatusCancelled,
				"completed_at":      now,
				"completion_reason": models.CompletionReasonCancelled,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to cancel approval request: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.Conflict("approval request changed state, refresh and retry")
		}

		if err := tx.Model(&models.ApprovalRecipient{}).
			Where("approval_request_id = ? AND status = ?", request.ID, models.RecipientStatusPending).
			Update("status", models.RecipientStatusExpired).Error; err != nil {
			return fmt.Errorf("failed to expire recipients: %w", err)
		}

		return s.createAuditLog(tx, &request.ID, &callerID, models.AuditActionRequestCancelled,
			"approval request cancelled by the requester",
			models.JSONB{"reason": strings.TrimSpace(reason)}, ipAddress, userAgent)
	})
	if err != nil {
		return nil, err
	}

	var full models.ApprovalRequest
	if err := s.db.Preload("Recipients").Preload("Requester").Preload("Document").
		First(&full, requestID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload approval request: %w", err)
	}

	s.clearReminders(requestID)
	go func() {
		s.notifications.SendCancellationNotifications(&full, pendingRecipients)
		s.notifyCompletion(requestID)
	}()

	return &full, nil
}

// Delete removes a PENDING request and its recipients. Terminal requests are
// immutable history and cannot be deleted.
func (s *ApprovalService) Delete(requestID, callerID uuid.UUID, ipAddress, userAgent string) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var request models.ApprovalRequest
		if err := tx.First(&request, requestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("approval request")
			}
			return fmt.Errorf("failed to load approval request: %w", err)
		}
		if request.RequesterID != callerID {
			return apperrors.Forbidden("only the requester may delete an approval request")
		}
		if request.Status != models.ApprovalStatusPending {
			return apperrors.RequestClosed("only pending requests can be deleted")
		}

		if err := tx.Where("approval_request_id = ?", request.ID).
			Delete(&models.ApprovalRecipient{}).Error; err != nil {
			return fmt.Errorf("failed to delete recipients: %w", err)
		}
		if err := tx.Delete(&request).Error; err != nil {
			return fmt.Errorf("failed to delete approval request: %w", err)
		}

		return s.createAuditLog(tx, &request.ID, &callerID, models.AuditActionRequestDeleted,
			fmt.Sprintf("approval request %q deleted", request.Title), nil, ipAddress, userAgent)
	})
	if err != nil {
		return err
	}

	s.clearReminders(requestID)
	return nil
}

// AuditTrail returns the chronological audit entries for a request, visible
// to the same audience as GetByID.
func (s *ApprovalService) AuditTrail(requestID, callerID uuid.UUID, callerEmail string, isAdmin bool) ([]models.AuditLog, error) {
	var request models.ApprovalRequest
	if err := s.db.Preload("Recipients").First(&request, requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("approval request")
		}
		return nil, fmt.Errorf("failed to load approval request: %w", err)
	}
	if !s.canView(&request, callerID, callerEmail, isAdmin) {
		return nil, apperrors.Forbidden("you do not have access to this approval request")
	}

	var entries []models.AuditLog
	if err := s.db.Where("approval_request_id = ?", requestID).
		Order("created_at asc").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load audit trail: %w", err)
	}

	return entries, nil
}

func (s *ApprovalService) createAuditLog(tx *gorm.DB, requestID, userID *uuid.UUID, action, details string, metadata models.JSONB, ipAddress, userAgent string) error {
	entry := models.AuditLog{
		ApprovalRequestID: requestID,
		UserID:            userID,
		Action:            action,
		Details:           details,
		Metadata:          metadata,
		IPAddress:         ipAddress,
		UserAgent:         userAgent,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// dispatchInvitations runs detached from the request cycle: delivery failures
// are audited, never propagated.
func (s *ApprovalService) dispatchInvitations(request *models.ApprovalRequest) {
	sent, failed := s.notifications.SendApprovalInvitations(request, request.Recipients)

	if sent > 0 {
		if err := s.createAuditLog(s.db, &request.ID, nil, models.AuditActionEmailsSent,
			fmt.Sprintf("%d invitation email(s) sent", sent),
			models.JSONB{"sent": sent}, "", ""); err != nil {
			logrus.WithError(err).Warn("Failed to audit sent invitations")
		}
	}
	if failed > 0 {
		if err := s.createAuditLog(s.db, &request.ID, nil, models.AuditActionEmailsFailed,
			fmt.Sprintf("%d invitation email(s) failed", failed),
			models.JSONB{"failed": failed}, "", ""); err != nil {
			logrus.WithError(err).Warn("Failed to audit failed invitations")
		}
	}
}

func (s *ApprovalService) notifyCompletion(requestID uuid.UUID) {
	var request models.ApprovalRequest
	if err := s.db.Preload("Requester").Preload("Recipients").Preload("Document").
		First(&request, requestID).Error; err != nil {
		logrus.WithError(err).WithField("request_id", requestID).
			Error("Failed to load request for completion notification")
		return
	}

	if err := s.notifications.SendCompletionNotification(&request); err != nil {
		// Left unmarked so the scheduler retries later.
		logrus.WithError(err).WithField("request_id", requestID).
			Error("Failed to send completion notification")
		return
	}

	now := time.Now().UTC()
	if err := s.db.Model(&models.ApprovalRequest{}).
		Where("id = ?", requestID).
		Update("completion_notification_sent", now).Error; err != nil {
		logrus.WithError(err).WithField("request_id", requestID).
			Warn("Failed to mark completion notification as sent")
	}
}

// scheduleReminders queues the halfway-point and final-hour reminders. No-op
// without Redis or a due date.
func (s *ApprovalService) scheduleReminders(request *models.ApprovalRequest) {
	if s.redis == nil || request.DueDate == nil {
		return
	}

	now := time.Now().UTC()
	due := request.DueDate.UTC()
	if !due.After(now) {
		return
	}

	members := []redis.Z{
		{Score: float64(now.Add(due.Sub(now) / 2).Unix()), Member: "half:" + request.ID.String()},
	}
	if final := due.Add(-time.Hour); final.After(now) {
		members = append(members, redis.Z{Score: float64(final.Unix()), Member: "final:" + request.ID.String()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.redis.ZAdd(ctx, reminderQueueKey, members...).Err(); err != nil {
		logrus.WithError(err).WithField("request_id", request.ID).
			Warn("Failed to schedule approval reminders")
	}
}

func (s *ApprovalService) clearReminders(requestID uuid.UUID) {
	if s.redis == nil || requestID == uuid.Nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.redis.ZRem(ctx, reminderQueueKey,
		"half:"+requestID.String(), "final:"+requestID.String()).Err(); err != nil {
		logrus.WithError(err).WithField("request_id", requestID).
			Warn("Failed to clear approval reminders")
	}
}

func isApprovalStatus(value string) bool {
	switch models.ApprovalStatus(value) {
	case models.ApprovalStatusPending, models.ApprovalStatusApproved,
		models.ApprovalStatusRejected, models.ApprovalStatusExpired,
		models.ApprovalStatusCancelled:
		return true
	}
	return false
}

func isRecipientStatus(value string) bool {
	switch models.RecipientStatus(value) {
	case models.RecipientStatusPending, models.RecipientStatusApproved,
		models.RecipientStatusRejected, models.RecipientStatusExpired:
		return true
	}
	return false
}
