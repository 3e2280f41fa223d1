// internal/services/scheduler_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/docuflow/dms-backend/internal/config"
	"github.com/docuflow/dms-backend/internal/models"
	"gorm.io/gorm"
)

type SchedulerServiceTestSuite struct {
	suite.Suite
	db        *gorm.DB
	cfg       *config.Config
	approvals *ApprovalService
	svc       *SchedulerService
	requester *models.User
	document  *models.Document
}

func (s *SchedulerServiceTestSuite) SetupTest() {
	s.db = newTestDB(s.T())
	s.cfg = testConfig()
	notifications := NewNotificationService(s.db, s.cfg)
	s.approvals = NewApprovalService(s.db, s.cfg, nil, notifications)
	s.svc = NewSchedulerService(s.db, s.cfg, nil, notifications, s.approvals)
	s.requester = createTestUser(s.T(), s.db, "owner@example.com", models.UserRoleUser)
	s.document = createTestDocument(s.T(), s.db, s.requester.ID)
}

func (s *SchedulerServiceTestSuite) createPendingRequest(due *time.Time) *models.ApprovalRequest {
	request, err := s.approvals.Create(s.requester.ID, &CreateApprovalRequest{
		DocumentID:   s.document.ID.String(),
		Title:        "Sign-off",
		ApprovalType: "all",
		DueDate:      due,
		Recipients:   []RecipientInput{{Email: "ana@example.com", Name: "Ana"}},
	}, "", "")
	s.Require().NoError(err)
	return request
}

func (s *SchedulerServiceTestSuite) backdate(requestID uuid.UUID, column string, value time.Time) {
	err := s.db.Model(&models.ApprovalRequest{}).
		Where("id = ?", requestID).
		Update(column, value).Error
	s.Require().NoError(err)
}

func (s *SchedulerServiceTestSuite) auditCount(action string) int64 {
	var count int64
	err := s.db.Model(&models.AuditLog{}).Where("action = ?", action).Count(&count).Error
	s.Require().NoError(err)
	return count
}

func (s *SchedulerServiceTestSuite) TestExpireOverdueRequests() {
	due := time.Now().UTC().Add(2 * time.Hour)
	overdue := s.createPendingRequest(&due)
	s.backdate(overdue.ID, "due_date", time.Now().UTC().Add(-time.Hour))

	open := s.createPendingRequest(nil)

	s.svc.expireOverdueRequests()

	var reloaded models.ApprovalRequest
	s.Require().NoError(s.db.Preload("Recipients").First(&reloaded, overdue.ID).Error)
	s.Equal(models.ApprovalStatusExpired, reloaded.Status)
	s.Equal(models.CompletionReasonDueDatePassed, reloaded.CompletionReason)
	s.Require().NotNil(reloaded.CompletedAt)
	s.Require().Len(reloaded.Recipients, 1)
	s.Equal(models.RecipientStatusExpired, reloaded.Recipients[0].Status)

	var stillOpen models.ApprovalRequest
	s.Require().NoError(s.db.First(&stillOpen, open.ID).Error)
	s.Equal(models.ApprovalStatusPending, stillOpen.Status)

	s.Equal(int64(1), s.auditCount(models.AuditActionRequestExpired))
}

func (s *SchedulerServiceTestSuite) TestExpireSweepSkipsClosedRequests() {
	due := time.Now().UTC().Add(2 * time.Hour)
	request := s.createPendingRequest(&due)

	_, err := s.approvals.Cancel(request.ID, s.requester.ID, "superseded", "", "")
	s.Require().NoError(err)
	s.backdate(request.ID, "due_date", time.Now().UTC().Add(-time.Hour))

	s.svc.expireOverdueRequests()

	var reloaded models.ApprovalRequest
	s.Require().NoError(s.db.First(&reloaded, request.ID).Error)
	s.Equal(models.ApprovalStatusCancelled, reloaded.Status)
	s.Equal(int64(0), s.auditCount(models.AuditActionRequestExpired))
}

func (s *SchedulerServiceTestSuite) TestCleanupExpiredTokens() {
	closed := s.createPendingRequest(nil)
	_, err := s.approvals.Cancel(closed.ID, s.requester.ID, "", "", "")
	s.Require().NoError(err)
	s.backdate(closed.ID, "completed_at", time.Now().UTC().AddDate(0, 0, -60))

	active := s.createPendingRequest(nil)

	s.svc.cleanupExpiredTokens()

	var clearedRecipient models.ApprovalRecipient
	err = s.db.Where("approval_request_id = ?", closed.ID).First(&clearedRecipient).Error
	s.Require().NoError(err)
	s.Nil(clearedRecipient.ApprovalToken)

	var keptRecipient models.ApprovalRecipient
	err = s.db.Where("approval_request_id = ?", active.ID).First(&keptRecipient).Error
	s.Require().NoError(err)
	s.NotNil(keptRecipient.ApprovalToken)

	var entry models.AuditLog
	err = s.db.Where("action = ?", models.AuditActionTokenCleanup).First(&entry).Error
	s.Require().NoError(err)
	s.EqualValues(1, entry.Metadata["cleared"])

	// A second sweep finds nothing and stays silent.
	s.svc.cleanupExpiredTokens()
	s.Equal(int64(1), s.auditCount(models.AuditActionTokenCleanup))
}

func (s *SchedulerServiceTestSuite) TestCleanupAuditLogs() {
	old := time.Now().UTC().AddDate(0, 0, -400)
	for i := 0; i < 3; i++ {
		entry := models.AuditLog{
			BaseModel: models.BaseModel{CreatedAt: old},
			Action:    "approval_request_created",
			Details:   "historic entry",
		}
		s.Require().NoError(s.db.Create(&entry).Error)
	}
	recent := models.AuditLog{Action: "approval_request_created", Details: "fresh entry"}
	s.Require().NoError(s.db.Create(&recent).Error)

	// A small batch size forces the delete loop through several rounds.
	s.cfg.Scheduler.AuditCleanupBatchSize = 2
	s.svc.cleanupAuditLogs()

	var remaining []models.AuditLog
	s.Require().NoError(s.db.Find(&remaining).Error)
	s.Require().Len(remaining, 1)
	s.Equal("fresh entry", remaining[0].Details)
}

func (s *SchedulerServiceTestSuite) TestRetryCompletionNotifications() {
	now := time.Now().UTC()
	closed := models.ApprovalRequest{
		DocumentID:       s.document.ID,
		RequesterID:      s.requester.ID,
		Title:            "Sign-off",
		ApprovalType:     models.ApprovalTypeAll,
		Status:           models.ApprovalStatusApproved,
		CompletedAt:      &now,
		CompletionReason: models.CompletionReasonAllApproved,
	}
	s.Require().NoError(s.db.Create(&closed).Error)
	recipient := models.ApprovalRecipient{
		ApprovalRequestID: closed.ID,
		RecipientEmail:    "ana@example.com",
		RecipientName:     "Ana",
		Status:            models.RecipientStatusApproved,
	}
	s.Require().NoError(s.db.Create(&recipient).Error)

	pending := models.ApprovalRequest{
		DocumentID:   s.document.ID,
		RequesterID:  s.requester.ID,
		Title:        "Still open",
		ApprovalType: models.ApprovalTypeAll,
		Status:       models.ApprovalStatusPending,
	}
	s.Require().NoError(s.db.Create(&pending).Error)

	s.svc.retryCompletionNotifications()

	var reloaded models.ApprovalRequest
	s.Require().NoError(s.db.First(&reloaded, closed.ID).Error)
	s.NotNil(reloaded.CompletionNotificationSent)

	var pendingReloaded models.ApprovalRequest
	s.Require().NoError(s.db.First(&pendingReloaded, pending.ID).Error)
	s.Nil(pendingReloaded.CompletionNotificationSent)
}

func (s *SchedulerServiceTestSuite) TestDeliverReminder() {
	due := time.Now().UTC().Add(2 * time.Hour)
	request := s.createPendingRequest(&due)

	err := s.svc.deliverReminder("half:" + request.ID.String())
	s.Require().NoError(err)

	var entry models.AuditLog
	err = s.db.Where("action = ?", models.AuditActionReminderSent).First(&entry).Error
	s.Require().NoError(err)
	s.Require().NotNil(entry.ApprovalRequestID)
	s.Equal(request.ID, *entry.ApprovalRequestID)
	s.Equal("half", entry.Metadata["stage"])
	s.EqualValues(1, entry.Metadata["recipients_notified"])
}

func (s *SchedulerServiceTestSuite) TestDeliverReminderDropsStaleMembers() {
	due := time.Now().UTC().Add(2 * time.Hour)
	request := s.createPendingRequest(&due)
	err := s.db.Model(&models.ApprovalRequest{}).
		Where("id = ?", request.ID).
		Update("status", models.ApprovalStatusCancelled).Error
	s.Require().NoError(err)

	// Closed request, malformed member and unknown request all drop silently.
	s.Require().NoError(s.svc.deliverReminder("final:" + request.ID.String()))
	s.Require().NoError(s.svc.deliverReminder("garbage"))
	s.Require().NoError(s.svc.deliverReminder("half:" + uuid.NewString()))

	s.Equal(int64(0), s.auditCount(models.AuditActionReminderSent))
}

func (s *SchedulerServiceTestSuite) TestLogWeeklyStats() {
	s.createPendingRequest(nil)

	// Only logs, but the grouped and distinct-count queries must hold up.
	s.svc.logWeeklyStats()
}

func (s *SchedulerServiceTestSuite) TestStartStop() {
	s.svc.Start()
	s.svc.Stop()
}

func TestSchedulerServiceSuite(t *testing.T) {
	suite.Run(t, new(SchedulerServiceTestSuite))
}
