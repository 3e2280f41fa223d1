// internal/services/scheduler_service.go
package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/docuflow/dms-backend/internal/config"
	"github.com/docuflow/dms-backend/internal/models"
)

// SchedulerService runs the background maintenance loops: the expiry sweep,
// reminder delivery, completion notification retries and retention cleanup.
// Each task runs on its own ticker and stops together on shutdown.
type SchedulerService struct {
	db            *gorm.DB
	cfg           *config.Config
	redis         *redis.Client
	notifications *NotificationService
	approvals     *ApprovalService

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewSchedulerService(db *gorm.DB, cfg *config.Config, redisClient *redis.Client, notifications *NotificationService, approvals *ApprovalService) *SchedulerService {
	return &SchedulerService{
		db:            db,
		cfg:           cfg,
		redis:         redisClient,
		notifications: notifications,
		approvals:     approvals,
		stop:          make(chan struct{}),
	}
}

func (s *SchedulerService) Start() {
	sched := s.cfg.Scheduler

	logrus.WithFields(logrus.Fields{
		"expire_interval_min":     sched.ExpireIntervalMinutes,
		"reminder_poll_sec":       sched.ReminderPollSeconds,
		"completion_interval_min": sched.CompletionIntervalMinutes,
		"cleanup_interval_hours":  sched.CleanupIntervalHours,
	}).Info("Starting scheduler")

	s.runEvery(time.Duration(sched.ExpireIntervalMinutes)*time.Minute, "expire_overdue", s.expireOverdueRequests)
	s.runEvery(time.Duration(sched.CompletionIntervalMinutes)*time.Minute, "completion_notifications", s.retryCompletionNotifications)
	s.runEvery(time.Duration(sched.CleanupIntervalHours)*time.Hour, "token_cleanup", s.cleanupExpiredTokens)
	s.runEvery(time.Duration(sched.CleanupIntervalHours)*time.Hour, "audit_cleanup", s.cleanupAuditLogs)
	s.runEvery(time.Duration(sched.StatsIntervalHours)*time.Hour, "weekly_stats", s.logWeeklyStats)

	if s.redis != nil {
		s.runEvery(time.Duration(sched.ReminderPollSeconds)*time.Second, "reminders", s.deliverDueReminders)
	} else {
		logrus.Info("Redis unavailable, reminder delivery disabled")
	}
}

// Stop signals every loop and waits for in-flight tasks to finish.
func (s *SchedulerService) Stop() {
	close(s.stop)
	s.wg.Wait()
	logrus.Info("Scheduler stopped")
}

func (s *SchedulerService) runEvery(interval time.Duration, name string, task func()) {
	if interval <= 0 {
		logrus.WithField("task", name).Warn("Task disabled, non-positive interval")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				task()
			case <-s.stop:
				return
			}
		}
	}()
}

// expireOverdueRequests is the sweep counterpart of the lazy expiry on the
// decision path. Each request expires in its own transaction so one failure
// does not hold up the rest.
func (s *SchedulerService) expireOverdueRequests() {
	now := time.Now().UTC()

	var overdue []models.ApprovalRequest
	if err := s.db.
		Where("status = ? AND due_date IS NOT NULL AND due_date < ?", models.ApprovalStatusPending, now).
		Find(&overdue).Error; err != nil {
		logrus.WithError(err).Error("Expiry sweep query failed")
		return
	}

	expired := 0
	for i := range overdue {
		request := overdue[i]
		err := s.db.Transaction(func(tx *gorm.DB) error {
			done, err := s.approvals.ExpireRequest(tx, &request, now)
			if err != nil {
				return err
			}
			if done {
				expired++
			}
			return nil
		})
		if err != nil {
			logrus.WithError(err).WithField("request_id", request.ID).
				Error("Failed to expire approval request")
			continue
		}
		s.approvals.clearReminders(request.ID)
	}

	if expired > 0 {
		logrus.WithField("count", expired).Info("Expired overdue approval requests")
	}
}

// deliverDueReminders drains the reminder queue up to now. Members whose
// request is no longer pending are dropped without sending.
func (s *SchedulerService) deliverDueReminders() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC()
	members, err := s.redis.ZRangeByScoreWithScores(ctx, reminderQueueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		logrus.WithError(err).Error("Reminder queue poll failed")
		return
	}

	for _, entry := range members {
		member, ok := entry.Member.(string)
		if !ok {
			continue
		}

		if err := s.deliverReminder(member); err != nil {
			logrus.WithError(err).WithField("member", member).Error("Failed to deliver reminder")
			// Leave the member queued for the next poll.
			continue
		}

		if err := s.redis.ZRem(ctx, reminderQueueKey, member).Err(); err != nil {
			logrus.WithError(err).WithField("member", member).Warn("Failed to dequeue reminder")
		}
	}
}

func (s *SchedulerService) deliverReminder(member string) error {
	parts := strings.SplitN(member, ":", 2)
	if len(parts) != 2 {
		return nil // malformed member, drop it
	}
	stage := parts[0]
	requestID, err := uuid.Parse(parts[1])
	if err != nil {
		return nil
	}

	var request models.ApprovalRequest
	if err := s.db.Preload("Recipients").Preload("Requester").Preload("Document").
		First(&request, requestID).Error; err != nil {
		return nil // request gone, drop the reminder
	}
	if request.Status != models.ApprovalStatusPending {
		return nil
	}

	notified := 0
	for i := range request.Recipients {
		recipient := &request.Recipients[i]
		if recipient.Status != models.RecipientStatusPending {
			continue
		}
		if err := s.notifications.SendReminderEmail(&request, recipient); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"request_id": request.ID,
				"recipient":  recipient.RecipientEmail,
			}).Error("Failed to send reminder email")
			continue
		}
		notified++
	}

	if notified > 0 {
		return s.approvals.createAuditLog(s.db, &request.ID, nil, models.AuditActionReminderSent,
			fmt.Sprintf("reminder sent to %d pending recipient(s)", notified),
			models.JSONB{"stage": stage, "recipients_notified": notified}, "", "")
	}
	return nil
}

// retryCompletionNotifications picks up terminal requests whose requester was
// never told, usually because SMTP was down when the request resolved.
func (s *SchedulerService) retryCompletionNotifications() {
	var rows []models.ApprovalRequest
	if err := s.db.
		Where("status <> ? AND completion_notification_sent IS NULL", models.ApprovalStatusPending).
		Limit(50).
		Find(&rows).Error; err != nil {
		logrus.WithError(err).Error("Completion retry query failed")
		return
	}

	for _, row := range rows {
		s.approvals.notifyCompletion(row.ID)
	}
}

// cleanupExpiredTokens nulls out tokens on recipients of long-closed
// requests. The rows stay for history; only the capability disappears.
func (s *SchedulerService) cleanupExpiredTokens() {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.Scheduler.TokenRetentionDays)

	closedRequests := s.db.Model(&models.ApprovalRequest{}).
		Select("id").
		Where("status <> ? AND completed_at < ?", models.ApprovalStatusPending, cutoff)

	res := s.db.Model(&models.ApprovalRecipient{}).
		Where("approval_token IS NOT NULL").
		Where("approval_request_id IN (?)", closedRequests).
		Update("approval_token", nil)
	if res.Error != nil {
		logrus.WithError(res.Error).Error("Token cleanup failed")
		return
	}

	if res.RowsAffected > 0 {
		if err := s.approvals.createAuditLog(s.db, nil, nil, models.AuditActionTokenCleanup,
			fmt.Sprintf("cleared %d expired approval token(s)", res.RowsAffected),
			models.JSONB{"cleared": res.RowsAffected, "retention_days": s.cfg.Scheduler.TokenRetentionDays}, "", ""); err != nil {
			logrus.WithError(err).Warn("Failed to audit token cleanup")
		}
		logrus.WithField("cleared", res.RowsAffected).Info("Cleared expired approval tokens")
	}
}

// cleanupAuditLogs trims audit history past the retention window in batches.
// Raw SQL because DELETE ... LIMIT is not portable and the rows must go for
// real, not soft-delete.
func (s *SchedulerService) cleanupAuditLogs() {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.Scheduler.AuditRetentionDays)
	batch := s.cfg.Scheduler.AuditCleanupBatchSize

	var total int64
	for {
		res := s.db.Exec(
			"DELETE FROM audit_logs WHERE id IN (SELECT id FROM audit_logs WHERE created_at < ? LIMIT ?)",
			cutoff, batch)
		if res.Error != nil {
			logrus.WithError(res.Error).Error("Audit cleanup failed")
			return
		}
		total += res.RowsAffected
		if res.RowsAffected < int64(batch) {
			break
		}
	}

	if total > 0 {
		logrus.WithFields(logrus.Fields{
			"deleted":        total,
			"retention_days": s.cfg.Scheduler.AuditRetentionDays,
		}).Info("Trimmed audit history")
	}
}

// logWeeklyStats reports the last seven days of request activity.
func (s *SchedulerService) logWeeklyStats() {
	since := time.Now().UTC().AddDate(0, 0, -7)

	var rows []struct {
		Status string
		Count  int64
	}
	if err := s.db.Model(&models.ApprovalRequest{}).
		Select("status, count(*) as count").
		Where("created_at >= ?", since).
		Group("status").
		Scan(&rows).Error; err != nil {
		logrus.WithError(err).Error("Weekly stats query failed")
		return
	}

	var activeRequesters int64
	if err := s.db.Model(&models.ApprovalRequest{}).
		Where("created_at >= ?", since).
		Distinct("requester_id").
		Count(&activeRequesters).Error; err != nil {
		logrus.WithError(err).Error("Weekly stats requester count failed")
		return
	}

	fields := logrus.Fields{"active_requesters": activeRequesters}
	for _, row := range rows {
		fields[row.Status] = row.Count
	}
	logrus.WithFields(fields).Info("Weekly approval activity")
}
