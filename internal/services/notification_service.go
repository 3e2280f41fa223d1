// internal/services/notification_service.go
package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"time"

	"github.com/hako/durafmt"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/docuflow/dms-backend/internal/config"
	"github.com/docuflow/dms-backend/internal/models"
)

type NotificationService struct {
	db     *gorm.DB
	config *config.Config
}

type EmailTemplate struct {
	Subject string
	Body    string
}

func NewNotificationService(db *gorm.DB, config *config.Config) *NotificationService {
	return &NotificationService{
		db:     db,
		config: config,
	}
}

// SendApprovalInvitations emails every recipient their personal decision
// link. Failures are counted, not fatal: the request exists regardless of
// delivery.
func (s *NotificationService) SendApprovalInvitations(request *models.ApprovalRequest, recipients []models.ApprovalRecipient) (sent, failed int) {
	for i := range recipients {
		recipient := &recipients[i]
		if recipient.ApprovalToken == nil {
			failed++
			continue
		}

		data := map[string]interface{}{
			"RecipientName": recipient.RecipientName,
			"RequesterName": request.Requester.FullName,
			"Title":         request.Title,
			"Description":   request.Description,
			"DocumentName":  request.Document.OriginalFilename,
			"ApprovalURL":   fmt.Sprintf("%s/approve/%s", s.config.Frontend.BaseURL, *recipient.ApprovalToken),
			"DueDate":       formatDueDate(request.DueDate),
		}

		tmpl := s.getEmailTemplate("approval_invitation")
		body, err := s.renderTemplate(tmpl.Body, data)
		if err != nil {
			logrus.WithError(err).Error("Failed to render invitation template")
			failed++
			continue
		}

		subject := fmt.Sprintf("Approval requested: %s", request.Title)
		if err := s.sendEmail(recipient.RecipientEmail, subject, body); err != nil {
			logrus.WithError(err).WithField("recipient", recipient.RecipientEmail).
				Error("Failed to send approval invitation")
			failed++
			continue
		}
		sent++
	}

	return sent, failed
}

// SendReminderEmail nudges a recipient who has not decided yet.
func (s *NotificationService) SendReminderEmail(request *models.ApprovalRequest, recipient *models.ApprovalRecipient) error {
	if recipient.ApprovalToken == nil {
		return fmt.Errorf("recipient %s has no usable token", recipient.ID)
	}

	remaining := ""
	if request.DueDate != nil {
		until := time.Until(*request.DueDate)
		if until > 0 {
			remaining = durafmt.Parse(until).LimitFirstN(2).String()
		}
	}

	data := map[string]interface{}{
		"RecipientName": recipient.RecipientName,
		"Title":         request.Title,
		"DocumentName":  request.Document.OriginalFilename,
		"ApprovalURL":   fmt.Sprintf("%s/approve/%s", s.config.Frontend.BaseURL, *recipient.ApprovalToken),
		"TimeRemaining": remaining,
		"DueDate":       formatDueDate(request.DueDate),
	}

	tmpl := s.getEmailTemplate("approval_reminder")
	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render reminder template: %w", err)
	}

	subject := fmt.Sprintf("Reminder: approval pending for %s", request.Title)
	return s.sendEmail(recipient.RecipientEmail, subject, body)
}

// SendCompletionNotification tells the requester how the request ended.
func (s *NotificationService) SendCompletionNotification(request *models.ApprovalRequest) error {
	type recipientLine struct {
		Name   string
		Email  string
		Status string
	}

	lines := make([]recipientLine, 0, len(request.Recipients))
	for _, r := range request.Recipients {
		lines = append(lines, recipientLine{
			Name:   r.RecipientName,
			Email:  r.RecipientEmail,
			Status: string(r.Status),
		})
	}

	completedAt := ""
	if request.CompletedAt != nil {
		completedAt = request.CompletedAt.Format("02/01/2006 15:04")
	}

	data := map[string]interface{}{
		"RequesterName": request.Requester.FullName,
		"Title":         request.Title,
		"FinalStatus":   string(request.Status),
		"Reason":        request.CompletionReason,
		"CompletedAt":   completedAt,
		"Recipients":    lines,
		"RequestURL":    fmt.Sprintf("%s/approvals/%s", s.config.Frontend.BaseURL, request.ID),
	}

	tmpl := s.getEmailTemplate("approval_completed")
	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render completion template: %w", err)
	}

	subject := fmt.Sprintf("Approval %s: %s", request.Status, request.Title)
	return s.sendEmail(request.Requester.Email, subject, body)
}

// SendCancellationNotifications tells pending recipients their token is dead.
func (s *NotificationService) SendCancellationNotifications(request *models.ApprovalRequest, recipients []models.ApprovalRecipient) {
	for i := range recipients {
		recipient := &recipients[i]

		data := map[string]interface{}{
			"RecipientName": recipient.RecipientName,
			"Title":         request.Title,
			"RequesterName": request.Requester.FullName,
		}

		tmpl := s.getEmailTemplate("approval_cancelled")
		body, err := s.renderTemplate(tmpl.Body, data)
		if err != nil {
			logrus.WithError(err).Error("Failed to render cancellation template")
			continue
		}

		subject := fmt.Sprintf("Approval cancelled: %s", request.Title)
		if err := s.sendEmail(recipient.RecipientEmail, subject, body); err != nil {
			logrus.WithError(err).WithField("recipient", recipient.RecipientEmail).
				Error("Failed to send cancellation notice")
		}
	}
}

// Helper methods
func (s *NotificationService) sendEmail(to, subject, body string) error {
	if s.config.Email.SMTPHost == "" {
		// Email not configured, just log
		logrus.WithFields(logrus.Fields{
			"to":      to,
			"subject": subject,
		}).Info("SMTP not configured, skipping email")
		return nil
	}

	// Setup authentication
	auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, s.config.Email.SMTPHost)

	// Compose message
	msg := []byte(fmt.Sprintf(
		"From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		s.config.Email.FromName, s.config.Email.FromEmail, to, subject, body))

	// Send email
	addr := fmt.Sprintf("%s:%s", s.config.Email.SMTPHost, s.config.Email.SMTPPort)
	return smtp.SendMail(addr, auth, s.config.Email.FromEmail, []string{to}, msg)
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func formatDueDate(due *time.Time) string {
	if due == nil {
		return "no due date"
	}
	return due.Format("02/01/2006 15:04")
}

func (s *NotificationService) getEmailTemplate(templateType string) EmailTemplate {
	templates := map[string]EmailTemplate{
		"approval_invitation": {
			Subject: "Approval requested",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Approval requested</h2>
	<p>Hello {{.RecipientName}},</p>
	<p>{{.RequesterName}} asked you to review "{{.DocumentName}}".</p>
	<p><strong>{{.Title}}</strong></p>
	{{if .Description}}<p>{{.Description}}</p>{{end}}
	<p>Due: {{.DueDate}}</p>
	<a href="{{.ApprovalURL}}">Review and decide</a>
	<p>This link is personal and can be used once.</p>
</body>
</html>`,
		},
		"approval_reminder": {
			Subject: "Approval reminder",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Still waiting on your decision</h2>
	<p>Hello {{.RecipientName}},</p>
	<p>"{{.Title}}" ({{.DocumentName}}) is still pending your approval.</p>
	{{if .TimeRemaining}}<p>Time remaining: {{.TimeRemaining}}</p>{{end}}
	<p>Due: {{.DueDate}}</p>
	<a href="{{.ApprovalURL}}">Review and decide</a>
</body>
</html>`,
		},
		"approval_completed": {
			Subject: "Approval completed",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Approval {{.FinalStatus}}</h2>
	<p>Hello {{.RequesterName}},</p>
	<p>Your request "{{.Title}}" finished as <strong>{{.FinalStatus}}</strong> ({{.Reason}}) on {{.CompletedAt}}.</p>
	<ul>
	{{range .Recipients}}<li>{{.Name}} &lt;{{.Email}}&gt;: {{.Status}}</li>
	{{end}}</ul>
	<a href="{{.RequestURL}}">View the request</a>
</body>
</html>`,
		},
		"approval_cancelled": {
			Subject: "Approval cancelled",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Approval cancelled</h2>
	<p>Hello {{.RecipientName}},</p>
	<p>{{.RequesterName}} cancelled the approval request "{{.Title}}". No action is needed and your link no longer works.</p>
</body>
</html>`,
		},
	}

	if tmpl, exists := templates[templateType]; exists {
		return tmpl
	}

	// Default template
	return EmailTemplate{
		Subject: "Notification",
		Body:    "<p>{{.Message}}</p>",
	}
}
