// internal/services/helpers_test.go
package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/docuflow/dms-backend/internal/config"
	"github.com/docuflow/dms-backend/internal/models"
)

// newTestDB opens an isolated in-memory database. A single connection keeps
// every gorm session on the same SQLite instance.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Document{},
		&models.ApprovalRequest{},
		&models.ApprovalRecipient{},
		&models.AuditLog{},
	))

	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		JWT: config.JWTConfig{
			SecretKey:       "test-secret",
			AccessTokenTTL:  1,
			RefreshTokenTTL: 24,
		},
		Approval: config.ApprovalConfig{
			MinRecipients: 1,
			MaxRecipients: 20,
		},
		Upload: config.UploadConfig{
			MaxSizeBytes:      1024 * 1024,
			AllowedExtensions: []string{".pdf", ".txt"},
			AllowedMimeTypes:  []string{"application/pdf", "text/plain"},
		},
		Scheduler: config.SchedulerConfig{
			ExpireIntervalMinutes:     5,
			ReminderPollSeconds:       60,
			CompletionIntervalMinutes: 10,
			CleanupIntervalHours:      24,
			StatsIntervalHours:        168,
			TokenRetentionDays:        30,
			AuditRetentionDays:        365,
			AuditCleanupBatchSize:     100,
		},
		Email: config.EmailConfig{
			FromEmail: "noreply@dms.local",
			FromName:  "DMS Tool",
		},
		Frontend: config.FrontendConfig{BaseURL: "http://localhost:3000"},
	}
}

func createTestUser(t *testing.T, db *gorm.DB, email string, role models.UserRole) *models.User {
	t.Helper()

	user := &models.User{
		Email:    email,
		FullName: "Test User",
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, user.SetPassword("Password123!"))
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestDocument(t *testing.T, db *gorm.DB, ownerID uuid.UUID) *models.Document {
	t.Helper()

	document := &models.Document{
		OwnerID:          ownerID,
		Filename:         "documents/report.pdf",
		OriginalFilename: "report.pdf",
		ContentType:      "application/pdf",
		SizeBytes:        1024,
		FileHash:         "d2a84f4b8b650937ec8f73cd8be2c74add5a911ba64df27458ed8229da804a26",
		StoragePath:      "documents/report.pdf",
	}
	require.NoError(t, db.Create(document).Error)
	return document
}
