// internal/handlers/helpers_test.go
package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/docuflow/dms-backend/internal/config"
	"github.com/docuflow/dms-backend/internal/i18n"
	"github.com/docuflow/dms-backend/internal/middleware"
	"github.com/docuflow/dms-backend/internal/models"
	"github.com/docuflow/dms-backend/internal/services"
	"github.com/docuflow/dms-backend/internal/utils"
)

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

func testConfig(t *testing.T) *config.Config {
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
			LocalPath:         t.TempDir(),
			MaxSizeBytes:      1024 * 1024,
			AllowedExtensions: []string{".pdf", ".txt"},
			AllowedMimeTypes:  []string{"application/pdf", "text/plain"},
		},
		Email: config.EmailConfig{
			FromEmail: "noreply@dms.local",
			FromName:  "DMS Tool",
		},
		Frontend: config.FrontendConfig{BaseURL: "http://localhost:3000"},
	}
}

// newTestRouter mounts the API routes on fresh services backed by the test
// database. The rate limiters stay off: their buckets are shared process-wide
// and repeated test requests would trip them.
func newTestRouter(t *testing.T, db *gorm.DB, cfg *config.Config) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	require.NoError(t, i18n.Initialize("en"))
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	notificationService := services.NewNotificationService(db, cfg)
	storageService, err := services.NewStorageService(cfg)
	require.NoError(t, err)

	authHandler := NewAuthHandler(services.NewAuthService(db, cfg))
	documentHandler := NewDocumentHandler(services.NewDocumentService(db, cfg, storageService))
	approvalHandler := NewApprovalHandler(services.NewApprovalService(db, cfg, nil, notificationService))
	adminHandler := NewAdminHandler(services.NewAdminService(db))

	r := gin.New()
	r.Use(middleware.I18nMiddleware())

	v1 := r.Group("/api/v1")

	auth := v1.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)
		auth.GET("/me", middleware.AuthRequired(), authHandler.GetProfile)
		auth.PUT("/me", middleware.AuthRequired(), authHandler.UpdateProfile)
	}

	documents := v1.Group("/documents")
	documents.Use(middleware.AuthRequired())
	{
		documents.POST("", documentHandler.Upload)
		documents.GET("", documentHandler.List)
		documents.GET("/:id", documentHandler.Get)
		documents.GET("/:id/download", documentHandler.Download)
		documents.DELETE("/:id", documentHandler.Delete)
	}

	approvals := v1.Group("/approvals")
	{
		approvals.GET("/token/:token/info", approvalHandler.TokenInfo)
		approvals.POST("/submit/:token", approvalHandler.SubmitDecision)

		protected := approvals.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.POST("", approvalHandler.Create)
			protected.GET("", approvalHandler.ListMine)
			protected.GET("/for-me", approvalHandler.ListForMe)
			protected.GET("/stats", approvalHandler.Stats)
			protected.GET("/:id", approvalHandler.GetByID)
			protected.POST("/:id/cancel", approvalHandler.Cancel)
			protected.DELETE("/:id", approvalHandler.Delete)
			protected.GET("/:id/audit", approvalHandler.AuditTrail)
		}
	}

	admin := v1.Group("/admin")
	admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
	{
		admin.GET("/users", adminHandler.GetUsers)
		admin.PUT("/users/:id", adminHandler.UpdateUser)
		admin.GET("/stats", adminHandler.GetStats)
	}

	return r
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

func bearerToken(t *testing.T, cfg *config.Config, user *models.User) string {
	t.Helper()

	token, err := utils.GenerateJWT(user.ID, user.Email, string(user.Role), cfg.JWT.AccessTokenTTL)
	require.NoError(t, err)
	return "Bearer " + token
}

// doJSON performs a request with an optional JSON payload and Authorization
// header against the test router.
func doJSON(t *testing.T, r http.Handler, method, path, auth string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// dataField digs into the success envelope: body.data[key].
func dataField(t *testing.T, body map[string]interface{}, key string) interface{} {
	t.Helper()

	data, ok := body["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object")
	return data[key]
}

// errorField returns body.error[key] from the error envelope.
func errorField(t *testing.T, body map[string]interface{}, key string) interface{} {
	t.Helper()

	errObj, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "response has no error object")
	return errObj[key]
}
