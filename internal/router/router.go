// internal/router/router.go
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/docuflow/dms-backend/internal/config"
	"github.com/docuflow/dms-backend/internal/handlers"
	"github.com/docuflow/dms-backend/internal/middleware"
	"github.com/docuflow/dms-backend/internal/services"
	"github.com/docuflow/dms-backend/internal/utils"
)

// Initialize wires services, handlers and routes. The returned scheduler is
// started by main and shares the service instances with the HTTP layer.
func Initialize(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) (*gin.Engine, *services.SchedulerService) {
	// Initialize services
	notificationService := services.NewNotificationService(db, cfg)
	storageService, err := services.NewStorageService(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize storage")
	}

	authService := services.NewAuthService(db, cfg)
	documentService := services.NewDocumentService(db, cfg, storageService)
	approvalService := services.NewApprovalService(db, cfg, redisClient, notificationService)
	adminService := services.NewAdminService(db)
	schedulerService := services.NewSchedulerService(db, cfg, redisClient, notificationService, approvalService)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	documentHandler := handlers.NewDocumentHandler(documentService)
	approvalHandler := handlers.NewApprovalHandler(approvalService)
	adminHandler := handlers.NewAdminHandler(adminService)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	r.Use(middleware.I18nMiddleware())
	r.Use(middleware.GeneralRateLimit())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		status := "healthy"
		dbStatus := "up"
		if sqlDB, err := db.DB(); err != nil || sqlDB.Ping() != nil {
			status = "degraded"
			dbStatus = "down"
		}

		code := http.StatusOK
		if status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status,
			"database":  dbStatus,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Authentication routes
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.GET("/me", middleware.AuthRequired(), authHandler.GetProfile)
			auth.PUT("/me", middleware.AuthRequired(), authHandler.UpdateProfile)
		}

		// Document routes
		documents := v1.Group("/documents")
		documents.Use(middleware.AuthRequired())
		{
			documents.POST("", middleware.UploadRateLimit(), documentHandler.Upload)
			documents.GET("", documentHandler.List)
			documents.GET("/:id", documentHandler.Get)
			documents.GET("/:id/download", documentHandler.Download)
			documents.DELETE("/:id", documentHandler.Delete)
		}

		// Approval routes
		approvals := v1.Group("/approvals")
		{
			// Token endpoints are public: the token itself is the credential.
			approvals.GET("/token/:token/info", approvalHandler.TokenInfo)
			approvals.POST("/submit/:token", middleware.DecisionRateLimit(), approvalHandler.SubmitDecision)

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

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.GET("/users", adminHandler.GetUsers)
			admin.PUT("/users/:id", adminHandler.UpdateUser)
			admin.GET("/stats", adminHandler.GetStats)
		}
	}

	return r, schedulerService
}
