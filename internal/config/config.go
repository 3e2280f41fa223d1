// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	AWS         AWSConfig
	Upload      UploadConfig
	Approval    ApprovalConfig
	Scheduler   SchedulerConfig
	Email       EmailConfig
	I18n        I18nConfig
	CORS        CORSConfig
	Frontend    FrontendConfig
	Admin       AdminConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	SecretKey       string
	AccessTokenTTL  int // in hours
	RefreshTokenTTL int // in hours
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
}

type UploadConfig struct {
	LocalPath         string
	MaxSizeBytes      int64
	AllowedExtensions []string
	AllowedMimeTypes  []string
}

type ApprovalConfig struct {
	MinRecipients int
	MaxRecipients int
}

type SchedulerConfig struct {
	ExpireIntervalMinutes     int
	ReminderPollSeconds       int
	CompletionIntervalMinutes int
	CleanupIntervalHours      int
	StatsIntervalHours        int
	TokenRetentionDays        int
	AuditRetentionDays        int
	AuditCleanupBatchSize     int
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
}

type I18nConfig struct {
	DefaultLocale string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type FrontendConfig struct {
	BaseURL string
}

type AdminConfig struct {
	Email    string
	Password string
	FullName string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "dms"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			SecretKey:       getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			AccessTokenTTL:  getEnvAsInt("JWT_ACCESS_TTL", 24),   // 24 hours
			RefreshTokenTTL: getEnvAsInt("JWT_REFRESH_TTL", 168), // 7 days
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", ""),
		},
		Upload: UploadConfig{
			LocalPath:    getEnv("UPLOAD_LOCAL_PATH", "./storage/documents"),
			MaxSizeBytes: int64(getEnvAsInt("UPLOAD_MAX_SIZE_MB", 10)) * 1024 * 1024,
			AllowedExtensions: getEnvAsSlice("UPLOAD_ALLOWED_EXTENSIONS",
				[]string{".pdf", ".doc", ".docx", ".txt", ".jpg", ".jpeg", ".png"}),
			AllowedMimeTypes: getEnvAsSlice("UPLOAD_ALLOWED_MIME_TYPES", []string{
				"application/pdf",
				"application/msword",
				"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
				"text/plain",
				"image/jpeg",
				"image/png",
			}),
		},
		Approval: ApprovalConfig{
			MinRecipients: getEnvAsInt("APPROVAL_MIN_RECIPIENTS", 1),
			MaxRecipients: getEnvAsInt("APPROVAL_MAX_RECIPIENTS", 20),
		},
		Scheduler: SchedulerConfig{
			ExpireIntervalMinutes:     getEnvAsInt("SCHEDULER_EXPIRE_INTERVAL_MIN", 5),
			ReminderPollSeconds:       getEnvAsInt("SCHEDULER_REMINDER_POLL_SEC", 60),
			CompletionIntervalMinutes: getEnvAsInt("SCHEDULER_COMPLETION_INTERVAL_MIN", 10),
			CleanupIntervalHours:      getEnvAsInt("SCHEDULER_CLEANUP_INTERVAL_HOURS", 24),
			StatsIntervalHours:        getEnvAsInt("SCHEDULER_STATS_INTERVAL_HOURS", 168),
			TokenRetentionDays:        getEnvAsInt("SCHEDULER_TOKEN_RETENTION_DAYS", 30),
			AuditRetentionDays:        getEnvAsInt("SCHEDULER_AUDIT_RETENTION_DAYS", 365),
			AuditCleanupBatchSize:     getEnvAsInt("SCHEDULER_AUDIT_CLEANUP_BATCH", 1000),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("FROM_EMAIL", "noreply@dms.local"),
			FromName:     getEnv("FROM_NAME", "DMS Tool"),
		},
		I18n: I18nConfig{
			DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Frontend: FrontendConfig{
			BaseURL: getEnv("FRONTEND_BASE_URL", "http://localhost:3000"),
		},
		Admin: AdminConfig{
			Email:    getEnv("ADMIN_EMAIL", "admin@dms.local"),
			Password: getEnv("ADMIN_PASSWORD", ""),
			FullName: getEnv("ADMIN_FULL_NAME", "System Administrator"),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Approval.MinRecipients < 1 || c.Approval.MaxRecipients < c.Approval.MinRecipients {
		return fmt.Errorf("invalid approval recipient bounds: min=%d max=%d",
			c.Approval.MinRecipients, c.Approval.MaxRecipients)
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
