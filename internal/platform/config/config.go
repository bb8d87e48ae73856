package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr                   string
	DatabaseURL            string
	JWTSecret              string
	DataEncryptionKey      string
	FrontendDir            string
	MigrationsDir          string
	Environment            string
	PublicURL              string
	SeedAdminEmail         string
	SeedAdminPassword      string
	EmailFrom              string
	EmailEnabled           bool
	SMTPHost               string
	SMTPPort               int
	SMTPUser               string
	SMTPPassword           string
	SMTPUseTLS             bool
	RunMigrations          bool
	RunSeed                bool
	MaxBodyBytes           int64
	RateLimitPerMinute     int
	AllocationExpiryEvery  time.Duration
	TaskReminderEvery      time.Duration
	MetricsEnabled         bool
	AccessLogPath          string
	AccessLogLevel         string
	BlobDriver             string
	BlobS3Bucket           string
	BlobS3Region           string
	BlobS3Endpoint         string
	BlobS3PathStyle        bool
	BlobS3AccessKeyID      string
	BlobS3SecretAccessKey  string
	WebSocketAllowedOrigin []string
	NotificationDefaults   []NotificationDefault

	// fileErr holds problems found while reading CONFIG_FILE.
	fileErr error
}

// NotificationDefault overrides the built-in channel defaults for a role and
// notification type. Type "*" applies to every type.
type NotificationDefault struct {
	Role  string
	Type  string
	InApp bool
	Email bool
}

// Load reads CONFIG_FILE (when set) for defaults and then applies environment
// overrides.
func Load() Config {
	file, err := LoadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		cfg := loadWith(FileConfig{})
		cfg.fileErr = err
		return cfg
	}
	return loadWith(file)
}

func loadWith(file FileConfig) Config {
	file.normalize()
	allocationExpiry, expiryErr := durationOr("jobs.allocation_expiry_interval", file.Jobs.AllocationExpiry, 24*time.Hour)
	taskReminders, reminderErr := durationOr("jobs.task_reminder_interval", file.Jobs.TaskReminders, time.Hour)
	return Config{
		Addr:                   getEnv("APP_ADDR", strOr(file.Addr, ":8080")),
		DatabaseURL:            getEnv("DATABASE_URL", strOr(file.DatabaseURL, "")),
		JWTSecret:              getEnv("JWT_SECRET", strOr(file.JWTSecret, "")),
		DataEncryptionKey:      getEnv("DATA_ENCRYPTION_KEY", strOr(file.DataEncryptionKey, "")),
		FrontendDir:            getEnv("FRONTEND_DIR", strOr(file.FrontendDir, "frontend/dist")),
		MigrationsDir:          getEnv("MIGRATIONS_DIR", strOr(file.MigrationsDir, "migrations")),
		Environment:            getEnv("APP_ENV", strOr(file.Environment, "development")),
		PublicURL:              getEnv("PUBLIC_URL", strOr(file.PublicURL, "http://localhost:8080")),
		SeedAdminEmail:         getEnv("SEED_ADMIN_EMAIL", strOr(file.SeedAdminEmail, "")),
		SeedAdminPassword:      getEnv("SEED_ADMIN_PASSWORD", ""),
		EmailFrom:              getEnv("EMAIL_FROM", strOr(file.Email.From, "no-reply@example.com")),
		EmailEnabled:           getEnvBool("EMAIL_ENABLED", boolOr(file.Email.Enabled, false)),
		SMTPHost:               getEnv("SMTP_HOST", strOr(file.Email.SMTPHost, "")),
		SMTPPort:               getEnvInt("SMTP_PORT", intOr(file.Email.SMTPPort, 587)),
		SMTPUser:               getEnv("SMTP_USER", strOr(file.Email.SMTPUser, "")),
		SMTPPassword:           getEnv("SMTP_PASSWORD", ""),
		SMTPUseTLS:             getEnvBool("SMTP_USE_TLS", boolOr(file.Email.SMTPUseTLS, true)),
		RunMigrations:          getEnvBool("RUN_MIGRATIONS", boolOr(file.RunMigrations, true)),
		RunSeed:                getEnvBool("RUN_SEED", boolOr(file.RunSeed, true)),
		MaxBodyBytes:           int64(getEnvInt("MAX_BODY_BYTES", intOr(file.MaxBodyBytes, 1048576))),
		RateLimitPerMinute:     getEnvInt("RATE_LIMIT_PER_MINUTE", intOr(file.RateLimitPerMinute, 60)),
		AllocationExpiryEvery:  getEnvDuration("ALLOCATION_EXPIRY_INTERVAL", allocationExpiry),
		TaskReminderEvery:      getEnvDuration("TASK_REMINDER_INTERVAL", taskReminders),
		MetricsEnabled:         getEnvBool("METRICS_ENABLED", boolOr(file.MetricsEnabled, true)),
		AccessLogPath:          getEnv("ACCESS_LOG_PATH", strOr(file.AccessLog.Path, "")),
		AccessLogLevel:         getEnv("ACCESS_LOG_LEVEL", strOr(file.AccessLog.Level, "info")),
		BlobDriver:             getEnv("BLOB_DRIVER", strOr(file.Blob.Driver, "memory")),
		BlobS3Bucket:           getEnv("BLOB_S3_BUCKET", strOr(file.Blob.Bucket, "")),
		BlobS3Region:           getEnv("BLOB_S3_REGION", strOr(file.Blob.Region, "us-east-1")),
		BlobS3Endpoint:         getEnv("BLOB_S3_ENDPOINT", strOr(file.Blob.Endpoint, "")),
		BlobS3PathStyle:        getEnvBool("BLOB_S3_PATH_STYLE", boolOr(file.Blob.PathStyle, false)),
		BlobS3AccessKeyID:      getEnv("BLOB_S3_ACCESS_KEY_ID", ""),
		BlobS3SecretAccessKey:  getEnv("BLOB_S3_SECRET_ACCESS_KEY", ""),
		WebSocketAllowedOrigin: getEnvList("WS_ALLOWED_ORIGINS", file.AllowedOrigins),
		NotificationDefaults:   file.notificationDefaults(),
		fileErr:                errors.Join(expiryErr, reminderErr),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (c Config) Validate() error {
	if c.fileErr != nil {
		return fmt.Errorf("config file: %w", c.fileErr)
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Environment == "production" {
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for encryption at rest")
		}
		if c.RunSeed && strings.TrimSpace(c.SeedAdminPassword) == "" {
			return fmt.Errorf("SEED_ADMIN_PASSWORD must be changed or RUN_SEED disabled in production")
		}
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must be set when EMAIL_ENABLED is true")
	}
	switch c.BlobDriver {
	case "memory":
	case "s3":
		if strings.TrimSpace(c.BlobS3Bucket) == "" {
			return fmt.Errorf("BLOB_S3_BUCKET must be set when BLOB_DRIVER is s3")
		}
	default:
		return fmt.Errorf("unknown BLOB_DRIVER %q", c.BlobDriver)
	}
	for _, def := range c.NotificationDefaults {
		if strings.TrimSpace(def.Role) == "" || strings.TrimSpace(def.Type) == "" {
			return fmt.Errorf("notification_default blocks need a role label and a type")
		}
	}
	return nil
}
