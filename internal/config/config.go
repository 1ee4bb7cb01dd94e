// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	AWS         AWSConfig
	Payment     PaymentConfig
	Email       EmailConfig
	Admin       AdminConfig
	Delivery    DeliveryConfig
	Security    SecurityConfig
}

type ServerConfig struct {
	Port           string
	Host           string
	ReadTimeout    int
	WriteTimeout   int
	IdleTimeout    int
	BaseURL        string
	AllowedOrigins []string
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

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	CloudFrontURL   string
}

type PaymentConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
}

type AdminConfig struct {
	JWTSecret   string
	TokenTTL    int // in hours
	APIUsername string
	APIPassword string
}

// DeliveryConfig governs token issuance and license creation defaults.
type DeliveryConfig struct {
	DefaultExpirationHours    int
	EnterpriseExpirationHours int
	DefaultMaxDownloads       int
	DefaultMaxActivations     int
	LicenseValidityDays       int
	WatermarkThreshold        float64
}

// SecurityConfig governs the rate-limit windows and anti-piracy ceilings.
type SecurityConfig struct {
	RateLimitBackend     string // "memory" or "redis"
	DownloadWindow       time.Duration
	DownloadMax          int
	LicenseWindow        time.Duration
	LicenseMax           int
	ActivationWindow     time.Duration
	ActivationMax        int
	PiracyMaxPerIP       int
	PiracyLookbackWindow time.Duration
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			Host:           getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:    getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout:   getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:    getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
			BaseURL:        getEnv("SERVER_BASE_URL", "http://localhost:8080"),
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "vendora"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "silent"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "vendora-digital-goods"),
			CloudFrontURL:   getEnv("AWS_CLOUDFRONT_URL", ""),
		},
		Payment: PaymentConfig{
			StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Currency:            getEnv("PAYMENT_CURRENCY", "usd"),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("FROM_EMAIL", "delivery@vendora.shop"),
			FromName:     getEnv("FROM_NAME", "Vendora"),
		},
		Admin: AdminConfig{
			JWTSecret:   getEnv("ADMIN_JWT_SECRET", "change-me-in-production"),
			TokenTTL:    getEnvAsInt("ADMIN_TOKEN_TTL", 12),
			APIUsername: getEnv("ADMIN_API_USERNAME", "operator"),
			APIPassword: getEnv("ADMIN_API_PASSWORD", ""),
		},
		Delivery: DeliveryConfig{
			DefaultExpirationHours:    getEnvAsInt("DELIVERY_EXPIRATION_HOURS", 24),
			EnterpriseExpirationHours: getEnvAsInt("DELIVERY_ENTERPRISE_EXPIRATION_HOURS", 72),
			DefaultMaxDownloads:       getEnvAsInt("DELIVERY_MAX_DOWNLOADS", 5),
			DefaultMaxActivations:     getEnvAsInt("DELIVERY_MAX_ACTIVATIONS", 3),
			LicenseValidityDays:       getEnvAsInt("DELIVERY_LICENSE_VALIDITY_DAYS", 365),
			WatermarkThreshold:        getEnvAsFloat("DELIVERY_WATERMARK_THRESHOLD", 50.0),
		},
		Security: SecurityConfig{
			RateLimitBackend:     getEnv("RATE_LIMIT_BACKEND", "memory"),
			DownloadWindow:       time.Duration(getEnvAsInt("RATE_LIMIT_DOWNLOAD_WINDOW_MINUTES", 15)) * time.Minute,
			DownloadMax:          getEnvAsInt("RATE_LIMIT_DOWNLOAD_MAX", 10),
			LicenseWindow:        time.Duration(getEnvAsInt("RATE_LIMIT_LICENSE_WINDOW_MINUTES", 5)) * time.Minute,
			LicenseMax:           getEnvAsInt("RATE_LIMIT_LICENSE_MAX", 50),
			ActivationWindow:     time.Duration(getEnvAsInt("RATE_LIMIT_ACTIVATION_WINDOW_MINUTES", 15)) * time.Minute,
			ActivationMax:        getEnvAsInt("RATE_LIMIT_ACTIVATION_MAX", 3),
			PiracyMaxPerIP:       getEnvAsInt("PIRACY_MAX_DOWNLOADS_PER_IP", 5),
			PiracyLookbackWindow: time.Duration(getEnvAsInt("PIRACY_LOOKBACK_MINUTES", 15)) * time.Minute,
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.Admin.JWTSecret == "change-me-in-production" && c.IsProduction() {
		return fmt.Errorf("admin JWT secret must be changed in production")
	}

	if c.Database.Password == "" && c.IsProduction() {
		return fmt.Errorf("database password is required in production")
	}

	if c.Admin.APIPassword == "" && c.IsProduction() {
		return fmt.Errorf("admin API password is required in production")
	}

	if c.Security.RateLimitBackend != "memory" && c.Security.RateLimitBackend != "redis" {
		return fmt.Errorf("unknown rate limit backend %q", c.Security.RateLimitBackend)
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
