// Package config provides configuration management for the application.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the application.
type Config struct {
	// AWS
	AWSRegion string
	S3Bucket  string

	// Database
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string

	// Upload limits
	MaxBatchRows int

	// Processing
	BatchSize         int
	MaxRetries        int
	BackoffBaseMs     int
	DispatchWorkers   int
	DispatchAttempts  int
	ShutdownTimeoutMs int

	// Fake payment provider
	ProviderSeed        int64
	ProviderSuccessRate float64
	ProviderLatencyMs   int

	// SES
	SESSenderEmail string

	// Auth: comma-separated token:user:role entries
	AuthTokens string

	// Application
	Stage    string
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	_ = godotenv.Load()

	cfg := &Config{
		// AWS
		AWSRegion: getEnv("AWS_REGION", "us-east-1"),
		S3Bucket:  getEnv("S3_BUCKET", "payroll-batch-uploads-dev"),

		// Database
		DBHost:     getEnv("DB_HOST", getEnv("PAYROLL_DB_HOST", "localhost")),
		DBPort:     getEnvInt("DB_PORT", getEnvInt("PAYROLL_DB_PORT", 5432)),
		DBName:     getEnv("DB_NAME", getEnv("PAYROLL_DB_NAME", "payroll_engine")),
		DBUser:     getEnv("DB_USER", getEnv("PAYROLL_DB_USER", "postgres")),
		DBPassword: getEnv("DB_PASSWORD", getEnv("PAYROLL_DB_PASSWORD", "")),

		// Upload limits
		MaxBatchRows: getEnvInt("MAX_BATCH_ROWS", 5000),

		// Processing
		BatchSize:         getEnvInt("BATCH_SIZE", 10),
		MaxRetries:        getEnvInt("MAX_RETRIES", 3),
		BackoffBaseMs:     getEnvInt("BACKOFF_BASE_MS", 1000),
		DispatchWorkers:   getEnvInt("DISPATCH_WORKERS", 4),
		DispatchAttempts:  getEnvInt("DISPATCH_ATTEMPTS", 1),
		ShutdownTimeoutMs: getEnvInt("SHUTDOWN_TIMEOUT_MS", 30000),

		// Fake payment provider
		ProviderSeed:        int64(getEnvInt("PROVIDER_SEED", 42)),
		ProviderSuccessRate: getEnvFloat("PROVIDER_SUCCESS_RATE", 0.9),
		ProviderLatencyMs:   getEnvInt("PROVIDER_LATENCY_MS", 50),

		// SES
		SESSenderEmail: getEnv("SES_SENDER_EMAIL", ""),

		// Auth
		AuthTokens: getEnv("AUTH_TOKENS", ""),

		// Application
		Stage:    getEnv("STAGE", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// DatabaseURL returns the PostgreSQL connection string.
func (c *Config) DatabaseURL() string {
	sslMode := "require" // Use SSL for RDS
	if c.DBHost == "localhost" || c.DBHost == "127.0.0.1" {
		sslMode = "disable" // Disable SSL for local development
	}
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + strconv.Itoa(c.DBPort) + "/" + c.DBName + "?sslmode=" + sslMode
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as int or returns a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat retrieves an environment variable as float64 or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
