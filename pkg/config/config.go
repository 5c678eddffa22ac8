package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Worker        WorkerConfig
	Database      DatabaseConfig
	Storage       StorageConfig
	Pipeline      PipelineConfig
	Observability ObservabilityConfig
}

type WorkerConfig struct {
	Count        int
	PollInterval time.Duration
	SweepEvery   string // cron spec for the stale-statement sweeper
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type StorageConfig struct {
	LocalPath string
}

// PipelineConfig carries the tunable extraction and validation thresholds.
// Numeric defaults are deliberate: OCR engines disagree enough that these
// need to be adjustable per deployment.
type PipelineConfig struct {
	ClassifierSamplePages   int
	MinNativeCharsPerPage   int
	OCRFallbackThreshold    float64
	PageParallelism         int
	MaxAttempts             int
	ProcessingTimeout       time.Duration
	ClaimTTL                time.Duration
	DateEpoch               time.Time
	DateSkewTolerance       time.Duration
	MaxAmount               int64 // absolute bound on a single transaction, in major units
	NearDuplicateSimilarity float64
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	MetricsPort    int
}

// Load reads configuration from the environment, with a .env file as
// fallback when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Worker: WorkerConfig{
			Count:        getEnvAsInt("WORKER_COUNT", 4),
			PollInterval: getEnvAsDuration("WORKER_POLL_INTERVAL", time.Second),
			SweepEvery:   getEnv("WORKER_SWEEP_CRON", "* * * * *"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "statements-dev"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Storage: StorageConfig{
			LocalPath: getEnv("STORAGE_LOCAL_PATH", "./documents"),
		},
		Pipeline: PipelineConfig{
			ClassifierSamplePages:   getEnvAsInt("CLASSIFIER_SAMPLE_PAGES", 3),
			MinNativeCharsPerPage:   getEnvAsInt("CLASSIFIER_MIN_CHARS_PER_PAGE", 200),
			OCRFallbackThreshold:    getEnvAsFloat("OCR_FALLBACK_THRESHOLD", 0.6),
			PageParallelism:         getEnvAsInt("PAGE_PARALLELISM", 4),
			MaxAttempts:             getEnvAsInt("MAX_PROCESSING_ATTEMPTS", 3),
			ProcessingTimeout:       getEnvAsDuration("PROCESSING_TIMEOUT", 5*time.Minute),
			ClaimTTL:                getEnvAsDuration("JOB_CLAIM_TTL", 10*time.Minute),
			DateEpoch:               getEnvAsDate("VALIDATION_DATE_EPOCH", time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)),
			DateSkewTolerance:       getEnvAsDuration("VALIDATION_DATE_SKEW", 48*time.Hour),
			MaxAmount:               int64(getEnvAsInt("VALIDATION_MAX_AMOUNT", 10_000_000)),
			NearDuplicateSimilarity: getEnvAsFloat("DEDUP_NEAR_SIMILARITY", 0.8),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
		},
	}

	if cfg.Worker.Count < 1 {
		cfg.Worker.Count = 1
	}
	if cfg.Pipeline.PageParallelism < 1 {
		cfg.Pipeline.PageParallelism = 1
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDate(key string, defaultValue time.Time) time.Time {
	valueStr := os.Getenv(key)
	if value, err := time.Parse("2006-01-02", valueStr); err == nil {
		return value
	}
	return defaultValue
}
