package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Worker.Count)
	assert.Equal(t, time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)

	assert.Equal(t, 3, cfg.Pipeline.ClassifierSamplePages)
	assert.Equal(t, 200, cfg.Pipeline.MinNativeCharsPerPage)
	assert.Equal(t, 0.6, cfg.Pipeline.OCRFallbackThreshold)
	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.ProcessingTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.ClaimTTL)
	assert.Equal(t, time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), cfg.Pipeline.DateEpoch)
	assert.Equal(t, 48*time.Hour, cfg.Pipeline.DateSkewTolerance)
	assert.Equal(t, int64(10_000_000), cfg.Pipeline.MaxAmount)
	assert.Equal(t, 0.8, cfg.Pipeline.NearDuplicateSimilarity)

	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.Equal(t, 9090, cfg.Observability.MetricsPort)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("PROCESSING_TIMEOUT", "90s")
	t.Setenv("OCR_FALLBACK_THRESHOLD", "0.75")
	t.Setenv("VALIDATION_DATE_EPOCH", "2000-01-01")
	t.Setenv("METRICS_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Worker.Count)
	assert.Equal(t, 90*time.Second, cfg.Pipeline.ProcessingTimeout)
	assert.Equal(t, 0.75, cfg.Pipeline.OCRFallbackThreshold)
	assert.Equal(t, 2000, cfg.Pipeline.DateEpoch.Year())
	assert.False(t, cfg.Observability.MetricsEnabled)
}

func TestLoad_SanityFloors(t *testing.T) {
	t.Setenv("WORKER_COUNT", "0")
	t.Setenv("PAGE_PARALLELISM", "-2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Worker.Count)
	assert.Equal(t, 1, cfg.Pipeline.PageParallelism)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5433, User: "app", Password: "secret", Database: "statements", SSLMode: "require"}
	assert.Equal(t, "host=db port=5433 user=app password=secret dbname=statements sslmode=require", c.DSN())
}
