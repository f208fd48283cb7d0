package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"medindex/internal/ratelimit"
)

func TestLoad(t *testing.T) {
	// Save current env and restore later
	origHost := os.Getenv("DB_HOST")
	defer os.Setenv("DB_HOST", origHost)

	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_MAX_OPEN_CONNS", "20")
	os.Setenv("MINIO_USE_SSL", "true")
	os.Setenv("OCR_CONFIDENCE_MIN", "0.85")
	os.Setenv("ALLOWED_EXTENSIONS", ".pdf, .png,")
	os.Setenv("VECTOR_BACKEND", "qdrant")
	defer func() {
		os.Unsetenv("DB_MAX_OPEN_CONNS")
		os.Unsetenv("MINIO_USE_SSL")
		os.Unsetenv("OCR_CONFIDENCE_MIN")
		os.Unsetenv("ALLOWED_EXTENSIONS")
		os.Unsetenv("VECTOR_BACKEND")
	}()

	cfg := Load()

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.MinIO.UseSSL)
	assert.Equal(t, 0.85, cfg.Pipeline.OCRConfidenceMin)
	assert.Equal(t, []string{".pdf", ".png"}, cfg.Pipeline.AllowedExtensions)
	assert.Equal(t, "qdrant", cfg.Vector.Backend)
}

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("RATE_LIMIT_PER_MINUTE")
	os.Unsetenv("SEARCH_MIN_SIMILARITY")
	os.Unsetenv("EMBEDDING_MODEL")

	cfg := Load()

	assert.Equal(t, ratelimit.DefaultPerMinute, cfg.RateLimit.PerMinute)
	assert.Equal(t, ratelimit.DefaultPerHour, cfg.RateLimit.PerHour)
	assert.Equal(t, 0.1, cfg.Search.MinSimilarity)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, "memory", cfg.Vector.Backend)
	assert.Nil(t, cfg.Pipeline.AllowedExtensions)
}

func TestGetEnv(t *testing.T) {
	key := "TEST_ENV_VAR"
	os.Setenv(key, "value")
	defer os.Unsetenv(key)

	assert.Equal(t, "value", getEnv(key, "default"))
	assert.Equal(t, "default", getEnv("NON_EXISTENT", "default"))
}

func TestGetEnvBool(t *testing.T) {
	key := "TEST_BOOL_VAR"

	os.Setenv(key, "true")
	assert.True(t, getEnvBool(key, false))

	os.Setenv(key, "false")
	assert.False(t, getEnvBool(key, true))

	os.Setenv(key, "invalid")
	assert.True(t, getEnvBool(key, true))

	os.Unsetenv(key)
	assert.True(t, getEnvBool(key, true))
}

func TestGetEnvInt(t *testing.T) {
	key := "TEST_INT_VAR"

	os.Setenv(key, "123")
	assert.Equal(t, 123, getEnvInt(key, 0))

	os.Setenv(key, "invalid")
	assert.Equal(t, 10, getEnvInt(key, 10))

	os.Unsetenv(key)
	assert.Equal(t, 10, getEnvInt(key, 10))
}

func TestGetEnvFloat(t *testing.T) {
	key := "TEST_FLOAT_VAR"

	os.Setenv(key, "0.42")
	assert.Equal(t, 0.42, getEnvFloat(key, 0))

	os.Setenv(key, "invalid")
	assert.Equal(t, 0.5, getEnvFloat(key, 0.5))

	os.Unsetenv(key)
	assert.Equal(t, 0.5, getEnvFloat(key, 0.5))
}

func TestGetEnvList(t *testing.T) {
	key := "TEST_LIST_VAR"

	os.Setenv(key, "a, b ,c")
	assert.Equal(t, []string{"a", "b", "c"}, getEnvList(key, nil))

	os.Setenv(key, " , ")
	assert.Equal(t, []string{"x"}, getEnvList(key, []string{"x"}))

	os.Unsetenv(key)
	assert.Nil(t, getEnvList(key, nil))
}
