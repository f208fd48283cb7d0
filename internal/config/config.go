package config

import (
	"os"
	"strconv"
	"strings"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ExtractConfig points at the OCR and NER services.
type ExtractConfig struct {
	OCRBaseURL string
	NERBaseURL string
	TimeoutSec int
}

// EmbeddingConfig holds settings for the OpenAI-compatible embedding API.
type EmbeddingConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimension  int
	TimeoutSec int
	MaxRetries int
}

// VectorConfig selects and configures the vector index backend.
// Backend is one of "memory", "qdrant" or "pgvector".
type VectorConfig struct {
	Backend          string
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string
}

// PipelineConfig holds ingestion pipeline settings.
type PipelineConfig struct {
	MaxFileSizeMB       int
	AllowedExtensions   []string
	OCRConfidenceMin    float64
	EntityConfidenceMin float64
	ExtractTimeoutSec   int
	BatchWorkers        int
}

// RateLimitConfig holds the per-client upload budgets.
type RateLimitConfig struct {
	PerMinute int
	PerHour   int
}

// SearchConfig holds search result shaping settings.
type SearchConfig struct {
	MaxResults      int
	OverfetchFactor int
	MinSimilarity   float64
}

// LogConfig holds logger settings.
type LogConfig struct {
	Production bool
	File       string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost     string
	Port        string
	MetricsPort string
	Database    DatabaseConfig
	MinIO       MinIOConfig
	Extract     ExtractConfig
	Embedding   EmbeddingConfig
	Vector      VectorConfig
	Pipeline    PipelineConfig
	RateLimit   RateLimitConfig
	Search      SearchConfig
	Log         LogConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:     getEnv("APP_HOST", "localhost:8080"),
		Port:        getEnv("PORT", "8080"), // default only for non-sensitive value
		MetricsPort: getEnv("METRICS_PORT", "9090"),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "documents"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Extract: ExtractConfig{
			OCRBaseURL: getEnv("OCR_SERVICE_URL", ""),
			NERBaseURL: getEnv("NER_SERVICE_URL", ""),
			TimeoutSec: getEnvInt("EXTRACT_HTTP_TIMEOUT_SEC", 120),
		},
		Embedding: EmbeddingConfig{
			BaseURL:    getEnv("EMBEDDING_BASE_URL", "https://api.openai.com/v1"),
			APIKey:     getEnv("EMBEDDING_API_KEY", ""),
			Model:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension:  getEnvInt("EMBEDDING_DIMENSION", 768),
			TimeoutSec: getEnvInt("EMBEDDING_TIMEOUT_SEC", 30),
			MaxRetries: getEnvInt("EMBEDDING_MAX_RETRIES", 3),
		},
		Vector: VectorConfig{
			Backend:          getEnv("VECTOR_BACKEND", "memory"),
			QdrantURL:        getEnv("QDRANT_URL", ""),
			QdrantAPIKey:     getEnv("QDRANT_API_KEY", ""),
			QdrantCollection: getEnv("QDRANT_COLLECTION", "medical_documents"),
		},
		Pipeline: PipelineConfig{
			MaxFileSizeMB:       getEnvInt("MAX_FILE_SIZE_MB", 50),
			AllowedExtensions:   getEnvList("ALLOWED_EXTENSIONS", nil),
			OCRConfidenceMin:    getEnvFloat("OCR_CONFIDENCE_MIN", 0.7),
			EntityConfidenceMin: getEnvFloat("ENTITY_CONFIDENCE_MIN", 0.5),
			ExtractTimeoutSec:   getEnvInt("EXTRACT_TIMEOUT_SEC", 120),
			BatchWorkers:        getEnvInt("BATCH_WORKERS", 4),
		},
		RateLimit: RateLimitConfig{
			PerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
			PerHour:   getEnvInt("RATE_LIMIT_PER_HOUR", 1000),
		},
		Search: SearchConfig{
			MaxResults:      getEnvInt("SEARCH_MAX_RESULTS", 100),
			OverfetchFactor: getEnvInt("SEARCH_OVERFETCH_FACTOR", 3),
			MinSimilarity:   getEnvFloat("SEARCH_MIN_SIMILARITY", 0.1),
		},
		Log: LogConfig{
			Production: getEnvBool("LOG_PRODUCTION", false),
			File:       getEnv("LOG_FILE", ""),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

// getEnvList splits a comma-separated value, trimming whitespace around items.
func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
