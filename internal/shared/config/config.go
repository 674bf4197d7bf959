package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string
	DatabaseURL     string
	Env             string

	// Hosted document-index service.
	IndexAPIURL      string
	IndexAPIKey      string
	IndexPartitionID string
	IndexTimeout     time.Duration

	// Readiness reconciliation.
	ReconcileMaxAttempts int
	ReconcileBaseDelay   time.Duration
	ReconcileMaxDelay    time.Duration

	// Periodic sweep over stale processing documents. Empty disables it.
	SweepSchedule string
	SweepGrace    time.Duration

	// Chat proxy.
	ChatMaxHistory  int
	ChatMaxPassages int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),
		DatabaseURL:     dbURL,
		Env:             env,

		IndexAPIURL:      getEnv("INDEX_API_URL", ""),
		IndexAPIKey:      getEnv("INDEX_API_KEY", ""),
		IndexPartitionID: getEnv("INDEX_PARTITION_ID", ""),
		IndexTimeout:     getEnvDuration("INDEX_TIMEOUT", 60*time.Second),

		ReconcileMaxAttempts: getEnvInt("RECONCILE_MAX_ATTEMPTS", 20),
		ReconcileBaseDelay:   getEnvDuration("RECONCILE_BASE_DELAY", 2*time.Second),
		ReconcileMaxDelay:    getEnvDuration("RECONCILE_MAX_DELAY", 30*time.Second),

		SweepSchedule: getEnv("SWEEP_SCHEDULE", "@every 10m"),
		SweepGrace:    getEnvDuration("SWEEP_GRACE", 5*time.Minute),

		ChatMaxHistory:  getEnvInt("CHAT_MAX_HISTORY", 10),
		ChatMaxPassages: getEnvInt("CHAT_MAX_PASSAGES", 5),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
