package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Redis (queue + fingerprint cache)
	RedisURL string

	// Synthesis backend
	SynthAPIURL    string // plain-text synthesis endpoint
	SynthRefAPIURL string // reference-audio synthesis endpoint (defaults to SynthAPIURL)

	// S3-compatible blob storage
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3Region        string
	S3PublicBaseURL string // base for public object URLs (default: https://<endpoint>)

	// Pipeline limits
	MaxTextLength     int           // façade rejects longer texts
	ShortTextTimeout  time.Duration // fixed call timeout for short jobs
	LongTextThreshold int           // texts at/above this length take the watchdog path
	WatchdogTimeout   time.Duration // backstop window for long jobs
	CacheTTL          time.Duration // fingerprint cache entry lifetime

	// Temp resources
	TempDir             string
	TempRetention       time.Duration // sweep deletes temp files older than this
	TempSweepInterval   time.Duration
	UploadDiskThreshold int64 // payloads at/above this size are staged to disk before upload
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		SynthAPIURL:        getEnv("SYNTH_API_URL", ""),
		SynthRefAPIURL:     getEnv("SYNTH_REF_API_URL", ""),
		S3Endpoint:         getEnv("S3_ENDPOINT", ""),
		S3AccessKey:        getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:        getEnv("S3_SECRET_KEY", ""),
		S3Bucket:           getEnv("S3_BUCKET", "speechforge-audio"),
		S3Region:           getEnv("S3_REGION", ""),
		S3PublicBaseURL:    getEnv("S3_PUBLIC_BASE_URL", ""),

		MaxTextLength:     getEnvInt("MAX_TEXT_LENGTH", 3000),
		ShortTextTimeout:  getEnvDurationMs("SHORT_TEXT_TIMEOUT_MS", 300000),
		LongTextThreshold: getEnvInt("LONG_TEXT_THRESHOLD", 500),
		WatchdogTimeout:   getEnvDurationMs("WATCHDOG_TIMEOUT_MS", 3600000),
		CacheTTL:          getEnvDurationMs("CACHE_TTL_MS", 3600000),

		TempDir:             getEnv("TEMP_DIR", "/tmp/speechforge"),
		TempRetention:       getEnvDurationMs("TEMP_RETENTION_MS", 3600000),
		TempSweepInterval:   getEnvDurationMs("TEMP_SWEEP_INTERVAL_MS", 3600000),
		UploadDiskThreshold: int64(getEnvInt("UPLOAD_DISK_THRESHOLD", 5*1024*1024)),
	}

	if cfg.SynthRefAPIURL == "" {
		cfg.SynthRefAPIURL = cfg.SynthAPIURL
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.SynthAPIURL == "" {
		return nil, fmt.Errorf("SYNTH_API_URL is required")
	}

	if cfg.S3Endpoint == "" || cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
		return nil, fmt.Errorf("S3_ENDPOINT, S3_ACCESS_KEY and S3_SECRET_KEY are required")
	}

	if cfg.LongTextThreshold <= 0 {
		return nil, fmt.Errorf("LONG_TEXT_THRESHOLD must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDurationMs(key string, defaultMs int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMs)) * time.Millisecond
}
