package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	ProviderBaseURL  string
	ProviderAPIKey   string
	ProviderModel    string
	ProviderTimeout  time.Duration
	ProviderRetryMax int
	ProviderRPS      float64
	PollInterval     time.Duration
	PollTimeout      time.Duration

	JobMaxBytes         int64
	ItemMaxBytes        int64
	MaxImagesPerJob     int
	MaxRowsPerChunk     int
	CompressTargetBytes int64

	CopyThreshold int
	StyleRetryMax int

	MaxInFlight      int
	ChunkConcurrency int

	ManifestPath    string
	RateLimitPerMin int

	HTTPReadTimeout       time.Duration
	HTTPReadHeaderTimeout time.Duration
	HTTPWriteTimeout      time.Duration
	HTTPIdleTimeout       time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "development"),
		Port:   getEnv("PORT", "8080"),

		ProviderBaseURL:  os.Getenv("PROVIDER_BASE_URL"),
		ProviderAPIKey:   os.Getenv("PROVIDER_API_KEY"),
		ProviderModel:    getEnv("PROVIDER_MODEL", "stylesafe-image-1"),
		ProviderTimeout:  time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 60)),
		ProviderRetryMax: getEnvInt("PROVIDER_RETRY_MAX", 3),
		ProviderRPS:      getEnvFloat("PROVIDER_REQUESTS_PER_SECOND", 1),
		PollInterval:     time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 2)),
		PollTimeout:      time.Second * time.Duration(getEnvInt("POLL_TIMEOUT_SECONDS", 300)),

		JobMaxBytes:         getEnvInt64("JOB_MAX_BYTES", 32<<20),
		ItemMaxBytes:        getEnvInt64("ITEM_MAX_BYTES", 8<<20),
		MaxImagesPerJob:     getEnvInt("MAX_IMAGES_PER_JOB", 16),
		MaxRowsPerChunk:     getEnvInt("MAX_ROWS_PER_CHUNK", 10),
		CompressTargetBytes: getEnvInt64("COMPRESS_TARGET_BYTES", 4<<20),

		CopyThreshold: getEnvInt("COPY_THRESHOLD", 10),
		StyleRetryMax: getEnvInt("STYLE_RETRY_MAX", 2),

		MaxInFlight:      getEnvInt("MAX_INFLIGHT_REQUESTS", 2),
		ChunkConcurrency: getEnvInt("CHUNK_CONCURRENCY", 2),

		ManifestPath:    getEnv("MANIFEST_PATH", "./data/manifest.jsonl"),
		RateLimitPerMin: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		HTTPReadTimeout:       time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPReadHeaderTimeout: time.Second * time.Duration(getEnvInt("HTTP_READ_HEADER_TIMEOUT_SECONDS", 5)),
		HTTPWriteTimeout:      time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:       time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.JobMaxBytes <= 0 || cfg.ItemMaxBytes <= 0 {
		return nil, fmt.Errorf("JOB_MAX_BYTES and ITEM_MAX_BYTES must be positive")
	}
	if cfg.ItemMaxBytes > cfg.JobMaxBytes {
		return nil, fmt.Errorf("ITEM_MAX_BYTES (%d) must not exceed JOB_MAX_BYTES (%d)", cfg.ItemMaxBytes, cfg.JobMaxBytes)
	}
	if cfg.MaxImagesPerJob <= 0 {
		return nil, fmt.Errorf("MAX_IMAGES_PER_JOB must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
