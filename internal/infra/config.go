package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	StoragePath string

	// Classifier
	SampleSizeBytes int

	// Executor
	BatchSize          int
	BadRecordThreshold float64

	// Orchestrator
	MaxAttempts      int
	RetryBackoffBase time.Duration
	LeaseDuration    time.Duration
	PollInterval     time.Duration
	WorkerPoolSize   int
	WorkerQueues     []string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		StoragePath:        getEnv("STORAGE_PATH", "./storage"),
		SampleSizeBytes:    getEnvInt("CLASSIFIER_SAMPLE_BYTES", 64*1024),
		BatchSize:          getEnvInt("EXECUTOR_BATCH_SIZE", 1000),
		BadRecordThreshold: getEnvFloat("EXECUTOR_BAD_RECORD_THRESHOLD", 1.0),
		MaxAttempts:        getEnvInt("JOB_MAX_ATTEMPTS", 3),
		RetryBackoffBase:   time.Second * time.Duration(getEnvInt("JOB_RETRY_BACKOFF_SECONDS", 30)),
		LeaseDuration:      time.Second * time.Duration(getEnvInt("JOB_LEASE_SECONDS", 120)),
		PollInterval:       time.Second * time.Duration(getEnvInt("WORKER_POLL_SECONDS", 2)),
		WorkerPoolSize:     getEnvInt("WORKER_POOL_SIZE", 4),
		WorkerQueues:       splitList(getEnv("WORKER_QUEUES", "tabular,text,image,audio,video,multimodal")),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.BadRecordThreshold < 0 || cfg.BadRecordThreshold > 1 {
		return nil, fmt.Errorf("EXECUTOR_BAD_RECORD_THRESHOLD must be in [0,1]")
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("JOB_MAX_ATTEMPTS must be at least 1")
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

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
