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
	AppEnv           string
	Port             string
	DatabaseURL      string
	JWTSecret        string
	StoragePath      string
	StorageBaseURL   string
	StorageSecret    string
	SignedURLTTL     time.Duration
	GeoIPDBPath      string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	ReplicateAPIKey  string
	ReplicateBaseURL string
	RunwareAPIKey    string
	RunwareBaseURL   string
	ProviderTimeout  time.Duration
	ProviderRetries  int
	ProviderRPS      float64
	QueueLease       time.Duration
	QueueMaxAttempts int
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	AllowedOrigins   []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		StoragePath:      getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:   getEnv("STORAGE_BASE_URL", "http://localhost:8080"),
		StorageSecret:    os.Getenv("STORAGE_SIGNING_SECRET"),
		SignedURLTTL:     time.Second * time.Duration(getEnvInt("SIGNED_URL_TTL_SECONDS", 900)),
		GeoIPDBPath:      os.Getenv("GEOIP_DB_PATH"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-image-1"),
		ReplicateAPIKey:  os.Getenv("REPLICATE_API_KEY"),
		ReplicateBaseURL: getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		RunwareAPIKey:    os.Getenv("RUNWARE_API_KEY"),
		RunwareBaseURL:   getEnv("RUNWARE_BASE_URL", "https://api.runware.ai/v1"),
		ProviderTimeout:  time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 90)),
		ProviderRetries:  getEnvInt("PROVIDER_RETRY_ATTEMPTS", 3),
		ProviderRPS:      float64(getEnvInt("PROVIDER_REQUESTS_PER_SECOND", 2)),
		QueueLease:       time.Second * time.Duration(getEnvInt("QUEUE_LEASE_SECONDS", 600)),
		QueueMaxAttempts: getEnvInt("QUEUE_MAX_ATTEMPTS", 5),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		AllowedOrigins:   splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.StorageSecret == "" {
		cfg.StorageSecret = cfg.JWTSecret
	}

	return cfg, nil
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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
