// Package config loads searchd configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port     int
	LogLevel string
	DevMode  bool
	DataDir  string

	// Provider settings
	ProviderOrder      []string // priority order for fallback
	AlphaVantageAPIKey string
	OpenFIGIAPIKey     string
	ProviderTimeout    time.Duration
	RetryBackoff       time.Duration

	// Cache TTLs
	ResultTTL   time.Duration
	QuoteTTL    time.Duration
	MetadataTTL time.Duration

	// Circuit breaker
	BreakerThreshold int
	BreakerWindow    time.Duration
	BreakerCooldown  time.Duration

	// Search behavior
	MaxResults int

	// Metrics
	MetricsBuffer int
}

// knownProviders is the closed set of provider adapters searchd ships with.
var knownProviders = map[string]bool{
	"alphavantage": true,
	"yahoo":        true,
	"openfigi":     true,
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnvAsInt("PORT", 8090),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		DataDir:  getEnv("DATA_DIR", "./data"),

		ProviderOrder:      splitList(getEnv("PROVIDER_ORDER", "alphavantage,yahoo")),
		AlphaVantageAPIKey: getEnv("ALPHAVANTAGE_API_KEY", ""),
		OpenFIGIAPIKey:     getEnv("OPENFIGI_API_KEY", ""),
		ProviderTimeout:    getEnvAsDuration("PROVIDER_TIMEOUT", 2*time.Second),
		RetryBackoff:       getEnvAsDuration("RETRY_BACKOFF", 200*time.Millisecond),

		ResultTTL:   getEnvAsDuration("RESULT_TTL", 60*time.Second),
		QuoteTTL:    getEnvAsDuration("QUOTE_TTL", 60*time.Second),
		MetadataTTL: getEnvAsDuration("METADATA_TTL", 24*time.Hour),

		BreakerThreshold: getEnvAsInt("BREAKER_THRESHOLD", 5),
		BreakerWindow:    getEnvAsDuration("BREAKER_WINDOW", 60*time.Second),
		BreakerCooldown:  getEnvAsDuration("BREAKER_COOLDOWN", 30*time.Second),

		MaxResults: getEnvAsInt("MAX_RESULTS", 20),

		MetricsBuffer: getEnvAsInt("METRICS_BUFFER", 1024),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if len(c.ProviderOrder) == 0 {
		return fmt.Errorf("PROVIDER_ORDER must list at least one provider")
	}
	for _, name := range c.ProviderOrder {
		if !knownProviders[name] {
			return fmt.Errorf("unknown provider in PROVIDER_ORDER: %s", name)
		}
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive")
	}
	if c.ResultTTL <= 0 || c.QuoteTTL <= 0 || c.MetadataTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.BreakerThreshold < 1 {
		return fmt.Errorf("BREAKER_THRESHOLD must be at least 1")
	}
	if c.MaxResults < 1 {
		return fmt.Errorf("MAX_RESULTS must be at least 1")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
