package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds service-level configuration loaded from the environment.
type Config struct {
	Port      int
	LogLevel  string
	LogPretty bool

	// DataDir holds the sqlite files (cache, trade log).
	DataDir string

	// EvaluatorEndpoints is the ordered pool the coordinator dispatches to.
	EvaluatorEndpoints []string

	// Worker count for the evaluator service; 0 means NumCPU.
	EvaluatorWorkers int

	RecommendationTTL time.Duration
	AnalyticsTTL      time.Duration

	RequestTimeout time.Duration
}

// Load reads configuration from .env (if present) and the environment.
func Load() (*Config, error) {
	// .env is optional; environment variables win.
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnvAsInt("PORT", 8090),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogPretty:         getEnvAsBool("LOG_PRETTY", true),
		DataDir:           getEnv("DATA_DIR", "./data"),
		EvaluatorWorkers:  getEnvAsInt("EVALUATOR_WORKERS", 0),
		RecommendationTTL: getEnvAsDuration("RECOMMENDATION_TTL", 48*time.Hour),
		AnalyticsTTL:      getEnvAsDuration("ANALYTICS_TTL", 4*time.Hour),
		RequestTimeout:    getEnvAsDuration("REQUEST_TIMEOUT", 5*time.Minute),
	}

	if endpoints := getEnv("EVALUATOR_ENDPOINTS", ""); endpoints != "" {
		for _, e := range strings.Split(endpoints, ",") {
			e = strings.TrimSpace(e)
			if e != "" {
				cfg.EvaluatorEndpoints = append(cfg.EvaluatorEndpoints, e)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface at request time.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.RecommendationTTL <= 0 || c.AnalyticsTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
