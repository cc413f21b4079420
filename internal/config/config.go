package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds gateway configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Upstream medical-center REST API
	UpstreamBaseURL string
	UpstreamTimeout time.Duration

	// Redis-backed visitor state (sessions, anonymous carts)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	CartTTL       time.Duration
	SessionTTL    time.Duration

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		UpstreamBaseURL:    strings.TrimRight(getEnv("UPSTREAM_BASE_URL", "https://api.shifa-clinics.com/api"), "/"),
		UpstreamTimeout:    getEnvAsDuration("UPSTREAM_TIMEOUT", 20*time.Second),
		RedisAddr:          getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisTLS:           getEnvAsBool("REDIS_TLS", false),
		CartTTL:            getEnvAsDuration("CART_TTL", 30*24*time.Hour),
		SessionTTL:         getEnvAsDuration("SESSION_TTL", 7*24*time.Hour),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable, dropping empty entries
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
