package portalsdk

import (
	"os"
	"strconv"
	"time"

	"github.com/pulsecare/portal/pkg/slogx"
)

// Config holds environment-driven client settings.
type Config struct {
	BaseURL      string        // Required: portal API base URL
	Timeout      time.Duration // Optional: transport timeout (default: 30s)
	ExpiryMargin time.Duration // Optional: proactive-refresh margin (default: 60s)
	RateLimit    float64       // Optional: client-side requests/sec, 0 disables (default: 0)
	RateBurst    int           // Optional: rate limiter burst (default: 1)
	Env          string        // Environment (dev, staging, prod) (default: prod)
	LogLevel     string        // Log level (debug, info, warn, error) (default: info)
	LogFormat    string        // Log format (json, text) (default: json)
}

// LoadConfig reads client settings from PORTAL_* environment variables.
func LoadConfig() Config {
	return Config{
		BaseURL:      os.Getenv("PORTAL_API_BASE_URL"),
		Timeout:      getEnvDurationOrDefault("PORTAL_HTTP_TIMEOUT", 30*time.Second),
		ExpiryMargin: getEnvDurationOrDefault("PORTAL_TOKEN_EXPIRY_MARGIN", DefaultExpiryMargin),
		RateLimit:    getEnvFloatOrDefault("PORTAL_RATE_LIMIT", 0),
		RateBurst:    getEnvIntOrDefault("PORTAL_RATE_BURST", 1),
		Env:          getEnvOrDefault("PORTAL_ENV", "prod"),
		LogLevel:     getEnvOrDefault("PORTAL_LOG_LEVEL", "info"),
		LogFormat:    getEnvOrDefault("PORTAL_LOG_FORMAT", "json"),
	}
}

// NewClientFromConfig builds a Client from cfg with a slogx logger wired in.
// Additional options are applied after the config-derived ones and take
// precedence.
func NewClientFromConfig(cfg Config, opts ...Option) *Client {
	logger := slogx.New(slogx.Config{
		Service: "portal-sdk",
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	base := []Option{WithLogger(logger)}
	if cfg.Timeout > 0 {
		base = append(base, WithTimeout(cfg.Timeout))
	}
	if cfg.ExpiryMargin > 0 {
		base = append(base, WithExpiryMargin(cfg.ExpiryMargin))
	}
	if cfg.RateLimit > 0 {
		base = append(base, WithRateLimit(cfg.RateLimit, max(cfg.RateBurst, 1)))
	}

	return NewClient(cfg.BaseURL, append(base, opts...)...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
		return floatValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
