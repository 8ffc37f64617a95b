package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/thaasbai/coordinator/internal/v1/logging"
	"go.uber.org/zap"
)

// DefaultAdminPassword mirrors the deployed default. Deployments are expected
// to override it; production startup logs a loud warning when they do not.
const DefaultAdminPassword = "thaasbai2024"

// Config holds validated environment configuration
type Config struct {
	Port                int
	MaxConnectionsPerIP int
	ConnectionRateLimit int // new connections per IP per second
	AdminPassword       string

	Environment    string // "development" or "production"
	AllowedOrigins []string

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	OTLPEndpoint string
}

// ValidateEnv validates all environment variables and returns a Config object.
// Every problem is collected before failing so a broken deployment surfaces
// all of its mistakes in one pass.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	// PORT (default 5002)
	portStr := getEnvOrDefault("PORT", "5002")
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", portStr))
	}
	cfg.Port = port

	// MAX_CONNECTIONS_PER_IP (default 10)
	cfg.MaxConnectionsPerIP, err = positiveIntEnv("MAX_CONNECTIONS_PER_IP", 10)
	if err != nil {
		errs = append(errs, err.Error())
	}

	// CONNECTION_RATE_LIMIT (default 5 per second)
	cfg.ConnectionRateLimit, err = positiveIntEnv("CONNECTION_RATE_LIMIT", 5)
	if err != nil {
		errs = append(errs, err.Error())
	}

	// ADMIN_PASSWORD (default kept for compatibility with the deployed client)
	cfg.AdminPassword = getEnvOrDefault("ADMIN_PASSWORD", DefaultAdminPassword)
	if cfg.AdminPassword == "" {
		errs = append(errs, "ADMIN_PASSWORD must not be empty")
	}

	// ENVIRONMENT (defaults to "production")
	cfg.Environment = getEnvOrDefault("ENVIRONMENT", "production")
	if cfg.Environment != "production" && cfg.Environment != "development" {
		errs = append(errs, fmt.Sprintf("ENVIRONMENT must be 'production' or 'development' (got '%s')", cfg.Environment))
	}

	// ALLOWED_ORIGINS: CSV list; empty means same behaviour as the deployed
	// server, which accepts any browser origin.
	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	}

	// Conditional: REDIS_ADDR (required if REDIS_ENABLED=true)
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = getEnvOrDefault("REDIS_ADDR", "localhost:6379")
		if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return cfg, nil
}

// Development reports whether the server runs with development conveniences.
func (c *Config) Development() bool {
	return c.Environment == "development"
}

// UsingDefaultAdminPassword reports whether ADMIN_PASSWORD was left at the
// shipped default.
func (c *Config) UsingDefaultAdminPassword() bool {
	return c.AdminPassword == DefaultAdminPassword
}

// LogSummary logs the validated configuration with secrets redacted. Called
// from main once the logger exists.
func (c *Config) LogSummary(ctx context.Context) {
	logging.Info(ctx, "environment configuration validated",
		zap.Int("port", c.Port),
		zap.Int("max_connections_per_ip", c.MaxConnectionsPerIP),
		zap.Int("connection_rate_limit", c.ConnectionRateLimit),
		zap.String("admin_password", redactSecret(c.AdminPassword)),
		zap.String("environment", c.Environment),
		zap.Strings("allowed_origins", c.AllowedOrigins),
		zap.Bool("redis_enabled", c.RedisEnabled),
		zap.String("redis_addr", c.RedisAddr),
		zap.String("otlp_endpoint", c.OTLPEndpoint),
	)
	if c.UsingDefaultAdminPassword() && !c.Development() {
		logging.Warn(ctx, "ADMIN_PASSWORD is the shipped default; override it in production")
	}
}

func positiveIntEnv(key string, def int) (int, error) {
	raw := getEnvOrDefault(key, strconv.Itoa(def))
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer (got '%s')", key, raw)
	}
	return v, nil
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	return parts[0] != ""
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// redactSecret redacts a secret by showing only the first 4 characters
func redactSecret(secret string) string {
	if len(secret) <= 4 {
		return "***"
	}
	return secret[:4] + "***"
}
