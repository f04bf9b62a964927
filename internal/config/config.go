// Package config provides application configuration management,
// loading settings from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/stuartshay/gridplan/internal/cost"
)

// Config holds all configuration for the application
type Config struct {
	// Service configuration
	ServiceName string
	Environment string
	GRPCPort    string
	HTTPPort    string

	// Database configuration
	StoreEnabled     bool
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string

	// Plan job queue
	QueueWorkers  int
	QueueCapacity int

	// RequestTimeout bounds a synchronous optimization and each queued plan job
	RequestTimeout time.Duration

	// Cost policy defaults, overridable per request
	HighVoltageThresholdM float64
	PoleSpanM             float64
	CoincidentToleranceM  float64

	// OpenTelemetry configuration
	OTELEnabled  bool
	OTELExporter string
	OTELEndpoint string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "gridplan"),
		Environment: getEnv("ENVIRONMENT", "development"),
		GRPCPort:    getEnv("GRPC_PORT", "50051"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "gridplan"),
		PostgresUser:     getEnv("POSTGRES_USER", "development"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "development"),

		OTELExporter: strings.ToLower(getEnv("OTEL_EXPORTER", "otlp")),
		OTELEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}

	var err error
	cfg.StoreEnabled, err = parseBool("STORE_ENABLED", "false")
	if err != nil {
		return nil, fmt.Errorf("invalid STORE_ENABLED: %w", err)
	}

	cfg.OTELEnabled, err = parseBool("OTEL_ENABLED", "false")
	if err != nil {
		return nil, fmt.Errorf("invalid OTEL_ENABLED: %w", err)
	}

	cfg.QueueWorkers, err = parseInt("QUEUE_WORKERS", "4")
	if err != nil {
		return nil, fmt.Errorf("invalid QUEUE_WORKERS: %w", err)
	}

	cfg.QueueCapacity, err = parseInt("QUEUE_CAPACITY", "100")
	if err != nil {
		return nil, fmt.Errorf("invalid QUEUE_CAPACITY: %w", err)
	}

	cfg.RequestTimeout, err = time.ParseDuration(getEnv("REQUEST_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}

	cfg.HighVoltageThresholdM, err = parseFloat("HIGH_VOLTAGE_THRESHOLD_M", "0")
	if err != nil {
		return nil, fmt.Errorf("invalid HIGH_VOLTAGE_THRESHOLD_M: %w", err)
	}

	cfg.PoleSpanM, err = parseFloat("POLE_SPAN_M", "0")
	if err != nil {
		return nil, fmt.Errorf("invalid POLE_SPAN_M: %w", err)
	}

	cfg.CoincidentToleranceM, err = parseFloat("COINCIDENT_TOLERANCE_M", "0.5")
	if err != nil {
		return nil, fmt.Errorf("invalid COINCIDENT_TOLERANCE_M: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.QueueWorkers < 1 {
		return fmt.Errorf("QUEUE_WORKERS must be at least 1, got %d", c.QueueWorkers)
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("QUEUE_CAPACITY must be at least 1, got %d", c.QueueCapacity)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.CoincidentToleranceM < 0 {
		return fmt.Errorf("COINCIDENT_TOLERANCE_M must not be negative, got %v", c.CoincidentToleranceM)
	}
	if c.OTELExporter != "otlp" && c.OTELExporter != "stdout" {
		return fmt.Errorf("OTEL_EXPORTER must be otlp or stdout, got %q", c.OTELExporter)
	}
	if err := c.DefaultPolicy().Validate(); err != nil {
		return fmt.Errorf("invalid default cost policy: %w", err)
	}
	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s dbname=%s user=%s password=%s sslmode=disable",
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDB,
		c.PostgresUser,
		c.PostgresPassword,
	)
}

// DefaultPolicy returns the cost policy applied when a request does not override it
func (c *Config) DefaultPolicy() cost.Policy {
	return cost.Policy{
		HighVoltageThresholdMeters: c.HighVoltageThresholdM,
		PoleSpanMeters:             c.PoleSpanM,
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseFloat parses a float64 from an environment variable or default value
func parseFloat(key, defaultValue string) (float64, error) {
	value := getEnv(key, defaultValue)
	return strconv.ParseFloat(value, 64)
}

func parseInt(key, defaultValue string) (int, error) {
	return strconv.Atoi(getEnv(key, defaultValue))
}

func parseBool(key, defaultValue string) (bool, error) {
	return strconv.ParseBool(getEnv(key, defaultValue))
}
