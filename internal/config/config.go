package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	ServicePort int
	Timezone    string
	LogLevel    string
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Validation  ValidationConfig
	Anomaly     AnomalyConfig
	Identity    Identity
	HTTP        HTTPConfig
}

// DatabaseConfig holds database connection settings.
// An empty URL selects the in-memory record store.
type DatabaseConfig struct {
	URL         string
	ApplySchema bool
}

// RabbitMQConfig holds RabbitMQ connection and queue settings.
// An empty URL disables both ingestion and event publishing.
type RabbitMQConfig struct {
	URL              string
	IngestExchange   string
	IngestQueue      string
	IngestRoutingKey string
	EventsExchange   string
	DLQQueue         string
	PrefetchCount    int
}

// ValidationConfig holds validation settings
type ValidationConfig struct {
	FutureToleranceMinutes int
}

// AnomalyConfig holds usage spike detection settings
type AnomalyConfig struct {
	SpikeThreshold            float64
	MinDataPointsForDetection int
	HistoryWindow             int
}

// Identity is the acting dashboard user. Authentication is mocked, so the
// identity comes from configuration and is injected into request handling.
type Identity struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "water-ops-service"),
		ServicePort: getEnvAsInt("SERVICE_PORT", 5000),
		Timezone:    getEnv("SERVICE_TIMEZONE", "UTC"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			URL:         getEnv("DATABASE_URL", ""),
			ApplySchema: getEnvAsBool("DATABASE_APPLY_SCHEMA", true),
		},
		RabbitMQ: RabbitMQConfig{
			URL:              getEnv("RABBITMQ_URL", ""),
			IngestExchange:   getEnv("RABBITMQ_INGEST_EXCHANGE", "water-ops.ingest.exchange"),
			IngestQueue:      getEnv("RABBITMQ_INGEST_QUEUE", "water-ops.usage.queue"),
			IngestRoutingKey: getEnv("RABBITMQ_INGEST_ROUTING_KEY", "water.usage.raw"),
			EventsExchange:   getEnv("RABBITMQ_EVENTS_EXCHANGE", "water-ops.events.exchange"),
			DLQQueue:         getEnv("RABBITMQ_DLQ_QUEUE", "water-ops.usage.dlq"),
			PrefetchCount:    getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
		Validation: ValidationConfig{
			FutureToleranceMinutes: getEnvAsInt("VALIDATION_FUTURE_TOLERANCE_MINUTES", 10),
		},
		Anomaly: AnomalyConfig{
			SpikeThreshold:            getEnvAsFloat("ANOMALY_SPIKE_THRESHOLD", 3.0),
			MinDataPointsForDetection: getEnvAsInt("ANOMALY_MIN_DATA_POINTS", 3),
			HistoryWindow:             getEnvAsInt("ANOMALY_HISTORY_WINDOW", 10),
		},
		Identity: Identity{
			UserID: getEnv("DASHBOARD_USER_ID", "operator-1"),
			Name:   getEnv("DASHBOARD_USER_NAME", "Utility Operator"),
			Role:   getEnv("DASHBOARD_USER_ROLE", "operator"),
		},
		HTTP: HTTPConfig{
			AllowedOrigins:  getEnvAsList("HTTP_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
			ShutdownTimeout: time.Duration(getEnvAsInt("HTTP_SHUTDOWN_TIMEOUT_SECONDS", 15)) * time.Second,
		},
	}

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	if cfg.ServicePort <= 0 {
		return nil, fmt.Errorf("SERVICE_PORT must be positive, got %d", cfg.ServicePort)
	}

	return cfg, nil
}

// Location resolves the timezone that defines calendar days for KPIs
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVICE_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
