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
	Server      ServerConfig
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Telemetry   TelemetryConfig
	Reconnect   ReconnectConfig
	Automation  AutomationConfig
	Notify      NotifyConfig
}

// ServerConfig holds websocket server settings
type ServerConfig struct {
	Port        int
	WSPath      string
	AuthToken   string
	AuthTimeout time.Duration
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string
}

// RabbitMQConfig holds the notification bus settings. URL may be empty,
// in which case the gateway runs without the bus.
type RabbitMQConfig struct {
	URL              string
	NotifyExchange   string
	NotifyKeyPrefix  string
	NotifyQueue      string
	NotifyBindingKey string
	DLQQueue         string
	PrefetchCount    int
}

// TelemetryConfig holds synthetic feed settings
type TelemetryConfig struct {
	Interval         time.Duration
	AlertInterval    time.Duration
	AlertProbability float64
	Devices          []string
}

// ReconnectConfig holds client backoff settings
type ReconnectConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// AutomationConfig holds rule engine settings
type AutomationConfig struct {
	Enabled      bool
	PollInterval time.Duration
	Window       time.Duration
	Cooldown     time.Duration
	RulesJSON    string
}

// NotifyConfig holds notification worker settings
type NotifyConfig struct {
	Recipient string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "realtime-gateway"),
		Server: ServerConfig{
			Port:        getEnvAsInt("SERVER_PORT", 8090),
			WSPath:      getEnv("SERVER_WS_PATH", "/ws"),
			AuthToken:   getEnv("SERVER_AUTH_TOKEN", ""),
			AuthTimeout: getEnvAsDuration("SERVER_AUTH_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:              getEnv("RABBITMQ_URL", ""),
			NotifyExchange:   getEnv("RABBITMQ_NOTIFY_EXCHANGE", "iot-hub.alerts.exchange"),
			NotifyKeyPrefix:  getEnv("RABBITMQ_NOTIFY_KEY_PREFIX", "alert.notification"),
			NotifyQueue:      getEnv("RABBITMQ_NOTIFY_QUEUE", "iot-hub.alerts.notify"),
			NotifyBindingKey: getEnv("RABBITMQ_NOTIFY_BINDING_KEY", "alert.notification.#"),
			DLQQueue:         getEnv("RABBITMQ_DLQ_QUEUE", "iot-hub.alerts.notify.dlq"),
			PrefetchCount:    getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
		Telemetry: TelemetryConfig{
			Interval:         getEnvAsDuration("TELEMETRY_INTERVAL", 2*time.Second),
			AlertInterval:    getEnvAsDuration("TELEMETRY_ALERT_INTERVAL", 8*time.Second),
			AlertProbability: getEnvAsFloat("TELEMETRY_ALERT_PROBABILITY", 0.3),
			Devices:          getEnvAsList("TELEMETRY_DEVICES"),
		},
		Reconnect: ReconnectConfig{
			BaseDelay:   getEnvAsDuration("RECONNECT_BASE_DELAY", 1*time.Second),
			MaxDelay:    getEnvAsDuration("RECONNECT_MAX_DELAY", 30*time.Second),
			MaxAttempts: getEnvAsInt("RECONNECT_MAX_ATTEMPTS", 5),
		},
		Automation: AutomationConfig{
			Enabled:      getEnvAsBool("AUTOMATION_ENABLED", true),
			PollInterval: getEnvAsDuration("AUTOMATION_POLL_INTERVAL", 5*time.Second),
			Window:       getEnvAsDuration("AUTOMATION_WINDOW", 10*time.Minute),
			Cooldown:     getEnvAsDuration("AUTOMATION_COOLDOWN", 5*time.Minute),
			RulesJSON:    getEnv("AUTOMATION_RULES", ""),
		},
		Notify: NotifyConfig{
			Recipient: getEnv("NOTIFY_RECIPIENT", "ops@example.com"),
		},
	}

	// DATABASE_URL and RABBITMQ_URL stay optional; the binaries decide
	// how to run without them.
	if cfg.Telemetry.AlertProbability < 0 || cfg.Telemetry.AlertProbability > 1 {
		return nil, fmt.Errorf("TELEMETRY_ALERT_PROBABILITY must be between 0 and 1")
	}

	return cfg, nil
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
