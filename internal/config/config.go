// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	App           AppConfig           `yaml:"app"`
	Engine        EngineConfig        `yaml:"engine"`
	Websocket     WebsocketConfig     `yaml:"websocket"`
	Cache         CacheConfig         `yaml:"cache"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
}

// EngineConfig describes the trading engine's REST surface
type EngineConfig struct {
	BaseURL        string  `yaml:"base_url" validate:"required"`
	APIKey         Secret  `yaml:"api_key"`
	TimeoutSeconds int     `yaml:"timeout_seconds" validate:"min=1,max=120"`
	RateLimit      float64 `yaml:"rate_limit" validate:"min=0"` // requests per second, 0 = unlimited
	RateBurst      int     `yaml:"rate_burst" validate:"min=0"`
}

// WebsocketConfig contains push connection settings
type WebsocketConfig struct {
	URL                   string `yaml:"url" validate:"required"`
	HeartbeatInterval     int    `yaml:"heartbeat_interval" validate:"min=1,max=300"`      // seconds
	ReconnectBaseDelay    int    `yaml:"reconnect_base_delay" validate:"min=1,max=60000"`  // milliseconds
	ReconnectMaxDelay     int    `yaml:"reconnect_max_delay" validate:"min=1,max=600000"`  // milliseconds
	MaxReconnectAttempts  int    `yaml:"max_reconnect_attempts" validate:"min=1,max=100"`
	WriteWaitSeconds      int    `yaml:"write_wait_seconds" validate:"min=1,max=60"`
	HandshakeTimeoutSecs  int    `yaml:"handshake_timeout_seconds" validate:"min=1,max=60"`
}

// CacheConfig contains refresh coordinator settings
type CacheConfig struct {
	PollInterval          int `yaml:"poll_interval" validate:"min=1,max=3600"`           // seconds
	StaleThreshold        int `yaml:"stale_threshold" validate:"min=1,max=86400"`        // seconds
	RefreshTimeoutSeconds int `yaml:"refresh_timeout_seconds" validate:"min=1,max=300"`
	WorkerPoolSize        int `yaml:"worker_pool_size" validate:"min=1,max=64"`
	WorkerPoolBuffer      int `yaml:"worker_pool_buffer" validate:"min=1,max=10000"`
}

// NotificationsConfig contains inbox settings
type NotificationsConfig struct {
	MaxEntries             int `yaml:"max_entries" validate:"min=1,max=100000"`
	DefaultDurationSeconds int `yaml:"default_duration_seconds" validate:"min=0,max=3600"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandedData), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateAppConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateEngineConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateWebsocketConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateCacheConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateNotificationsConfig(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}

	return nil
}

func (c *Config) validateAppConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.App.LogLevel)) {
		return ValidationError{
			Field:   "app.log_level",
			Value:   c.App.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

func (c *Config) validateEngineConfig() error {
	if c.Engine.BaseURL == "" {
		return ValidationError{
			Field:   "engine.base_url",
			Message: "engine REST base URL is required",
		}
	}
	if !strings.HasPrefix(c.Engine.BaseURL, "http://") && !strings.HasPrefix(c.Engine.BaseURL, "https://") {
		return ValidationError{
			Field:   "engine.base_url",
			Value:   c.Engine.BaseURL,
			Message: "must start with http:// or https://",
		}
	}
	if c.Engine.TimeoutSeconds < 1 || c.Engine.TimeoutSeconds > 120 {
		return ValidationError{
			Field:   "engine.timeout_seconds",
			Value:   c.Engine.TimeoutSeconds,
			Message: "must be between 1 and 120",
		}
	}
	if c.Engine.RateLimit < 0 {
		return ValidationError{
			Field:   "engine.rate_limit",
			Value:   c.Engine.RateLimit,
			Message: "must be >= 0",
		}
	}
	return nil
}

func (c *Config) validateWebsocketConfig() error {
	if c.Websocket.URL == "" {
		return ValidationError{
			Field:   "websocket.url",
			Message: "push connection URL is required",
		}
	}
	if !strings.HasPrefix(c.Websocket.URL, "ws://") && !strings.HasPrefix(c.Websocket.URL, "wss://") {
		return ValidationError{
			Field:   "websocket.url",
			Value:   c.Websocket.URL,
			Message: "must start with ws:// or wss://",
		}
	}
	if c.Websocket.HeartbeatInterval < 1 || c.Websocket.HeartbeatInterval > 300 {
		return ValidationError{
			Field:   "websocket.heartbeat_interval",
			Value:   c.Websocket.HeartbeatInterval,
			Message: "must be between 1 and 300 seconds",
		}
	}
	if c.Websocket.ReconnectBaseDelay < 1 {
		return ValidationError{
			Field:   "websocket.reconnect_base_delay",
			Value:   c.Websocket.ReconnectBaseDelay,
			Message: "must be at least 1 millisecond",
		}
	}
	if c.Websocket.ReconnectMaxDelay < c.Websocket.ReconnectBaseDelay {
		return ValidationError{
			Field:   "websocket.reconnect_max_delay",
			Value:   c.Websocket.ReconnectMaxDelay,
			Message: "must be >= reconnect_base_delay",
		}
	}
	if c.Websocket.MaxReconnectAttempts < 1 || c.Websocket.MaxReconnectAttempts > 100 {
		return ValidationError{
			Field:   "websocket.max_reconnect_attempts",
			Value:   c.Websocket.MaxReconnectAttempts,
			Message: "must be between 1 and 100",
		}
	}
	return nil
}

func (c *Config) validateCacheConfig() error {
	if c.Cache.PollInterval < 1 {
		return ValidationError{
			Field:   "cache.poll_interval",
			Value:   c.Cache.PollInterval,
			Message: "must be at least 1 second",
		}
	}
	if c.Cache.StaleThreshold < c.Cache.PollInterval {
		return ValidationError{
			Field:   "cache.stale_threshold",
			Value:   c.Cache.StaleThreshold,
			Message: "must be >= poll_interval, otherwise every slice reads as stale",
		}
	}
	if c.Cache.WorkerPoolSize < 1 || c.Cache.WorkerPoolSize > 64 {
		return ValidationError{
			Field:   "cache.worker_pool_size",
			Value:   c.Cache.WorkerPoolSize,
			Message: "must be between 1 and 64",
		}
	}
	if c.Cache.RefreshTimeoutSeconds < 1 {
		return ValidationError{
			Field:   "cache.refresh_timeout_seconds",
			Value:   c.Cache.RefreshTimeoutSeconds,
			Message: "must be at least 1 second",
		}
	}
	return nil
}

func (c *Config) validateNotificationsConfig() error {
	if c.Notifications.MaxEntries < 1 {
		return ValidationError{
			Field:   "notifications.max_entries",
			Value:   c.Notifications.MaxEntries,
			Message: "must be at least 1",
		}
	}
	return nil
}

// Duration helpers so components do not re-derive units from the raw ints.

func (c *EngineConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *WebsocketConfig) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatInterval) * time.Second
}

func (c *WebsocketConfig) ReconnectBase() time.Duration {
	return time.Duration(c.ReconnectBaseDelay) * time.Millisecond
}

func (c *WebsocketConfig) ReconnectMax() time.Duration {
	return time.Duration(c.ReconnectMaxDelay) * time.Millisecond
}

func (c *WebsocketConfig) WriteWait() time.Duration {
	return time.Duration(c.WriteWaitSeconds) * time.Second
}

func (c *WebsocketConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutSecs) * time.Second
}

func (c *CacheConfig) Poll() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

func (c *CacheConfig) Stale() time.Duration {
	return time.Duration(c.StaleThreshold) * time.Second
}

func (c *CacheConfig) RefreshTimeout() time.Duration {
	return time.Duration(c.RefreshTimeoutSeconds) * time.Second
}

func (c *NotificationsConfig) DefaultDuration() time.Duration {
	return time.Duration(c.DefaultDurationSeconds) * time.Second
}

func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns the baseline configuration; LoadConfig overlays the
// YAML file on top of it.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:     "dashboard_sync",
			LogLevel: "INFO",
		},
		Engine: EngineConfig{
			BaseURL:        "http://localhost:8000",
			TimeoutSeconds: 10,
			RateLimit:      10,
			RateBurst:      5,
		},
		Websocket: WebsocketConfig{
			URL:                  "ws://localhost:8000/ws",
			HeartbeatInterval:    30,
			ReconnectBaseDelay:   1000,
			ReconnectMaxDelay:    30000,
			MaxReconnectAttempts: 5,
			WriteWaitSeconds:     5,
			HandshakeTimeoutSecs: 10,
		},
		Cache: CacheConfig{
			PollInterval:          30,
			StaleThreshold:        90,
			RefreshTimeoutSeconds: 15,
			WorkerPoolSize:        4,
			WorkerPoolBuffer:      256,
		},
		Notifications: NotificationsConfig{
			MaxEntries:             500,
			DefaultDurationSeconds: 5,
		},
		Telemetry: TelemetryConfig{
			MetricsPort:   9091,
			EnableMetrics: true,
		},
	}
}
