package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvVars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:  "expand single env var",
			input: "api_key: ${TEST_API_KEY}",
			envVars: map[string]string{
				"TEST_API_KEY": "test_key_123",
			},
			expected: "api_key: test_key_123",
		},
		{
			name:  "expand multiple env vars",
			input: "api_key: ${API_KEY}\nurl: ${WS_URL}",
			envVars: map[string]string{
				"API_KEY": "key_value",
				"WS_URL":  "wss://engine.local/ws",
			},
			expected: "api_key: key_value\nurl: wss://engine.local/ws",
		},
		{
			name:     "missing env var returns empty string",
			input:    "api_key: ${MISSING_VAR}",
			envVars:  map[string]string{},
			expected: "api_key: ",
		},
		{
			name:  "mixed static and env vars",
			input: "poll_interval: 30\napi_key: ${TEST_KEY}",
			envVars: map[string]string{
				"TEST_KEY": "dynamic_key",
			},
			expected: "poll_interval: 30\napi_key: dynamic_key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				os.Setenv(k, v)
				defer os.Unsetenv(k)
			}

			result := expandEnvVars(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5, cfg.Websocket.MaxReconnectAttempts)
	assert.Equal(t, 30, cfg.Websocket.HeartbeatInterval)
	assert.Equal(t, 30, cfg.Cache.PollInterval)
}

func TestLoadConfig(t *testing.T) {
	os.Setenv("TEST_ENGINE_KEY", "k-123")
	defer os.Unsetenv("TEST_ENGINE_KEY")

	yamlContent := `
app:
  name: dashboard_sync
  log_level: DEBUG
engine:
  base_url: http://engine.local:8000
  api_key: ${TEST_ENGINE_KEY}
  timeout_seconds: 5
websocket:
  url: wss://engine.local:8000/ws
  heartbeat_interval: 15
  reconnect_base_delay: 500
  reconnect_max_delay: 16000
  max_reconnect_attempts: 4
cache:
  poll_interval: 20
  stale_threshold: 60
notifications:
  max_entries: 100
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.App.LogLevel)
	assert.Equal(t, "http://engine.local:8000", cfg.Engine.BaseURL)
	assert.Equal(t, "k-123", cfg.Engine.APIKey.Value())
	assert.Equal(t, "[REDACTED]", cfg.Engine.APIKey.String())
	assert.Equal(t, 15, cfg.Websocket.HeartbeatInterval)
	assert.Equal(t, 4, cfg.Websocket.MaxReconnectAttempts)
	assert.Equal(t, 20, cfg.Cache.PollInterval)
	assert.Equal(t, 100, cfg.Notifications.MaxEntries)

	// Fields not present in the file keep their defaults
	assert.Equal(t, 4, cfg.Cache.WorkerPoolSize)
	assert.Equal(t, 5, cfg.Websocket.WriteWaitSeconds)
}

func TestConfigValidation_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.App.LogLevel = "LOUD" }},
		{"missing engine url", func(c *Config) { c.Engine.BaseURL = "" }},
		{"bad engine scheme", func(c *Config) { c.Engine.BaseURL = "ftp://engine" }},
		{"bad ws scheme", func(c *Config) { c.Websocket.URL = "http://engine/ws" }},
		{"zero heartbeat", func(c *Config) { c.Websocket.HeartbeatInterval = 0 }},
		{"max delay below base", func(c *Config) {
			c.Websocket.ReconnectBaseDelay = 5000
			c.Websocket.ReconnectMaxDelay = 1000
		}},
		{"stale below poll", func(c *Config) {
			c.Cache.PollInterval = 60
			c.Cache.StaleThreshold = 30
		}},
		{"zero attempts", func(c *Config) { c.Websocket.MaxReconnectAttempts = 0 }},
		{"zero inbox", func(c *Config) { c.Notifications.MaxEntries = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
