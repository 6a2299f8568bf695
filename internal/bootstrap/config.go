package bootstrap

import (
	"fmt"
	"net/url"
	"strings"

	"dashboard_sync/internal/config"
)

// Config is an alias for the project's main configuration struct
type Config = config.Config

// LoadConfig delegates to the project's config loader
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := checkPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	return cfg, nil
}

// checkPreFlight performs environment checks beyond schema validation
func checkPreFlight(cfg *Config) error {
	if !strings.HasPrefix(cfg.Websocket.URL, "ws://") && !strings.HasPrefix(cfg.Websocket.URL, "wss://") {
		return fmt.Errorf("websocket url must use ws:// or wss://: %s", cfg.Websocket.URL)
	}

	// A remote engine without credentials is almost always a deployment
	// mistake; fail fast instead of getting 401s at runtime.
	if cfg.Engine.APIKey.Value() == "" && !isLoopback(cfg.Engine.BaseURL) {
		return fmt.Errorf("api_key is required for non-local engine %s", cfg.Engine.BaseURL)
	}

	return nil
}

func isLoopback(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
