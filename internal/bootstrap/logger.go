package bootstrap

import (
	"dashboard_sync/internal/core"
	"dashboard_sync/pkg/logging"
)

// InitLogger builds the application logger from configuration
func InitLogger(cfg *Config) (core.ILogger, error) {
	logger, err := logging.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		return nil, err
	}
	return logger.WithField("app", cfg.App.Name), nil
}
