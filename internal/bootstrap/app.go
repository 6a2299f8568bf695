// Package bootstrap loads configuration, builds the shared dependencies, and
// runs the application's components until a termination signal.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dashboard_sync/internal/core"
	"dashboard_sync/internal/infrastructure/health"
	"dashboard_sync/internal/infrastructure/metrics"
	"dashboard_sync/pkg/telemetry"

	"golang.org/x/sync/errgroup"
)

// App holds the core dependencies shared across components.
type App struct {
	Cfg       *Config
	Logger    core.ILogger
	Health    *health.HealthManager
	Telemetry *telemetry.Telemetry

	metricsSrv *metrics.Server
}

// NewApp bootstraps configuration, logging, telemetry, and health plumbing.
func NewApp(configPath string) (*App, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, err := InitLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	tel, err := telemetry.Setup(cfg.App.Name)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	hm := health.NewHealthManager(logger)

	app := &App{
		Cfg:       cfg,
		Logger:    logger,
		Health:    hm,
		Telemetry: tel,
	}
	if cfg.Telemetry.EnableMetrics {
		app.metricsSrv = metrics.NewServer(cfg.Telemetry.MetricsPort, hm, logger)
	}
	return app, nil
}

// Runner is a component that runs until its context is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// Run orchestrates the application lifecycle, including signal handling.
func (a *App) Run(runners ...Runner) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.metricsSrv != nil {
		a.metricsSrv.Start()
	}

	g, ctx := errgroup.WithContext(ctx)

	a.Logger.Info("starting application", "name", a.Cfg.App.Name)

	for _, runner := range runners {
		r := runner
		g.Go(func() error {
			return r.Run(ctx)
		})
	}

	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.metricsSrv != nil {
		if serr := a.metricsSrv.Stop(shutdownCtx); serr != nil {
			a.Logger.Warn("metrics server shutdown failed", "error", serr)
		}
	}
	if serr := a.Telemetry.Shutdown(shutdownCtx); serr != nil {
		a.Logger.Warn("telemetry shutdown failed", "error", serr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error("application stopped with error", "error", err)
		return err
	}

	a.Logger.Info("application shut down gracefully")
	return nil
}
