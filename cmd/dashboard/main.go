package main

import (
	"flag"
	"fmt"
	"os"

	"dashboard_sync/internal/bootstrap"
	"dashboard_sync/internal/realtime"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/dashboard.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dashboard_sync version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}

	app.Logger.Info("Starting dashboard sync",
		"version", version,
		"engine", app.Cfg.Engine.BaseURL,
		"websocket", app.Cfg.Websocket.URL,
	)

	svc := realtime.NewService(app.Cfg, app.Logger, app.Health)

	if err := app.Run(svc); err != nil {
		os.Exit(1)
	}
}
