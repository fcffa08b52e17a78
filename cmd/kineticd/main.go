package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thermokinetics/kinetics-core/internal/bus"
	"github.com/thermokinetics/kinetics-core/internal/datastore"
	"github.com/thermokinetics/kinetics-core/internal/engine"
	"github.com/thermokinetics/kinetics-core/internal/filedata"
	"github.com/thermokinetics/kinetics-core/internal/server"
	"github.com/thermokinetics/kinetics-core/pkg/config"
	"github.com/thermokinetics/kinetics-core/pkg/logger"
)

func main() {
	var configPath string
	var httpAddr string
	var logLevel string
	var dataDir string

	flag.StringVar(&configPath, "config", "", "path to YAML configuration")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address (overrides config)")
	flag.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	flag.StringVar(&dataDir, "data-dir", "", "experiment data directory (overrides config)")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			logger.Error("failed to load configuration", "path", configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	logger.SetDefault(logger.New(cfg.LogLevel, os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bus.New()
	go b.Run(ctx)

	if _, err := datastore.NewStore(b, cfg.StorePath); err != nil {
		logger.Error("failed to start data store", "error", err)
		os.Exit(1)
	}
	if _, err := datastore.NewOperations(b); err != nil {
		logger.Error("failed to start data operations", "error", err)
		os.Exit(1)
	}

	files, err := filedata.New(b, cfg.DataDir)
	if err != nil {
		logger.Error("failed to start file data", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := files.Watch(ctx); err != nil {
			logger.Warn("file watcher stopped", "error", err)
		}
	}()

	window, err := server.NewMainWindow(b)
	if err != nil {
		logger.Error("failed to start presentation actor", "error", err)
		os.Exit(1)
	}

	eng, err := engine.New(b, cfg)
	if err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}
	eng.SetNotifier(server.NewNotifier(cfg.CallbackURL, cfg.CallbackSecret))

	srv := server.New(window, eng)
	go func() {
		if err := srv.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}
