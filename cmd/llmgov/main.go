// Package main is the entry point for the llmgov server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/blueberrycongee/llmgov"
	"github.com/blueberrycongee/llmgov/internal/api"
	"github.com/blueberrycongee/llmgov/internal/config"
	"github.com/blueberrycongee/llmgov/internal/observability"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:      observability.ParseLevel(cfg.Logging.Level),
		Output:     os.Stdout,
		JSONFormat: !strings.EqualFold(cfg.Logging.Format, "text"),
	}, observability.NewRedactor()).Slog()
	slog.SetDefault(logger)

	logger.Info("starting llmgov", "version", llmgov.Version)

	cfgManager, err := config.NewManager(configPath, logger)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	defer func() { _ = cfgManager.Close() }()
	cfg = cfgManager.Get()
	logWarnings(logger, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := observability.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
		tp, _ = observability.InitTracing(ctx, observability.TracingConfig{})
	}

	secrets, err := buildSecrets(ctx, cfg.Secrets, logger)
	if err != nil {
		return fmt.Errorf("build secrets: %w", err)
	}
	defer func() { _ = secrets.Close() }()

	builder := &orchestratorBuilder{logger: logger, tracer: tp.Tracer(), secrets: secrets}
	orch, err := builder.build(cfg)
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	swapper := api.NewOrchestratorSwapper(orch)
	defer swapper.Close()

	reloader := newOrchestratorReloader(logger, swapper, builder.build)
	cfgManager.OnChange(reloader.Reload)
	if err := cfgManager.Watch(ctx); err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	}

	handler := api.NewHandler(swapper, logger, &api.HandlerConfig{
		MaxBodySize:     cfg.Server.MaxBodyBytes,
		DefaultPriority: cfg.Defaults.Priority,
	})
	httpHandler, err := buildHTTPHandler(cfg, handler)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down server...", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error("tracer shutdown error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}
