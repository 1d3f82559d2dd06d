// Package main provides the entry point for the keygate server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowmasters/keygate/internal/admin"
	"github.com/flowmasters/keygate/internal/api"
	"github.com/flowmasters/keygate/internal/auth"
	"github.com/flowmasters/keygate/internal/config"
	"github.com/flowmasters/keygate/internal/keys"
	"github.com/flowmasters/keygate/internal/metrics"
	"github.com/flowmasters/keygate/internal/middleware"
	"github.com/flowmasters/keygate/internal/ratelimit"
	"github.com/flowmasters/keygate/internal/storage"
)

const version = "0.1.0"

const serverShutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "keygate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logLevel := new(slog.LevelVar)
	if err := parseLogLevel(cfg.LogLevel, logLevel); err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close() //nolint:errcheck

	registry := prometheus.NewRegistry()
	if err := metrics.Init(registry); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	defaultPolicy := storage.RateLimit{
		Enabled:           true,
		RequestsPerMinute: cfg.DefaultRPM,
		RequestsPerHour:   cfg.DefaultRPH,
	}

	limiter := ratelimit.New()
	keyService := keys.NewService(store, defaultPolicy, limiter)
	validator := auth.NewValidator(store, limiter)
	master := auth.NewMasterCredential(cfg.MasterAPIKey, cfg.MasterAPIKeyHash)
	schemes := auth.NewSchemeMetrics()
	authenticator := auth.NewAuthenticator(validator, master, cfg.PublicPaths, schemes, logger)

	adminHandler := admin.NewHandler(keyService, validator, schemes, logLevel, logger)
	healthHandler := admin.NewHealthHandler(store)

	router := setupRouter(cfg, logger, authenticator, adminHandler, healthHandler)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Metrics are served on a separate listener so they are never exposed
	// on the public address.
	metricsServer := &http.Server{
		Addr:    cfg.MetricsListenAddr,
		Handler: metrics.Handler(registry),
	}
	go func() {
		logger.Info("metrics server starting", "addr", cfg.MetricsListenAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		_ = metricsServer.Shutdown(ctx) //nolint:errcheck
	}()

	logger.Info("keygate starting", "version", version, "addr", cfg.ListenAddr)
	return startServerAndWaitForShutdown(logger, server)
}

// setupRouter composes the middleware chain and mounts the HTTP surface.
func setupRouter(cfg *config.Config, logger *slog.Logger, authenticator *auth.Authenticator, adminHandler *admin.Handler, healthHandler *admin.HealthHandler) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.HTTPLogging(logger))
	r.Use(metrics.Middleware)
	r.Use(chimiddleware.Recoverer)
	r.Use(authenticator.Middleware)

	// Public probes; the authenticator bypasses these by path.
	r.Get("/health", healthHandler.HandleHealth)
	r.Get("/ready", healthHandler.HandleReady)

	r.Mount("/admin", adminHandler.Routes())
	r.Mount("/v1", api.Routes())

	return r
}

// startServerAndWaitForShutdown runs the server until SIGINT/SIGTERM, then
// drains in-flight requests before returning.
func startServerAndWaitForShutdown(logger *slog.Logger, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// parseLogLevel sets lv from a config string.
func parseLogLevel(raw string, lv *slog.LevelVar) error {
	switch raw {
	case "debug":
		lv.Set(slog.LevelDebug)
	case "info", "":
		lv.Set(slog.LevelInfo)
	case "warn":
		lv.Set(slog.LevelWarn)
	case "error":
		lv.Set(slog.LevelError)
	default:
		return fmt.Errorf("invalid log level: %q", raw)
	}
	return nil
}
