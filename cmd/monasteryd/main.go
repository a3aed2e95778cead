// cmd/monasteryd/main.go
// Package main implements the entry point for the Monastery360 service.
// It initializes all components and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/monastery360/monastery360-go/internal/cache"
	"github.com/monastery360/monastery360-go/internal/config"
	"github.com/monastery360/monastery360-go/internal/event"
	"github.com/monastery360/monastery360-go/internal/guide"
	"github.com/monastery360/monastery360-go/internal/jobs"
	"github.com/monastery360/monastery360-go/internal/media"
	"github.com/monastery360/monastery360-go/internal/search"
	"github.com/monastery360/monastery360-go/internal/server"
	"github.com/monastery360/monastery360-go/internal/storage"
	"github.com/monastery360/monastery360-go/internal/telemetry"
	"github.com/monastery360/monastery360-go/internal/vision"
)

// main initializes all components, starts the HTTP server, and handles
// graceful shutdown.
func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging for the application
	logLevel := slog.LevelInfo
	if cfg.Env == "dev" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Initialize OpenTelemetry
	_, err = telemetry.InitTracer("monastery360")
	if err != nil {
		logger.Error("failed to initialize OpenTelemetry tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.ShutdownTracer(ctx)
	}()

	// Initialize storage backend (PostgreSQL or in-memory)
	var store storage.Store
	if cfg.DatabaseDSN != "" {
		store, err = storage.NewPostgres(cfg.DatabaseDSN)
		if err != nil {
			logger.Error("failed to initialize postgres storage", "error", err)
			os.Exit(1)
		}
	} else {
		store = storage.NewMemory()
	}

	// Initialize event publisher (NATS JetStream or no-op)
	pub := event.NewPublisher(cfg.NATSURL)
	defer pub.Close()

	// Initialize the image archiver (S3-compatible or no-op)
	var archiver media.Archiver = media.NewNoop()
	if cfg.S3Bucket != "" {
		s3Client, err := media.NewS3Client(cfg.S3Endpoint, cfg.S3Region, cfg.S3Bucket, cfg.S3AccessKey, cfg.S3SecretKey)
		if err != nil {
			logger.Warn("S3 client init failed, image archival disabled", "error", err)
		} else {
			archiver = s3Client
		}
	}

	// Suggestion cache (Redis or no-op)
	suggestions := cache.New(cfg.RedisAddr, cfg.RedisPass, logger)

	// Wire the domain services
	resolver := guide.NewResolver(store, vision.NewMock(store), pub, archiver, logger)
	searchSvc := search.NewService(store, suggestions, pub, logger)

	// Background translation job runner
	jobCtx, jobCancel := context.WithCancel(context.Background())
	defer jobCancel()
	jobSvc := jobs.NewService(store, logger)
	jobSvc.Start(jobCtx)
	defer jobSvc.Close()

	// Create HTTP mux with all handlers and middleware
	mux := server.NewMux(store, searchSvc, resolver, jobSvc, cfg.MaxImageSize, cfg.AllowedMimeTypes, cfg.CORSAllowedOrigins)

	// Create HTTP server with timeout configuration
	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Start server in a separate goroutine
	go func() {
		logger.Info("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Handle graceful shutdown
	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	// Close PostgreSQL storage if used
	if postgresStore, ok := store.(interface{ Close() }); ok {
		postgresStore.Close()
	}

	logger.Info("server exited")
}
