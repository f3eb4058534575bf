package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nexe/nexe-backend/config"
	"github.com/nexe/nexe-backend/internal/app"
	"github.com/nexe/nexe-backend/internal/db"
	"github.com/nexe/nexe-backend/internal/scheduler"
	"github.com/nexe/nexe-backend/internal/storage"
	"github.com/nexe/nexe-backend/pkg/logger"
	pkgredis "github.com/nexe/nexe-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	// Initialize logger
	logger.Initialize(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		EnableColor: cfg.Log.Format == "console",
	})

	logger.Info("Starting storefront server", map[string]interface{}{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"log_level":   cfg.Log.Level,
	})

	// Initialize database
	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to initialize database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", err)
		}
	}()

	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	// Redis is optional; without it the server runs as a single instance
	opts := app.Options{Config: cfg, DB: db.GetDB()}
	if cfg.Redis.Enabled() {
		if err := pkgredis.Init(&cfg.Redis); err != nil {
			logger.Fatal("Failed to initialize redis", err)
		}
		defer pkgredis.Close()
		opts.Redis = pkgredis.GetClient()
	} else {
		logger.Warn("Redis not configured, cart events stay in-process")
	}

	if cfg.S3.AccessKeyID != "" {
		opts.Images = storage.NewS3Storage(
			cfg.S3.Region,
			cfg.S3.Bucket,
			cfg.S3.AccessKeyID,
			cfg.S3.SecretAccessKey,
			cfg.S3.BaseURL,
			cfg.Catalog.ImageFolder,
		)
	} else {
		logger.Warn("S3 credentials not configured, product image uploads disabled")
	}

	application := app.New(opts)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if err := application.Start(ctx); err != nil {
		logger.Fatal("Failed to start application", err)
	}

	sweeper := scheduler.NewCheckoutSweeper(application.CheckoutService, cfg.Checkout.SweepSchedule, cfg.Checkout.TokenRetention)
	if err := sweeper.Start(); err != nil {
		logger.Fatal("Failed to start checkout sweeper", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           application.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server started successfully", map[string]interface{}{
			"address": srv.Addr,
			"pid":     os.Getpid(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", err)
	}
	sweeper.Stop()
	stop()

	logger.Info("Server stopped successfully")
}
