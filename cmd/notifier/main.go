package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/pawprint/petfeed/internal/cache"
	"github.com/pawprint/petfeed/internal/db"
	"github.com/pawprint/petfeed/internal/notify"
	"github.com/pawprint/petfeed/pkg/config"
	"github.com/pawprint/petfeed/pkg/logging"
	"github.com/pawprint/petfeed/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting Petfeed Notification Writer")

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	if err := database.Migrate(context.Background()); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	redisCache, err := cache.New(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to initialize Redis cache", zap.Error(err))
	}
	if redisCache == nil {
		logger.Fatal("Notification writer needs Redis; set PETFEED_REDIS_URL")
	}
	defer redisCache.Close()

	writer := notify.NewWriter(redisCache, db.NewNotificationRepository(db.NewRepository(database.DB)), notify.WriterOptions{
		QueueKey:     cfg.Notify.QueueKey,
		BatchSize:    cfg.Worker.BatchSize,
		PollInterval: cfg.Worker.PollInterval,
		MaxRetries:   cfg.Worker.MaxRetries,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- writer.Run(ctx)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down notification writer...")
	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Notification writer stopped with error", zap.Error(err))
	}
	logger.Info("Notification writer exited")
}
