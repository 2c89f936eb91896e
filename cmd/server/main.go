package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pawprint/petfeed/internal/api"
	"github.com/pawprint/petfeed/internal/cache"
	"github.com/pawprint/petfeed/internal/db"
	"github.com/pawprint/petfeed/internal/feed"
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
	logger.Info("Starting Petfeed API Server")

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

	redisCache, err := cache.New(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to initialize Redis cache", zap.Error(err))
	}
	defer redisCache.Close()

	repo := db.NewRepository(database.DB)
	posts := db.NewPostRepository(repo)
	notifications := db.NewNotificationRepository(repo)

	// Without Redis there is no queue to drain, so notifications go straight to the database
	var sink notify.Sink = notify.NewStoreSink(notifications)
	if redisCache != nil {
		sink = notify.NewQueueSink(redisCache, cfg.Notify.QueueKey)
	}
	dispatcher := notify.NewDispatcher(posts, redisCache, sink, notify.DispatcherOptions{
		Timeout:       cfg.Notify.Timeout,
		OwnerCacheTTL: cfg.Notify.OwnerCacheTTL,
	})

	registry := api.NewRegistry(
		feed.NewPageFetcher(posts, cfg.Feed.MaxPageSize),
		feed.NewFollowResolver(db.NewFollowRepository(repo)),
		api.RegistryOptions{
			DefaultPageSize: cfg.Feed.DefaultPageSize,
			MaxPageSize:     cfg.Feed.MaxPageSize,
			IdleTTL:         cfg.Feed.SessionIdleTTL,
		},
	)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		registry.Run(sweepCtx, cfg.Feed.SweepInterval)
	}()

	feedAPI := api.NewFeedAPI(registry, feed.NewEngine(db.NewLikeRepository(repo), dispatcher), notifications)

	// Create Gin router
	if cfg.Logging.Level == "DEBUG" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	api.NewRouter(feedAPI, map[string]api.HealthCheck{
		"database": database.Health,
		"redis":    redisCache.Health,
	}).SetupRoutes(engine)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: engine,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	stopSweep()
	<-sweepDone

	// Let in-flight like notifications finish before the stores close
	dispatcher.Close()

	logger.Info("Server exited")
}
