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
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appsync "github.com/stocksync/backend/internal/application/syncqueue"
	"github.com/stocksync/backend/internal/infrastructure/config"
	"github.com/stocksync/backend/internal/infrastructure/logger"
	"github.com/stocksync/backend/internal/infrastructure/persistence"
	"github.com/stocksync/backend/internal/infrastructure/storefront"
	"github.com/stocksync/backend/internal/infrastructure/telemetry"
	"github.com/stocksync/backend/internal/infrastructure/trigger"
	"github.com/stocksync/backend/internal/interfaces/http/handler"
	"github.com/stocksync/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	workerID := cfg.Queue.WorkerID
	if workerID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "worker"
		}
		workerID = fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])
	}

	log.Info("Starting stock sync worker",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("worker_id", workerID),
		zap.String("port", cfg.App.Port),
	)

	// Initialize database connection
	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize Redis client for wake-up pub/sub
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("Error closing redis client", zap.Error(err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Failed to ping redis", zap.Error(err))
	}
	log.Info("Redis connected successfully", zap.String("addr", cfg.Redis.Addr()))

	// Initialize telemetry
	meterProvider, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(ctx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	queueMetrics, err := telemetry.NewQueueMetrics(meterProvider.Meter("syncqueue"), log)
	if err != nil {
		log.Fatal("Failed to initialize queue metrics", zap.Error(err))
	}

	// Initialize repository and outbound adapters
	eventRepo := persistence.NewGormStockChangeEventRepository(db.DB)
	settingsProvider := storefront.NewStaticSettingsProvider(cfg.Storefront.SellingStores)

	syncTrigger, err := storefront.NewHTTPSyncTrigger(storefront.HTTPSyncTriggerConfig{
		URL:     cfg.Storefront.TriggerURL,
		APIKey:  cfg.Storefront.APIKey,
		Timeout: cfg.Storefront.TriggerTimeout,
	})
	if err != nil {
		log.Fatal("Failed to initialize sync trigger", zap.Error(err))
	}

	// Initialize application services
	wakeNotifier := trigger.NewRedisWakeNotifier(redisClient, trigger.WithNotifierLogger(log))
	recorder := appsync.NewRecorder(eventRepo, settingsProvider, wakeNotifier, log)
	processor := appsync.NewProcessor(eventRepo, syncTrigger, queueMetrics, appsync.ProcessorConfig{
		WorkerID:      workerID,
		BatchSize:     cfg.Queue.BatchSize,
		MaxBatchCount: cfg.Queue.MaxBatchCount,
		LockTTL:       cfg.Queue.LockTTL,
	}, log)
	opsService := appsync.NewOpsService(eventRepo, log)

	// Start the queue runner (pub/sub wake-ups + periodic safety net)
	runner := trigger.NewRunner(processor, redisClient, trigger.RunnerConfig{
		Channel:      trigger.DefaultWakeChannel,
		PollInterval: cfg.Queue.PollInterval,
	}, log)
	if err := runner.Start(context.Background()); err != nil {
		log.Fatal("Failed to start queue runner", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := runner.Stop(ctx); err != nil {
			log.Error("Error stopping queue runner", zap.Error(err))
		}
	}()
	log.Info("Queue runner started",
		zap.Int("batch_size", cfg.Queue.BatchSize),
		zap.Int("max_batch_count", cfg.Queue.MaxBatchCount),
		zap.Duration("lock_ttl", cfg.Queue.LockTTL),
		zap.Duration("poll_interval", cfg.Queue.PollInterval),
	)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(handler.NewSyncQueueHandler(recorder, opsService))
	r.Register(handler.NewSystemHandler(db.DB))
	r.Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down worker...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Worker exited gracefully")
}
