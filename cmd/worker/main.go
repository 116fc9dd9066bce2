package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/app"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/config"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/observability"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/pkg/logger"
	redisRepo "github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/repository/redis"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/worker"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/worker/climate"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Check if worker is enabled
	if !cfg.Worker.Enabled {
		fmt.Println("Worker is disabled in configuration. Set WORKER_ENABLED=true to enable.")
		os.Exit(0)
	}

	// 2. Initialize logger
	log, err := logger.New(cfg.Log.Level, "climate-risk-worker")
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting climate ETL worker")
	log.Info("Configuration loaded",
		zap.String("consumer_group", cfg.Worker.ConsumerGroup),
		zap.Int("max_retries", cfg.Worker.MaxRetries),
		zap.Duration("retry_backoff", cfg.Worker.RetryBackoff),
		zap.Int("parallelism", cfg.ETL.Parallelism))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Connections and use cases
	etl, err := app.NewETL(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize ETL", zap.Error(err))
	}
	defer etl.Close()

	if etl.Redis == nil {
		log.Fatal("Redis is required to consume job streams")
	}
	streamRepo := redisRepo.NewStreamRepository(etl.Redis.Client(), log)
	clock := clockwork.NewRealClock()

	// 4. Workers
	etlWorker := climate.NewETLWorker(
		etl.Pipeline,
		streamRepo,
		cfg.Categories,
		clock,
		cfg.Worker.ConsumerGroup,
		climate.ETLWorkerConfig{
			MaxRetries:   cfg.Worker.MaxRetries,
			RetryBackoff: cfg.Worker.RetryBackoff,
			Parallelism:  cfg.ETL.Parallelism,
			DefaultState: cfg.ETL.StateBBox,
		},
		log,
	)
	refreshWorker := climate.NewRefreshWorker(etl.Refresh, streamRepo, clock, cfg.Worker.ConsumerGroup, log)

	workerManager := worker.NewWorkerManager(log,
		worker.WithShutdownTimeout(cfg.Worker.ShutdownTimeout),
		worker.WithClock(clock),
	)
	workerManager.Register(etlWorker)
	workerManager.Register(refreshWorker)

	go func() {
		if err := observability.Serve(ctx, cfg.Metrics.Addr, prometheus.DefaultGatherer, log); err != nil {
			log.Error("Metrics server failed", zap.Error(err))
		}
	}()

	// 5. Start workers
	if err := workerManager.Start(ctx); err != nil {
		log.Fatal("Failed to start workers", zap.Error(err))
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Info("Received shutdown signal")

	// Workers finish the batch in hand before the context is cancelled
	if err := workerManager.Stop(); err != nil {
		log.Error("Error stopping workers", zap.Error(err))
	}
	cancel()

	log.Info("Worker shutdown complete")
}
