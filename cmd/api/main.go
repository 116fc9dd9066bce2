package main

// @title Climate Risk Map API
// @version 1.0.0
// @description Queries OpenStreetMap infrastructure joined with downscaled CMIP6 climate exposure,
// @description and enqueues ETL and view refresh jobs for the worker.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @BasePath /
// @schemes http https

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	_ "github.com/UW-Climate-Risk-Lab/climate-risk-map-api/docs"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/config"
	httpDelivery "github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/delivery/http"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/delivery/http/handler"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain/repository"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/observability"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/pkg/logger"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/repository/cache"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/repository/postgresosm"
	redisRepo "github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/repository/redis"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/repository/storage"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/usecase"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. Initialize logger
	log, err := logger.New(cfg.Log.Level, "climate-risk-api")
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting Climate Risk Map API")
	log.Info("Configuration loaded",
		zap.String("env", cfg.Server.Env),
		zap.String("server_addr", cfg.GetServerAddr()),
		zap.Strings("categories", cfg.Categories.Names()),
	)

	// 3. Connect to PostgreSQL with the read-only role
	db, err := postgresosm.New(&cfg.ReadDatabase, log)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close PostgreSQL connection", zap.Error(err))
		}
	}()
	log.Info("PostgreSQL connected", zap.Bool("read_only", cfg.ReadDatabase.ReadOnly))

	// 4. Connect to Redis
	redisClient, err := cache.NewRedis(&cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("Failed to close Redis connection", zap.Error(err))
		}
	}()
	log.Info("Redis connected")

	// 5. Health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.Health(ctx); err != nil {
		log.Fatal("PostgreSQL health check failed", zap.Error(err))
	}
	if err := redisClient.Health(ctx); err != nil {
		log.Fatal("Redis health check failed", zap.Error(err))
	}
	log.Info("All connections healthy")

	// 6. Object storage for oversized responses
	var store repository.ObjectStore
	store, err = storage.New(ctx, cfg.Storage, cfg.ETL.LocalDir, log)
	if err != nil {
		log.Warn("Object storage unavailable, oversized responses will be returned inline", zap.Error(err))
		store = nil
	}

	// 7. Repositories
	queryRepo := postgresosm.NewQueryRepository(db)
	metadataRepo := postgresosm.NewMetadataRepository(db)
	cacheRepo := cache.NewCacheRepository(redisClient)
	streamRepo := redisRepo.NewStreamRepository(redisClient.Client(), log)

	// 8. Use cases
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	queryUC := usecase.NewQueryUseCase(
		queryRepo,
		metadataRepo,
		store,
		cacheRepo,
		cfg.Categories,
		metrics,
		clock,
		usecase.QueryConfig{
			CacheTTL:         cfg.Cache.QueryCacheTTL,
			MetadataCacheTTL: cfg.Cache.MetadataCacheTTL,
			SizeLimitMB:      cfg.Storage.ResponseSizeLimitMB,
			DownloadPrefix:   cfg.Storage.DownloadPrefix,
			PresignTTL:       cfg.Storage.PresignTTL,
		},
		log,
	)
	jobUC := usecase.NewJobUseCase(streamRepo, cfg.Categories, clock, log)

	// 9. HTTP handlers and server
	dataHandler := handler.NewDataHandler(queryUC, log)
	jobHandler := handler.NewJobHandler(jobUC, log)
	healthHandler := handler.NewHealthHandler(map[string]handler.HealthCheck{
		"database": db.Health,
		"redis":    redisClient.Health,
	}, log)

	server := httpDelivery.NewServer(cfg, log, dataHandler, jobHandler, healthHandler, prometheus.DefaultGatherer)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started successfully",
		zap.String("address", cfg.GetServerAddr()),
		zap.String("env", cfg.Server.Env),
	)

	// 10. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}

	log.Info("Server stopped successfully")
}
