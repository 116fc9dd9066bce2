// Package app assembles the writer side shared by the etl and worker binaries.
package app

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/config"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain/repository"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/observability"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/repository/cache"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/repository/gridsource"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/repository/postgres"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/repository/postgresosm"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/repository/storage"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/usecase"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/migrations"
)

// ETL holds the connections and use cases of a writer process
type ETL struct {
	Pipeline *usecase.PipelineUseCase
	Refresh  *usecase.RefreshUseCase
	Redis    *cache.Redis
	Metrics  *observability.Metrics

	writer *postgres.DB
	reader *postgresosm.DB
	logger *zap.Logger
}

// NewETL connects to the database, object storage and Redis. Redis is optional: without it no
// cache is invalidated.
func NewETL(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*ETL, error) {
	if cfg.ETL.AutoMigrate {
		if err := migrations.Up(cfg.Database.MigrationURL(), logger); err != nil {
			return nil, err
		}
	}

	writer, err := postgres.New(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("connect writer database: %w", err)
	}

	// Features are read with the writer credentials so a batch sees views it just refreshed.
	reader, err := postgresosm.New(&cfg.Database, logger)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("connect feature database: %w", err)
	}

	store, err := storage.New(ctx, cfg.Storage, cfg.ETL.LocalDir, logger)
	if err != nil {
		writer.Close()
		_ = reader.Close()
		return nil, fmt.Errorf("open climate storage: %w", err)
	}

	e := &ETL{
		Metrics: observability.NewMetrics(),
		writer:  writer,
		reader:  reader,
		logger:  logger,
	}

	redisClient, err := cache.NewRedis(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis unavailable, query cache will not be invalidated", zap.Error(err))
	} else {
		e.Redis = redisClient
	}

	cacheRepo := cacheOrNil(e.Redis)
	clock := clockwork.NewRealClock()

	e.Pipeline = usecase.NewPipelineUseCase(
		gridsource.NewParquetSource(store, cfg.ETL.SourcePrefix, logger),
		postgresosm.NewFeatureRepository(reader),
		postgres.NewFactRepository(writer),
		cacheRepo,
		e.Metrics,
		clock,
		usecase.PipelineConfig{
			Reduction:     cfg.ETL.Reduction,
			ZonalMethod:   cfg.ETL.ZonalMethod,
			ZonalWorkers:  cfg.ETL.ZonalWorkers,
			ConvertLon360: cfg.ETL.ConvertLon360,
			Parallelism:   cfg.ETL.Parallelism,
			SourcePrefix:  cfg.ETL.SourcePrefix,
		},
		logger,
	)
	e.Refresh = usecase.NewRefreshUseCase(
		postgres.NewViewRepository(writer),
		cfg.Categories,
		cacheRepo,
		e.Metrics,
		clock,
		logger,
	)

	return e, nil
}

// Close releases every connection opened by NewETL.
func (e *ETL) Close() {
	if e.Redis != nil {
		if err := e.Redis.Close(); err != nil {
			e.logger.Error("Failed to close Redis connection", zap.Error(err))
		}
	}
	if err := e.reader.Close(); err != nil {
		e.logger.Error("Failed to close feature database", zap.Error(err))
	}
	e.writer.Close()
}

// cacheOrNil keeps the use cases' nil checks working when Redis is down.
func cacheOrNil(r *cache.Redis) repository.CacheRepository {
	if r == nil {
		return nil
	}
	return cache.NewCacheRepository(r)
}
