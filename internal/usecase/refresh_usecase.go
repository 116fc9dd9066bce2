package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/config"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain/repository"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/observability"
	pkgerrors "github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/pkg/errors"
)

type RefreshUseCase struct {
	views      repository.ViewRepository
	categories config.CategoryRegistry
	cache      repository.CacheRepository
	metrics    *observability.Metrics
	clock      clockwork.Clock
	logger     *zap.Logger
}

// NewRefreshUseCase wires the view consolidator. cache may be nil.
func NewRefreshUseCase(
	views repository.ViewRepository,
	categories config.CategoryRegistry,
	cache repository.CacheRepository,
	metrics *observability.Metrics,
	clock clockwork.Clock,
	logger *zap.Logger,
) *RefreshUseCase {
	return &RefreshUseCase{
		views:      views,
		categories: categories,
		cache:      cache,
		metrics:    metrics,
		clock:      clock,
		logger:     logger,
	}
}

// Refresh rebuilds each named category view independently; no names means every registered
// category. Results of successful rebuilds are returned together with the combined failures.
func (uc *RefreshUseCase) Refresh(ctx context.Context, names []string) ([]domain.RefreshResult, error) {
	if len(names) == 0 {
		names = uc.categories.Names()
	}

	categories := make([]domain.Category, 0, len(names))
	for _, name := range names {
		c, ok := uc.categories.Get(name)
		if !ok {
			return nil, pkgerrors.ErrCategoryNotFound.WithMessage(name + " is not a registered category")
		}
		categories = append(categories, c)
	}

	var (
		results []domain.RefreshResult
		errs    error
	)
	for _, c := range categories {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}

		start := uc.clock.Now()
		res, err := uc.views.Rebuild(ctx, c)
		elapsed := uc.clock.Since(start)

		if err != nil {
			status := "failed"
			if errors.Is(err, pkgerrors.ErrRefreshInProgress) {
				status = "skipped"
			}
			uc.metrics.RefreshTotal.WithLabelValues(c.Name, status).Inc()
			uc.logger.Error("View refresh failed",
				zap.String("category", c.Name),
				zap.String("status", status),
				zap.Error(err))
			errs = multierr.Append(errs, &pkgerrors.BatchError{
				Stage: pkgerrors.StageRefresh,
				Err:   fmt.Errorf("%s: %w", c.Name, err),
			})
			continue
		}

		uc.metrics.RefreshTotal.WithLabelValues(c.Name, "succeeded").Inc()
		uc.metrics.RefreshDuration.WithLabelValues(c.Name).Observe(elapsed.Seconds())
		uc.metrics.ViewRows.WithLabelValues(c.Name).Set(float64(res.Rows))

		uc.logger.Info("View refreshed",
			zap.String("category", c.Name),
			zap.Int64("rows", res.Rows),
			zap.Any("sources", res.SourceCounts),
			zap.Duration("duration", elapsed))
		results = append(results, *res)
	}

	if len(results) > 0 && uc.cache != nil {
		if _, err := uc.cache.DeletePrefix(ctx, QueryCachePrefix); err != nil {
			uc.logger.Warn("Failed to invalidate query cache", zap.Error(err))
		}
	}

	return results, errs
}
