package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/climatology"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain/repository"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/observability"
	pkgerrors "github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/pkg/errors"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/zonal"
)

// PipelineConfig - defaults applied to requests that leave a field empty
type PipelineConfig struct {
	Reduction     string
	ZonalMethod   string
	ZonalWorkers  int
	ConvertLon360 bool
	Parallelism   int
	SourcePrefix  string
}

// RunRequest - one (variable, ssp[, model, member]) batch
type RunRequest struct {
	Variable    string
	SSP         domain.SSP
	Model       string
	Member      string
	Category    domain.Category
	OSMType     string
	OSMSubtypes []string
	BBox        *domain.BoundingBox

	Reduction     string
	ZonalMethod   string
	ConvertLon360 bool
	Periods       []int
	Months        []int
	Buckets       []domain.TimeBucket
}

// RunResult - outcome of a committed batch
type RunResult struct {
	RunID               uuid.UUID
	Variable            string
	SSP                 domain.SSP
	VariableID          int64
	RowsUpserted        int64
	Features            int
	FeaturesWithoutData int
	Duration            time.Duration
}

type PipelineUseCase struct {
	source   repository.GridSource
	features repository.FeatureRepository
	facts    repository.FactRepository
	cache    repository.CacheRepository
	reducer  *climatology.Reducer
	metrics  *observability.Metrics
	clock    clockwork.Clock
	cfg      PipelineConfig
	logger   *zap.Logger
}

// NewPipelineUseCase wires the batch pipeline. cache may be nil.
func NewPipelineUseCase(
	source repository.GridSource,
	features repository.FeatureRepository,
	facts repository.FactRepository,
	cache repository.CacheRepository,
	metrics *observability.Metrics,
	clock clockwork.Clock,
	cfg PipelineConfig,
	logger *zap.Logger,
) *PipelineUseCase {
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	return &PipelineUseCase{
		source:   source,
		features: features,
		facts:    facts,
		cache:    cache,
		reducer:  climatology.NewReducer(logger),
		metrics:  metrics,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run executes extract, reduce, aggregate and load for one batch. Nothing is written unless every
// stage succeeds.
func (uc *PipelineUseCase) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	start := uc.clock.Now()
	runID := uuid.New()
	ssp := strconv.Itoa(int(req.SSP))

	uc.applyDefaults(&req)
	log := uc.logger.With(
		zap.String("run_id", runID.String()),
		zap.String("variable", req.Variable),
		zap.Int("ssp", int(req.SSP)),
		zap.String("category", req.Category.Name),
		zap.String("osm_type", req.OSMType),
	)
	if req.Model != "" {
		log = log.With(zap.String("model", req.Model), zap.String("member", req.Member))
	}

	uc.metrics.PipelineRunning.Inc()
	defer uc.metrics.PipelineRunning.Dec()

	result, err := uc.run(ctx, req, runID, log)
	if err != nil {
		uc.metrics.BatchesTotal.WithLabelValues(req.Variable, "failed").Inc()
		log.Error("Batch failed", zap.Error(err), zap.Bool("retryable", pkgerrors.IsRetryable(err)))
		return nil, err
	}

	result.Duration = uc.clock.Since(start)
	uc.metrics.BatchesTotal.WithLabelValues(req.Variable, "succeeded").Inc()
	uc.metrics.BatchDuration.WithLabelValues(req.Variable, ssp).Observe(result.Duration.Seconds())
	uc.metrics.RowsUpserted.WithLabelValues(req.Variable, ssp).Add(float64(result.RowsUpserted))
	uc.metrics.FeaturesWithoutData.WithLabelValues(req.Variable, ssp).Add(float64(result.FeaturesWithoutData))

	uc.invalidate(ctx, req, log)

	log.Info("Batch committed",
		zap.Int64("variable_id", result.VariableID),
		zap.Int64("rows_upserted", result.RowsUpserted),
		zap.Int("features", result.Features),
		zap.Int("features_without_data", result.FeaturesWithoutData),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (uc *PipelineUseCase) applyDefaults(req *RunRequest) {
	// A model run is per-realization data; the configured default only covers ensemble runs.
	if req.Reduction == "" && req.Model != "" {
		req.Reduction = climatology.MethodYearMonth
	}
	if req.Reduction == "" {
		req.Reduction = uc.cfg.Reduction
	}
	if req.Reduction == "" {
		req.Reduction = climatology.MethodDecadeMonth
	}
	if req.ZonalMethod == "" {
		req.ZonalMethod = uc.cfg.ZonalMethod
	}
	if !req.ConvertLon360 {
		req.ConvertLon360 = uc.cfg.ConvertLon360
	}
}

func (uc *PipelineUseCase) run(ctx context.Context, req RunRequest, runID uuid.UUID, log *zap.Logger) (*RunResult, error) {
	fail := func(stage string, err error, retryable bool) error {
		var be *pkgerrors.BatchError
		if errors.As(err, &be) {
			return err
		}
		return &pkgerrors.BatchError{
			Stage:     stage,
			Variable:  req.Variable,
			SSP:       int(req.SSP),
			Retryable: retryable && !errors.Is(err, context.Canceled),
			Err:       err,
		}
	}

	kind, err := climatology.KindOf(req.Reduction)
	if err != nil {
		return nil, fail(pkgerrors.StageReduce, err, false)
	}
	if kind == domain.BucketYear && (req.Model == "" || req.Member == "") {
		return nil, fail(pkgerrors.StageReduce, fmt.Errorf("model and ensemble member are required for %s", req.Reduction), false)
	}
	if kind == domain.BucketDecade && (req.Model != "" || req.Member != "") {
		return nil, fail(pkgerrors.StageReduce, fmt.Errorf("%s does not carry a model or ensemble member", req.Reduction), false)
	}
	aggregator, err := zonal.NewAggregator(zonal.Config{
		Method:  zonal.Method(req.ZonalMethod),
		Workers: uc.cfg.ZonalWorkers,
	}, log)
	if err != nil {
		return nil, fail(pkgerrors.StageAggregate, err, false)
	}

	var series *domain.Series
	err = uc.stage(pkgerrors.StageSource, func() error {
		series, err = uc.source.LoadSeries(ctx, domain.SeriesRequest{
			Variable: req.Variable,
			SSP:      req.SSP,
			Model:    req.Model,
			Member:   req.Member,
		})
		return err
	})
	if err != nil {
		return nil, fail(pkgerrors.StageSource, err, !errors.Is(err, os.ErrNotExist))
	}

	var clim *domain.Climatology
	err = uc.stage(pkgerrors.StageReduce, func() error {
		clim, err = uc.reducer.Reduce(series, climatology.Options{
			Method:        req.Reduction,
			Buckets:       req.Buckets,
			Periods:       req.Periods,
			Months:        req.Months,
			ConvertLon360: req.ConvertLon360,
			BBox:          req.BBox,
		})
		return err
	})
	if err != nil {
		be := &pkgerrors.BatchError{
			Stage:    pkgerrors.StageReduce,
			Variable: req.Variable,
			SSP:      int(req.SSP),
			Err:      err,
		}
		var empty *climatology.EmptyBucketError
		if errors.As(err, &empty) {
			be.Bucket = empty.Bucket.String()
		}
		return nil, be
	}

	var features []domain.Feature
	err = uc.stage(pkgerrors.StageFeatures, func() error {
		features, err = uc.features.ListFeatures(ctx, domain.FeatureFilter{
			Category:    req.Category.Name,
			HasSubtypes: req.Category.HasSubtypes,
			OSMType:     req.OSMType,
			OSMSubtypes: req.OSMSubtypes,
			BBox:        req.BBox,
		})
		return err
	})
	if err != nil {
		return nil, fail(pkgerrors.StageFeatures, err, true)
	}

	var zonalResult *zonal.Result
	err = uc.stage(pkgerrors.StageAggregate, func() error {
		zonalResult, err = aggregator.Aggregate(ctx, clim, features)
		return err
	})
	if err != nil {
		return nil, fail(pkgerrors.StageAggregate, err, false)
	}

	batch := &domain.FactBatch{
		Kind:     kind,
		Variable: req.Variable,
		SSP:      req.SSP,
		Model:    req.Model,
		Member:   req.Member,
		Metadata: uc.runMetadata(req, runID, clim, aggregator.Method()),
		Rows:     zonalResult.Rows,
	}

	var loaded *domain.LoadResult
	err = uc.stage(pkgerrors.StageLoad, func() error {
		loaded, err = uc.facts.Load(ctx, batch)
		return err
	})
	if err != nil {
		return nil, fail(pkgerrors.StageLoad, err, true)
	}

	return &RunResult{
		RunID:               runID,
		Variable:            req.Variable,
		SSP:                 req.SSP,
		VariableID:          loaded.VariableID,
		RowsUpserted:        loaded.RowsUpserted,
		Features:            len(features),
		FeaturesWithoutData: zonalResult.FeaturesWithoutData,
	}, nil
}

func (uc *PipelineUseCase) stage(name string, fn func() error) error {
	start := uc.clock.Now()
	err := fn()
	uc.metrics.StageDuration.WithLabelValues(name).Observe(uc.clock.Since(start).Seconds())
	return err
}

// runMetadata is stored on the dimension row; the last committed run wins.
func (uc *PipelineUseCase) runMetadata(req RunRequest, runID uuid.UUID, clim *domain.Climatology, method zonal.Method) map[string]interface{} {
	meta := make(map[string]interface{}, len(clim.Attrs)+10)
	for k, v := range clim.Attrs {
		meta[k] = v
	}
	meta["units"] = clim.Units
	meta["time_aggregation_method"] = req.Reduction
	meta["zonal_agg_method"] = string(method)
	meta["osm_category"] = req.Category.Name
	meta["osm_type"] = req.OSMType
	meta["run_id"] = runID.String()
	meta["processed_at"] = uc.clock.Now().UTC().Format(time.RFC3339)
	if lo, hi, ok := clim.ValueRange(); ok {
		meta["value_min"] = lo
		meta["value_max"] = hi
	}
	if req.Model != "" {
		meta["model"] = req.Model
		meta["ensemble_member"] = req.Member
	}
	if uc.cfg.SourcePrefix != "" {
		meta["source_prefix"] = uc.cfg.SourcePrefix
	}
	return meta
}

// invalidate drops cached responses that may now be stale. Failures are logged only.
func (uc *PipelineUseCase) invalidate(ctx context.Context, req RunRequest, log *zap.Logger) {
	if uc.cache == nil {
		return
	}
	if _, err := uc.cache.DeletePrefix(ctx, QueryCachePrefix); err != nil {
		log.Warn("Failed to invalidate query cache", zap.Error(err))
	}
	if _, err := uc.cache.DeletePrefix(ctx, MetadataCachePrefix+req.Variable+":"); err != nil {
		log.Warn("Failed to invalidate metadata cache", zap.Error(err))
	}
}

// RunAll executes the batches with bounded parallelism. A failed batch does not cancel the
// others; all failures are returned combined.
func (uc *PipelineUseCase) RunAll(ctx context.Context, reqs []RunRequest) ([]*RunResult, error) {
	results := make([]*RunResult, len(reqs))

	var (
		mu   sync.Mutex
		errs error
	)

	var g errgroup.Group
	g.SetLimit(uc.cfg.Parallelism)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			res, err := uc.Run(ctx, req)
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	uc.logger.Info("Pipeline finished",
		zap.Int("batches", len(reqs)),
		zap.Int("failed", len(multierr.Errors(errs))))

	return results, errs
}
