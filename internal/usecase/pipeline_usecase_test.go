package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/config"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/observability"
	pkgerrors "github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/pkg/errors"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/usecase"
)

var (
	processedAt    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	infrastructure = domain.Category{Name: "infrastructure", HasSubtypes: true}
)

// testSeries is a 2x2 grid with three timestamps. Only cell (lat 46, lon -122) has data:
// June 2030 = 10, June 2031 = 14, July 2030 = 20.
func testSeries() *domain.Series {
	nan := math.NaN()
	return &domain.Series{
		Variable: "tas",
		Units:    "K",
		SSP:      585,
		Grid:     domain.Grid{Lons: []float64{-122, -121}, Lats: []float64{46, 47}},
		Times: []time.Time{
			time.Date(2030, 6, 15, 0, 0, 0, 0, time.UTC),
			time.Date(2031, 6, 15, 0, 0, 0, 0, time.UTC),
			time.Date(2030, 7, 15, 0, 0, 0, 0, time.UTC),
		},
		Values: []float64{
			10, nan, nan, nan,
			14, nan, nan, nan,
			20, nan, nan, nan,
		},
		Attrs: map[string]string{"source": "CMIP6"},
	}
}

func testFeatures() []domain.Feature {
	return []domain.Feature{
		{OSMID: 1001, Category: "infrastructure", OSMType: "power", OSMSubtype: "plant", Geometry: orb.Point{-122, 46}},
		{OSMID: 1004, Category: "infrastructure", OSMType: "power", OSMSubtype: "plant", Geometry: orb.Point{10, 10}},
	}
}

type pipelineMocks struct {
	source   *MockGridSource
	features *MockFeatureRepository
	facts    *MockFactRepository
	cache    *MockCacheRepository
	metrics  *observability.Metrics
}

func newPipeline(t *testing.T, cfg usecase.PipelineConfig) (*usecase.PipelineUseCase, *pipelineMocks) {
	t.Helper()
	m := &pipelineMocks{
		source:   &MockGridSource{},
		features: &MockFeatureRepository{},
		facts:    &MockFactRepository{},
		cache:    &MockCacheRepository{},
		metrics:  observability.NewMetricsForTesting(),
	}
	uc := usecase.NewPipelineUseCase(m.source, m.features, m.facts, m.cache, m.metrics,
		clockwork.NewFakeClockAt(processedAt), cfg, zap.NewNop())
	return uc, m
}

func baseRequest() usecase.RunRequest {
	return usecase.RunRequest{
		Variable:    "tas",
		SSP:         585,
		Category:    infrastructure,
		OSMType:     "power",
		OSMSubtypes: []string{"plant"},
	}
}

func TestPipelineUseCase_Run(t *testing.T) {
	uc, m := newPipeline(t, usecase.PipelineConfig{ZonalWorkers: 2})
	ctx := context.Background()

	m.source.On("LoadSeries", ctx, domain.SeriesRequest{Variable: "tas", SSP: 585}).Return(testSeries(), nil)
	m.features.On("ListFeatures", ctx, domain.FeatureFilter{
		Category:    "infrastructure",
		HasSubtypes: true,
		OSMType:     "power",
		OSMSubtypes: []string{"plant"},
	}).Return(testFeatures(), nil)

	var loaded *domain.FactBatch
	m.facts.On("Load", ctx, mock.AnythingOfType("*domain.FactBatch")).
		Run(func(args mock.Arguments) { loaded = args.Get(1).(*domain.FactBatch) }).
		Return(&domain.LoadResult{VariableID: 7, RowsUpserted: 2}, nil)
	m.cache.On("DeletePrefix", ctx, usecase.QueryCachePrefix).Return(int64(3), nil)
	m.cache.On("DeletePrefix", ctx, usecase.MetadataCachePrefix+"tas:").Return(int64(1), nil)

	res, err := uc.Run(ctx, baseRequest())
	require.NoError(t, err)

	assert.Equal(t, int64(7), res.VariableID)
	assert.Equal(t, int64(2), res.RowsUpserted)
	assert.Equal(t, 2, res.Features)
	assert.Equal(t, 1, res.FeaturesWithoutData)

	require.NotNil(t, loaded)
	assert.Equal(t, domain.BucketDecade, loaded.Kind)
	assert.Equal(t, "tas", loaded.Variable)
	assert.Equal(t, domain.SSP(585), loaded.SSP)
	require.Len(t, loaded.Rows, 2)

	june := loaded.Rows[0]
	assert.Equal(t, int64(1001), june.OSMID)
	assert.Equal(t, domain.TimeBucket{Kind: domain.BucketDecade, Period: 2030, Month: 6}, june.Bucket)
	assert.InDelta(t, 12.0, june.Value, 1e-9)
	assert.Equal(t, 1, june.CellCount)

	july := loaded.Rows[1]
	assert.Equal(t, 7, july.Bucket.Month)
	assert.InDelta(t, 20.0, july.Value, 1e-9)

	assert.Equal(t, "K", loaded.Metadata["units"])
	assert.Equal(t, "CMIP6", loaded.Metadata["source"])
	assert.Equal(t, "decade_month", loaded.Metadata["time_aggregation_method"])
	assert.Equal(t, "mean", loaded.Metadata["zonal_agg_method"])
	assert.Equal(t, processedAt.Format(time.RFC3339), loaded.Metadata["processed_at"])
	assert.Equal(t, 12.0, loaded.Metadata["value_min"])
	assert.Equal(t, 20.0, loaded.Metadata["value_max"])
	assert.Equal(t, res.RunID.String(), loaded.Metadata["run_id"])

	m.source.AssertExpectations(t)
	m.features.AssertExpectations(t)
	m.facts.AssertExpectations(t)
	m.cache.AssertExpectations(t)
}

func TestPipelineUseCase_Run_MissingGridIsNotRetryable(t *testing.T) {
	uc, m := newPipeline(t, usecase.PipelineConfig{})
	ctx := context.Background()

	m.source.On("LoadSeries", ctx, mock.Anything).
		Return(nil, fmt.Errorf("no grid files under x: %w", os.ErrNotExist))

	_, err := uc.Run(ctx, baseRequest())
	require.Error(t, err)

	var be *pkgerrors.BatchError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, pkgerrors.StageSource, be.Stage)
	assert.False(t, be.Retryable)
	m.facts.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
}

func TestPipelineUseCase_Run_StorageFailureIsRetryable(t *testing.T) {
	uc, m := newPipeline(t, usecase.PipelineConfig{})
	ctx := context.Background()

	m.source.On("LoadSeries", ctx, mock.Anything).Return(nil, errors.New("connection reset by peer"))

	_, err := uc.Run(ctx, baseRequest())
	assert.True(t, pkgerrors.IsRetryable(err))
}

func TestPipelineUseCase_Run_EmptyRequestedBucketFailsBatch(t *testing.T) {
	uc, m := newPipeline(t, usecase.PipelineConfig{})
	ctx := context.Background()

	m.source.On("LoadSeries", ctx, mock.Anything).Return(testSeries(), nil)

	req := baseRequest()
	req.Buckets = []domain.TimeBucket{{Period: 2030, Month: 6}, {Period: 2040, Month: 1}}

	_, err := uc.Run(ctx, req)
	require.Error(t, err)

	var be *pkgerrors.BatchError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, pkgerrors.StageReduce, be.Stage)
	assert.Equal(t, "decade=2040 month=1", be.Bucket)
	assert.False(t, be.Retryable)
	m.features.AssertNotCalled(t, "ListFeatures", mock.Anything, mock.Anything)
	m.facts.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
}

func TestPipelineUseCase_Run_LoadErrorPassesThrough(t *testing.T) {
	uc, m := newPipeline(t, usecase.PipelineConfig{})
	ctx := context.Background()

	loadErr := &pkgerrors.BatchError{Stage: pkgerrors.StageLoad, Variable: "tas", SSP: 585, Retryable: true, Err: errors.New("deadlock")}
	m.source.On("LoadSeries", ctx, mock.Anything).Return(testSeries(), nil)
	m.features.On("ListFeatures", ctx, mock.Anything).Return(testFeatures(), nil)
	m.facts.On("Load", ctx, mock.Anything).Return(nil, loadErr)

	_, err := uc.Run(ctx, baseRequest())
	assert.Same(t, loadErr, err)
	m.cache.AssertNotCalled(t, "DeletePrefix", mock.Anything, mock.Anything)
}

func TestPipelineUseCase_Run_YearBucketsNeedModel(t *testing.T) {
	uc, m := newPipeline(t, usecase.PipelineConfig{})

	req := baseRequest()
	req.Reduction = "year_month"

	_, err := uc.Run(context.Background(), req)
	require.Error(t, err)
	m.source.AssertNotCalled(t, "LoadSeries", mock.Anything, mock.Anything)
}

func TestPipelineUseCase_Run_ModelJobWithoutKindLoadsYearBuckets(t *testing.T) {
	uc, m := newPipeline(t, usecase.PipelineConfig{Reduction: "decade_month"})
	ctx := context.Background()

	reqs, err := usecase.PlanJob(domain.ETLJobEvent{
		Variable: "tas",
		SSPs:     []string{"585"},
		Model:    "ACCESS-CM2",
		Member:   "r1i1p1f1",
		Category: "infrastructure",
		OSMType:  "power",
	}, config.DefaultCategories(), "")
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	m.source.On("LoadSeries", ctx, domain.SeriesRequest{Variable: "tas", SSP: 585, Model: "ACCESS-CM2", Member: "r1i1p1f1"}).
		Return(testSeries(), nil)
	m.features.On("ListFeatures", ctx, mock.Anything).Return(testFeatures(), nil)

	var loaded *domain.FactBatch
	m.facts.On("Load", ctx, mock.AnythingOfType("*domain.FactBatch")).
		Run(func(args mock.Arguments) { loaded = args.Get(1).(*domain.FactBatch) }).
		Return(&domain.LoadResult{VariableID: 3, RowsUpserted: 3}, nil)
	m.cache.On("DeletePrefix", ctx, mock.Anything).Return(int64(0), nil)

	_, err = uc.Run(ctx, reqs[0])
	require.NoError(t, err)

	require.NotNil(t, loaded)
	assert.Equal(t, domain.BucketYear, loaded.Kind)
	assert.Equal(t, "year:tas:585:ACCESS-CM2:r1i1p1f1", loaded.Identity())
	for _, row := range loaded.Rows {
		assert.Equal(t, domain.BucketYear, row.Bucket.Kind)
	}
}

func TestPipelineUseCase_Run_DecadeBucketsRejectModel(t *testing.T) {
	uc, m := newPipeline(t, usecase.PipelineConfig{})

	req := baseRequest()
	req.Reduction = "decade_month"
	req.Model = "ACCESS-CM2"
	req.Member = "r1i1p1f1"

	_, err := uc.Run(context.Background(), req)
	require.Error(t, err)
	assert.False(t, pkgerrors.IsRetryable(err))
	m.source.AssertNotCalled(t, "LoadSeries", mock.Anything, mock.Anything)
}

func TestPipelineUseCase_RunAll_FailuresDoNotCancelSiblings(t *testing.T) {
	uc, m := newPipeline(t, usecase.PipelineConfig{Parallelism: 2})
	ctx := context.Background()

	m.source.On("LoadSeries", ctx, domain.SeriesRequest{Variable: "tas", SSP: 126}).Return(testSeries(), nil)
	m.source.On("LoadSeries", ctx, domain.SeriesRequest{Variable: "tas", SSP: 585}).
		Return(nil, fmt.Errorf("missing: %w", os.ErrNotExist))
	m.features.On("ListFeatures", ctx, mock.Anything).Return(testFeatures(), nil)
	m.facts.On("Load", ctx, mock.Anything).Return(&domain.LoadResult{VariableID: 1, RowsUpserted: 2}, nil)
	m.cache.On("DeletePrefix", ctx, mock.Anything).Return(int64(0), nil)

	low, high := baseRequest(), baseRequest()
	low.SSP = 126

	results, err := uc.RunAll(ctx, []usecase.RunRequest{low, high})
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)

	require.Len(t, results, 2)
	require.NotNil(t, results[0])
	assert.Equal(t, domain.SSP(126), results[0].SSP)
	assert.Nil(t, results[1])
}
