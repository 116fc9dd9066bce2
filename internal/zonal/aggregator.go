// Package zonal joins a reduced climatology grid with vector features.
package zonal

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
)

const (
	// DefaultCellSize is the footprint width used when an axis has a single center.
	DefaultCellSize = 0.25

	chunksPerWorker = 4
)

// Config of an Aggregator
type Config struct {
	Method   Method
	Workers  int
	CellSize float64
}

// Result of one aggregation
type Result struct {
	Rows []domain.ZonalRow

	// FeaturesWithData counts features that produced at least one row.
	FeaturesWithData int

	// FeaturesWithoutData counts features with no intersecting cell or only NaN cells.
	FeaturesWithoutData int
}

// Aggregator computes zonal statistics per feature and bucket.
type Aggregator struct {
	cfg    Config
	logger *zap.Logger
}

func NewAggregator(cfg Config, logger *zap.Logger) (*Aggregator, error) {
	method, err := ParseMethod(string(cfg.Method))
	if err != nil {
		return nil, err
	}
	cfg.Method = method
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.CellSize <= 0 {
		cfg.CellSize = DefaultCellSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{cfg: cfg, logger: logger}, nil
}

// Method returns the configured aggregation method.
func (a *Aggregator) Method() Method {
	return a.cfg.Method
}

type chunkResult struct {
	rows     []domain.ZonalRow
	withData int
	noData   int
}

// Aggregate emits one row per (feature, bucket) that has at least one finite intersecting cell.
// Features without any intersecting cell emit nothing. Row order follows feature order, then
// bucket order.
func (a *Aggregator) Aggregate(ctx context.Context, clim *domain.Climatology, features []domain.Feature) (*Result, error) {
	if clim == nil || clim.Cells() == 0 {
		return nil, fmt.Errorf("zonal: climatology grid is empty")
	}
	if want := len(clim.Buckets) * clim.Cells(); len(clim.Values) != want {
		return nil, fmt.Errorf("zonal: climatology has %d values, want %d", len(clim.Values), want)
	}

	idx := newCellIndex(clim.Grid, a.cfg.CellSize)

	chunkSize := len(features)/(a.cfg.Workers*chunksPerWorker) + 1
	chunks := (len(features) + chunkSize - 1) / chunkSize
	results := make([]chunkResult, chunks)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Workers)

	for i := 0; i < chunks; i++ {
		i := i
		lo := i * chunkSize
		hi := min(lo+chunkSize, len(features))
		g.Go(func() error {
			res, err := a.aggregateChunk(ctx, idx, clim, features[lo:hi])
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Result{}
	for _, r := range results {
		out.Rows = append(out.Rows, r.rows...)
		out.FeaturesWithData += r.withData
		out.FeaturesWithoutData += r.noData
	}

	if out.FeaturesWithoutData > 0 {
		a.logger.Info("Features without climate data",
			zap.String("variable", clim.Variable),
			zap.Stringer("ssp", clim.SSP),
			zap.Int("count", out.FeaturesWithoutData),
			zap.Int("total", len(features)))
	}

	return out, nil
}

func (a *Aggregator) aggregateChunk(ctx context.Context, idx *cellIndex, clim *domain.Climatology, features []domain.Feature) (chunkResult, error) {
	var res chunkResult
	cellsPerSlice := clim.Cells()
	nx := len(clim.Lons)
	values := make([]float64, 0, 16)

	for _, f := range features {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		cells := idx.cellsOf(f.Geometry)
		emitted := 0
		for bi, bucket := range clim.Buckets {
			values = values[:0]
			for _, c := range cells {
				v := clim.Values[bi*cellsPerSlice+c.y*nx+c.x]
				if !math.IsNaN(v) {
					values = append(values, v)
				}
			}
			if len(values) == 0 {
				continue
			}

			stats := summarize(values)
			res.rows = append(res.rows, domain.ZonalRow{
				OSMID:     f.OSMID,
				Bucket:    bucket,
				Value:     a.cfg.Method.Pick(stats),
				Stats:     stats,
				CellCount: len(values),
			})
			emitted++
		}

		if emitted == 0 {
			res.noData++
		} else {
			res.withData++
		}
	}
	return res, nil
}
