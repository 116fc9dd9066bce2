// Package gridsource reads long-format climate grids (time, lat, lon, value) from an object store.
package gridsource

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain/repository"
)

const (
	parquetSuffix = ".parquet"
	dataDir       = "data"
	unitsKey      = "units"
)

// gridRecord is one row of a grid file.
type gridRecord struct {
	Time  time.Time `parquet:"time,timestamp"`
	Lat   float64   `parquet:"lat"`
	Lon   float64   `parquet:"lon"`
	Value *float64  `parquet:"value,optional"`
}

type parquetSource struct {
	store  repository.ObjectStore
	prefix string
	logger *zap.Logger
}

// NewParquetSource reads grids below prefix in store.
func NewParquetSource(store repository.ObjectStore, prefix string, logger *zap.Logger) repository.GridSource {
	return &parquetSource{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// SeriesPrefix returns the directory holding the grid files of req.
func SeriesPrefix(prefix string, req domain.SeriesRequest) string {
	parts := []string{strings.Trim(prefix, "/"), req.Variable, req.SSP.PathSegment()}
	if req.Model != "" {
		parts = append(parts, req.Model, req.Member)
	} else {
		parts = append(parts, dataDir)
	}
	return path.Join(parts...) + "/"
}

func (s *parquetSource) LoadSeries(ctx context.Context, req domain.SeriesRequest) (*domain.Series, error) {
	if req.Variable == "" {
		return nil, fmt.Errorf("variable is required")
	}
	if req.Model != "" && req.Member == "" {
		return nil, fmt.Errorf("ensemble member is required with model %s", req.Model)
	}

	prefix := SeriesPrefix(s.prefix, req)
	keys, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, k := range keys {
		if strings.HasSuffix(k, parquetSuffix) {
			files = append(files, k)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no grid files under %s: %w", prefix, os.ErrNotExist)
	}

	asm := newAssembler()
	attrs := map[string]string{}
	for _, key := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := s.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if err := readFile(key, data, asm, attrs); err != nil {
			return nil, err
		}
	}

	series := asm.series()
	series.Variable = req.Variable
	series.SSP = req.SSP
	series.Model = req.Model
	series.Member = req.Member
	series.Units = attrs[unitsKey]
	delete(attrs, unitsKey)
	series.Attrs = attrs

	s.logger.Info("climate series loaded",
		zap.String("prefix", prefix),
		zap.Int("files", len(files)),
		zap.Int("times", len(series.Times)),
		zap.Int("lats", len(series.Lats)),
		zap.Int("lons", len(series.Lons)),
	)
	return series, nil
}

func readFile(key string, data []byte, asm *assembler, attrs map[string]string) error {
	r := bytes.NewReader(data)
	f, err := parquet.OpenFile(r, int64(len(data)))
	if err != nil {
		return fmt.Errorf("open %s: %w", key, err)
	}
	for _, kv := range f.Metadata().KeyValueMetadata {
		// First file wins on conflicting attributes.
		if _, seen := attrs[kv.Key]; !seen && !strings.HasPrefix(kv.Key, "ARROW:") {
			attrs[kv.Key] = kv.Value
		}
	}

	rows, err := parquet.Read[gridRecord](r, int64(len(data)))
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	for _, row := range rows {
		asm.add(row)
	}
	return nil
}

// assembler collects long-format rows into a dense time-major grid.
type assembler struct {
	records []gridRecord
	times   map[int64]struct{}
	lats    map[float64]struct{}
	lons    map[float64]struct{}
}

func newAssembler() *assembler {
	return &assembler{
		times: map[int64]struct{}{},
		lats:  map[float64]struct{}{},
		lons:  map[float64]struct{}{},
	}
}

func (a *assembler) add(r gridRecord) {
	a.records = append(a.records, r)
	a.times[r.Time.UnixNano()] = struct{}{}
	a.lats[r.Lat] = struct{}{}
	a.lons[r.Lon] = struct{}{}
}

func (a *assembler) series() *domain.Series {
	times := sortedKeys(a.times)
	lats := sortedKeys(a.lats)
	lons := sortedKeys(a.lons)

	tIdx := indexOf(times)
	yIdx := indexOf(lats)
	xIdx := indexOf(lons)

	values := make([]float64, len(times)*len(lats)*len(lons))
	for i := range values {
		values[i] = math.NaN()
	}
	for _, r := range a.records {
		if r.Value == nil {
			continue
		}
		t, y, x := tIdx[r.Time.UnixNano()], yIdx[r.Lat], xIdx[r.Lon]
		values[(t*len(lats)+y)*len(lons)+x] = *r.Value
	}

	ts := make([]time.Time, len(times))
	for i, n := range times {
		ts[i] = time.Unix(0, n).UTC()
	}

	return &domain.Series{
		Grid:   domain.Grid{Lons: lons, Lats: lats},
		Times:  ts,
		Values: values,
	}
}

func sortedKeys[K int64 | float64](m map[K]struct{}) []K {
	out := make([]K, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func indexOf[K comparable](keys []K) map[K]int {
	idx := make(map[K]int, len(keys))
	for i, k := range keys {
		idx[k] = i
	}
	return idx
}
