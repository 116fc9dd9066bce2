package gridsource

import (
	"bytes"
	"context"
	"math"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
)

type memStore struct {
	objects map[string][]byte
}

func (m *memStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (m *memStore) Put(_ context.Context, key string, data []byte, _ string) error {
	m.objects[key] = data
	return nil
}

func (m *memStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "mem://" + key, nil
}

func f64(v float64) *float64 { return &v }

func writeGrid(t *testing.T, rows []gridRecord, meta map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	var opts []parquet.WriterOption
	for k, v := range meta {
		opts = append(opts, parquet.KeyValueMetadata(k, v))
	}
	w := parquet.NewGenericWriter[gridRecord](&buf, opts...)
	_, err := w.Write(rows)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestSeriesPrefix(t *testing.T) {
	assert.Equal(t, "climate/tas/ssp585/data/",
		SeriesPrefix("/climate/", domain.SeriesRequest{Variable: "tas", SSP: 585}))
	assert.Equal(t, "climate/tas/historical/data/",
		SeriesPrefix("climate", domain.SeriesRequest{Variable: "tas", SSP: domain.SSPHistorical}))
	assert.Equal(t, "climate/pr/ssp245/ACCESS-CM2/r1i1p1f1/",
		SeriesPrefix("climate", domain.SeriesRequest{Variable: "pr", SSP: 245, Model: "ACCESS-CM2", Member: "r1i1p1f1"}))
}

func TestLoadSeries_AssemblesDenseGrid(t *testing.T) {
	jan := time.Date(2030, 1, 16, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2030, 2, 15, 0, 0, 0, 0, time.UTC)

	// Two files split by month, rows deliberately out of order.
	fileA := writeGrid(t, []gridRecord{
		{Time: jan, Lat: 47, Lon: -121, Value: f64(2)},
		{Time: jan, Lat: 46, Lon: -122, Value: f64(1)},
		{Time: jan, Lat: 46, Lon: -121, Value: nil},
	}, map[string]string{"units": "K", "source": "CMIP6"})
	fileB := writeGrid(t, []gridRecord{
		{Time: feb, Lat: 46, Lon: -122, Value: f64(3)},
		{Time: feb, Lat: 47, Lon: -122, Value: f64(4)},
	}, nil)

	store := &memStore{objects: map[string][]byte{
		"climate/tas/ssp585/data/2030-01.parquet": fileA,
		"climate/tas/ssp585/data/2030-02.parquet": fileB,
		"climate/tas/ssp585/data/README.txt":      []byte("ignored"),
		"climate/tas/ssp126/data/2030-01.parquet": fileA,
	}}

	src := NewParquetSource(store, "climate", zap.NewNop())
	series, err := src.LoadSeries(context.Background(), domain.SeriesRequest{Variable: "tas", SSP: 585})
	require.NoError(t, err)

	assert.Equal(t, "tas", series.Variable)
	assert.Equal(t, domain.SSP(585), series.SSP)
	assert.Equal(t, "K", series.Units)
	assert.Equal(t, "CMIP6", series.Attrs["source"])
	assert.NotContains(t, series.Attrs, "units")

	assert.Equal(t, []float64{-122, -121}, series.Lons)
	assert.Equal(t, []float64{46, 47}, series.Lats)
	require.Len(t, series.Times, 2)
	assert.True(t, series.Times[0].Equal(jan))
	assert.True(t, series.Times[1].Equal(feb))
	require.Len(t, series.Values, 8)

	assert.Equal(t, 1.0, series.At(0, 0, 0))
	assert.True(t, math.IsNaN(series.At(0, 0, 1)), "null value stays missing")
	assert.True(t, math.IsNaN(series.At(0, 1, 0)), "absent row stays missing")
	assert.Equal(t, 2.0, series.At(0, 1, 1))
	assert.Equal(t, 3.0, series.At(1, 0, 0))
	assert.Equal(t, 4.0, series.At(1, 1, 0))
}

func TestLoadSeries_NoFiles(t *testing.T) {
	src := NewParquetSource(&memStore{objects: map[string][]byte{}}, "climate", zap.NewNop())
	_, err := src.LoadSeries(context.Background(), domain.SeriesRequest{Variable: "tas", SSP: 585})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadSeries_InvalidRequest(t *testing.T) {
	src := NewParquetSource(&memStore{objects: map[string][]byte{}}, "climate", zap.NewNop())

	_, err := src.LoadSeries(context.Background(), domain.SeriesRequest{SSP: 585})
	assert.Error(t, err)

	_, err = src.LoadSeries(context.Background(), domain.SeriesRequest{Variable: "tas", SSP: 585, Model: "ACCESS-CM2"})
	assert.Error(t, err)
}

func TestLoadSeries_CorruptFile(t *testing.T) {
	store := &memStore{objects: map[string][]byte{
		"climate/tas/ssp585/data/bad.parquet": []byte("not parquet"),
	}}
	src := NewParquetSource(store, "climate", zap.NewNop())
	_, err := src.LoadSeries(context.Background(), domain.SeriesRequest{Variable: "tas", SSP: 585})
	assert.Error(t, err)
}
