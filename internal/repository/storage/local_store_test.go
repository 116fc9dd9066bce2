package storage

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/config"
)

func TestLocalStore_PutGetList(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "tas/ssp585/data/b.parquet", []byte("b"), "application/octet-stream"))
	require.NoError(t, store.Put(ctx, "tas/ssp585/data/a.parquet", []byte("a"), "application/octet-stream"))
	require.NoError(t, store.Put(ctx, "tas/ssp126/data/c.parquet", []byte("c"), "application/octet-stream"))

	keys, err := store.List(ctx, "tas/ssp585/")
	require.NoError(t, err)
	assert.Equal(t, []string{"tas/ssp585/data/a.parquet", "tas/ssp585/data/b.parquet"}, keys)

	data, err := store.Get(ctx, "tas/ssp126/data/c.parquet")
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), data)

	_, err = store.Get(ctx, "missing.parquet")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	err = store.Put(context.Background(), "../outside.txt", []byte("x"), "text/plain")
	assert.Error(t, err)
}

func TestLocalStore_PresignGet(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "user-downloads/x.geojson", []byte("{}"), "application/geo+json"))

	u, err := store.PresignGet(ctx, "user-downloads/x.geojson", time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file://"))
	assert.True(t, strings.HasSuffix(u, "user-downloads/x.geojson"))

	_, err = store.PresignGet(ctx, "user-downloads/missing.geojson", time.Hour)
	assert.Error(t, err)
}

func TestNew_Backends(t *testing.T) {
	dir := t.TempDir()

	store, err := New(context.Background(), config.StorageConfig{Backend: BackendLocal}, dir, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)

	_, err = New(context.Background(), config.StorageConfig{Backend: "ftp"}, dir, zap.NewNop())
	assert.Error(t, err)

	_, err = New(context.Background(), config.StorageConfig{Backend: BackendS3}, dir, zap.NewNop())
	assert.Error(t, err, "bucket is required")
}
