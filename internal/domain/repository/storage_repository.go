package repository

import (
	"context"
	"time"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
)

// ObjectStore - blob storage for climate grids and user downloads
type ObjectStore interface {
	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Get reads a whole object.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes a whole object.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// PresignGet returns a time limited download URL for key.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// GridSource - loads the climate time series of one scenario
type GridSource interface {
	// LoadSeries reads every grid file of the scenario identity and assembles one series.
	LoadSeries(ctx context.Context, req domain.SeriesRequest) (*domain.Series, error)
}
