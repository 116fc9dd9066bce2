package repository

import (
	"context"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
)

// FeatureRepository - reads features from the consolidated views for zonal aggregation
type FeatureRepository interface {
	// ListFeatures returns features of one category and type with geometries in EPSG:4326.
	ListFeatures(ctx context.Context, filter domain.FeatureFilter) ([]domain.Feature, error)
}

// ViewRepository - materialized view consolidation
type ViewRepository interface {
	// SourceTables returns the existing per-geometry-kind base tables of the category.
	SourceTables(ctx context.Context, category domain.Category) ([]string, error)

	// Rebuild recreates osm.<category> from its base tables and swaps it in atomically.
	Rebuild(ctx context.Context, category domain.Category) (*domain.RefreshResult, error)
}

// QueryRepository - the data query contract
type QueryRepository interface {
	// QueryFeatures returns one record per feature x climate bucket x admin match.
	QueryFeatures(ctx context.Context, q *domain.DataQuery) ([]domain.FeatureRecord, error)
}
