package repository

import (
	"context"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
)

// FactRepository - write side of the climate fact tables
type FactRepository interface {
	// Load resolves the batch's dimension row and upserts every fact row in one transaction.
	// On any failure nothing of the batch is committed.
	Load(ctx context.Context, batch *domain.FactBatch) (*domain.LoadResult, error)
}

// MetadataRepository - read side of the dimension tables
type MetadataRepository interface {
	// GetScenarioVariable returns the dimension row of (variable, ssp), or nil when absent.
	GetScenarioVariable(ctx context.Context, kind domain.BucketKind, variable string, ssp domain.SSP) (*domain.ScenarioVariable, error)
}
