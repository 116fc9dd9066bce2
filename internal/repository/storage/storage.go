// Package storage provides the object stores behind climate grid input and user downloads.
package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/config"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain/repository"
)

const (
	BackendS3    = "s3"
	BackendLocal = "local"
)

// New returns the object store selected by STORAGE_BACKEND.
func New(ctx context.Context, cfg config.StorageConfig, localDir string, logger *zap.Logger) (repository.ObjectStore, error) {
	switch cfg.Backend {
	case BackendS3:
		return NewS3Store(ctx, cfg, logger)
	case BackendLocal:
		return NewLocalStore(localDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
