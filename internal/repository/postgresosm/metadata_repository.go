package postgresosm

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain/repository"
	pkgerrors "github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/pkg/errors"
)

type metadataRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

type scenarioVariableRow struct {
	ID           int64  `db:"id"`
	Variable     string `db:"variable"`
	SSP          int    `db:"ssp"`
	MetadataJSON []byte `db:"metadata"`
}

// NewMetadataRepository creates the dimension metadata repository
func NewMetadataRepository(db *DB) repository.MetadataRepository {
	return &metadataRepository{
		db:     db.DB,
		logger: db.logger,
	}
}

func (r *metadataRepository) GetScenarioVariable(ctx context.Context, kind domain.BucketKind, variable string, ssp domain.SSP) (*domain.ScenarioVariable, error) {
	tables, ok := climateTablesByKind[kind]
	if !ok {
		return nil, pkgerrors.ErrInvalidRequest.WithMessage(fmt.Sprintf("unknown bucket kind %q", kind))
	}

	query := fmt.Sprintf(`SELECT id, variable, ssp, metadata::text AS metadata FROM %s WHERE variable = $1 AND ssp = $2`,
		tables.dimension)

	var row scenarioVariableRow
	err := r.db.GetContext(ctx, &row, query, variable, int(ssp))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("failed to get scenario variable",
			zap.String("variable", variable),
			zap.Int("ssp", int(ssp)),
			zap.Error(err))
		return nil, pkgerrors.ErrDatabaseError
	}

	sv := &domain.ScenarioVariable{
		ID:       row.ID,
		Variable: row.Variable,
		SSP:      domain.SSP(row.SSP),
		Metadata: map[string]interface{}{},
	}
	if len(row.MetadataJSON) > 0 {
		if err := json.Unmarshal(row.MetadataJSON, &sv.Metadata); err != nil {
			r.logger.Warn("invalid dimension metadata", zap.Int64("id", row.ID), zap.Error(err))
		}
	}
	return sv, nil
}
