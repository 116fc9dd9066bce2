package postgresosm

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain/repository"
	pkgerrors "github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/pkg/errors"
)

type queryRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

type featureRow struct {
	OSMID       int64           `db:"osm_id"`
	OSMType     string          `db:"osm_type"`
	OSMSubtype  sql.NullString  `db:"osm_subtype"`
	TagsJSON    []byte          `db:"tags_json"`
	Geometry    []byte          `db:"geometry"`
	GeometryWKT sql.NullString  `db:"geometry_wkt"`
	Longitude   sql.NullFloat64 `db:"longitude"`
	Latitude    sql.NullFloat64 `db:"latitude"`
	CountyName  sql.NullString  `db:"county_name"`
	CityName    sql.NullString  `db:"city_name"`

	ClimateVariable sql.NullString  `db:"climate_variable"`
	ClimateSSP      sql.NullInt64   `db:"climate_ssp"`
	ClimateMonth    sql.NullInt64   `db:"climate_month"`
	ClimateDecade   sql.NullInt64   `db:"climate_decade"`
	ClimateExposure sql.NullFloat64 `db:"climate_exposure"`
}

// NewQueryRepository creates the data query repository
func NewQueryRepository(db *DB) repository.QueryRepository {
	return &queryRepository{
		db:     db.DB,
		logger: db.logger,
	}
}

func (r *queryRepository) QueryFeatures(ctx context.Context, q *domain.DataQuery) ([]domain.FeatureRecord, error) {
	query, args, err := buildDataQuery(q)
	if err != nil {
		return nil, pkgerrors.ErrInvalidRequest.WithMessage(err.Error())
	}

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to query features",
			zap.String("category", q.Category),
			zap.Strings("osm_types", q.OSMTypes),
			zap.Error(err))
		return nil, pkgerrors.ErrDatabaseError
	}
	defer rows.Close()

	records := make([]domain.FeatureRecord, 0, 64)
	for rows.Next() {
		var row featureRow
		if err := rows.StructScan(&row); err != nil {
			r.logger.Error("failed to scan feature row", zap.Error(err))
			return nil, pkgerrors.ErrDatabaseError
		}
		rec, err := row.toDomain(q.Climate != nil)
		if err != nil {
			r.logger.Warn("skipping feature with undecodable geometry",
				zap.Int64("osm_id", row.OSMID), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("failed to iterate feature rows", zap.Error(err))
		return nil, pkgerrors.ErrDatabaseError
	}

	r.logger.Debug("data query executed",
		zap.String("category", q.Category),
		zap.Int("rows", len(records)))

	return records, nil
}

func (row featureRow) toDomain(withClimate bool) (domain.FeatureRecord, error) {
	geom, err := decodeGeometry(row.Geometry)
	if err != nil {
		return domain.FeatureRecord{}, err
	}

	rec := domain.FeatureRecord{
		OSMID:       row.OSMID,
		OSMType:     row.OSMType,
		Tags:        parseTags(row.TagsJSON),
		Geometry:    geom,
		GeometryWKT: row.GeometryWKT.String,
		Longitude:   row.Longitude.Float64,
		Latitude:    row.Latitude.Float64,
	}
	if row.OSMSubtype.Valid {
		rec.OSMSubtype = nullableString(&row.OSMSubtype.String)
	}
	if row.CountyName.Valid {
		rec.County = nullableString(&row.CountyName.String)
	}
	if row.CityName.Valid {
		rec.City = nullableString(&row.CityName.String)
	}

	// A LEFT JOIN miss leaves every climate column NULL.
	if withClimate && row.ClimateVariable.Valid {
		cv := &domain.ClimateValue{
			Variable: row.ClimateVariable.String,
			SSP:      int(row.ClimateSSP.Int64),
			Month:    int(row.ClimateMonth.Int64),
			Decade:   int(row.ClimateDecade.Int64),
		}
		if row.ClimateExposure.Valid {
			v := row.ClimateExposure.Float64
			cv.Value = &v
		}
		rec.Climate = cv
	}
	return rec, nil
}
