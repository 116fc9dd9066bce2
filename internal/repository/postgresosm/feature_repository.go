package postgresosm

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain/repository"
)

type featureRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

type zonalFeatureRow struct {
	OSMID      int64   `db:"osm_id"`
	OSMType    string  `db:"osm_type"`
	OSMSubtype *string `db:"osm_subtype"`
	Geometry   []byte  `db:"geometry"`
	TagsJSON   []byte  `db:"tags_json"`
}

// NewFeatureRepository creates the repository feeding zonal aggregation
func NewFeatureRepository(db *DB) repository.FeatureRepository {
	return &featureRepository{
		db:     db.DB,
		logger: db.logger,
	}
}

// ListFeatures reads features of a consolidated view in EPSG:4326, ordered by osm_id.
func (r *featureRepository) ListFeatures(ctx context.Context, filter domain.FeatureFilter) ([]domain.Feature, error) {
	query, args := buildFeatureQuery(filter)

	var rows []zonalFeatureRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list %s features: %w", filter.Category, err)
	}

	features := make([]domain.Feature, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		geom, err := decodeGeometry(row.Geometry)
		if err != nil || geom == nil {
			skipped++
			continue
		}
		f := domain.Feature{
			OSMID:    row.OSMID,
			Category: filter.Category,
			OSMType:  row.OSMType,
			Geometry: geom,
			Tags:     parseTags(row.TagsJSON),
		}
		if row.OSMSubtype != nil {
			f.OSMSubtype = *row.OSMSubtype
		}
		features = append(features, f)
	}

	if skipped > 0 {
		r.logger.Warn("skipped features with undecodable geometry",
			zap.String("category", filter.Category),
			zap.Int("count", skipped))
	}

	r.logger.Info("features loaded",
		zap.String("category", filter.Category),
		zap.String("osm_type", filter.OSMType),
		zap.Int("count", len(features)))

	return features, nil
}

func buildFeatureQuery(filter domain.FeatureFilter) (string, []interface{}) {
	var args argList

	subtype := "NULL::text"
	if filter.HasSubtypes {
		subtype = viewAlias + ".osm_subtype"
	}

	query := fmt.Sprintf(`SELECT %[1]s.osm_id, %[1]s.osm_type, %[2]s AS osm_subtype,
	ST_AsBinary(ST_Transform(%[1]s.geom, %[3]d)) AS geometry,
	COALESCE(%[1]s.tags, '{}'::jsonb)::text AS tags_json
FROM %[4]s.%[5]s %[1]s`, viewAlias, subtype, SRID4326, osmSchema, pq.QuoteIdentifier(filter.Category))

	var conds []string
	if filter.OSMType != "" {
		conds = append(conds, fmt.Sprintf("%s.osm_type = %s", viewAlias, args.add(filter.OSMType)))
	}
	if filter.HasSubtypes && len(filter.OSMSubtypes) > 0 {
		conds = append(conds, fmt.Sprintf("%s.osm_subtype = ANY(%s)", viewAlias, args.add(pq.Array(filter.OSMSubtypes))))
	}
	if filter.BBox != nil {
		conds = append(conds, fmt.Sprintf("ST_Intersects(%s.geom, ST_Transform(ST_GeomFromText(%s, %d), %d))",
			viewAlias, args.add(filter.BBox.WKT()), SRID4326, SRID3857))
	}
	if len(conds) > 0 {
		query += "\nWHERE " + strings.Join(conds, " AND ")
	}
	query += "\nORDER BY " + viewAlias + ".osm_id"

	return query, args.values
}
