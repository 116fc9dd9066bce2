package postgresosm

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
)

// dataQueryBuilder assembles the data endpoint query against osm.<category>.
type dataQueryBuilder struct {
	q    *domain.DataQuery
	args argList
}

func buildDataQuery(q *domain.DataQuery) (string, []interface{}, error) {
	if q.Category == "" {
		return "", nil, fmt.Errorf("category is required")
	}
	if len(q.OSMTypes) == 0 {
		return "", nil, fmt.Errorf("at least one osm_type is required")
	}

	b := &dataQueryBuilder{q: q}
	parts := []string{
		b.selectClause(),
		b.fromClause(),
		b.joinClause(),
		b.whereClause(),
		b.orderClause(),
		b.limitClause(),
	}

	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n"), b.args.values, nil
}

func (b *dataQueryBuilder) epsg() int {
	if b.q.EPSG == 0 {
		return SRID4326
	}
	return b.q.EPSG
}

func (b *dataQueryBuilder) subtypes() bool {
	return b.q.HasSubtypes
}

// The centroid stands in for the location of lines and polygons; it is not guaranteed to lie on
// the shape.
func (b *dataQueryBuilder) selectClause() string {
	epsg := b.args.add(b.epsg())
	geom := fmt.Sprintf("ST_Transform(%s.geom, %s::integer)", viewAlias, epsg)

	fields := []string{
		viewAlias + ".osm_id",
		viewAlias + ".osm_type",
	}
	if b.subtypes() {
		fields = append(fields, viewAlias+".osm_subtype")
	} else {
		fields = append(fields, "NULL::text AS osm_subtype")
	}
	fields = append(fields,
		fmt.Sprintf("COALESCE(%s.tags, '{}'::jsonb)::text AS tags_json", viewAlias),
		fmt.Sprintf("ST_AsBinary(%s) AS geometry", geom),
		fmt.Sprintf("ST_AsText(%s, %d) AS geometry_wkt", geom, WKTPrecision),
		fmt.Sprintf("ST_X(ST_Centroid(%s)) AS longitude", geom),
		fmt.Sprintf("ST_Y(ST_Centroid(%s)) AS latitude", geom),
	)

	if b.q.County {
		fields = append(fields, "county.name AS county_name")
	} else {
		fields = append(fields, "NULL::text AS county_name")
	}
	if b.q.City {
		fields = append(fields, "city.name AS city_name")
	} else {
		fields = append(fields, "NULL::text AS city_name")
	}

	if b.q.Climate != nil {
		fields = append(fields,
			climateAlias+".variable AS climate_variable",
			climateAlias+".ssp AS climate_ssp",
			climateAlias+".month AS climate_month",
			climateAlias+".decade AS climate_decade",
			climateAlias+".value AS climate_exposure",
		)
	}

	return "SELECT " + strings.Join(fields, ",\n\t")
}

func (b *dataQueryBuilder) fromClause() string {
	return fmt.Sprintf("FROM %s.%s %s", osmSchema, pq.QuoteIdentifier(b.q.Category), viewAlias)
}

func (b *dataQueryBuilder) joinClause() string {
	var joins []string

	admin := []struct {
		enabled bool
		alias   string
		level   int
	}{
		{b.q.County, "county", domain.AdminLevelCounty},
		{b.q.City, "city", domain.AdminLevelCity},
	}
	for _, a := range admin {
		if !a.enabled {
			continue
		}
		joins = append(joins, fmt.Sprintf(
			"LEFT JOIN %s %s ON ST_Intersects(%s.geom, %s.geom) AND %s.admin_level = %s",
			placesTable, a.alias, viewAlias, a.alias, a.alias, b.args.add(a.level)))
	}

	if c := b.q.Climate; c != nil {
		tables := climateTablesByKind[domain.BucketDecade]
		joins = append(joins, fmt.Sprintf(`LEFT JOIN (
		SELECT s.osm_id, d.ssp, d.variable, s.month, s.decade, s.value
		FROM %s s
		JOIN %s d ON s.variable_id = d.id
		WHERE d.ssp = %s AND d.variable = %s AND s.decade = ANY(%s) AND s.month = ANY(%s)
	) %s ON %s.osm_id = %s.osm_id`,
			tables.fact, tables.dimension,
			b.args.add(int(c.SSP)), b.args.add(c.Variable),
			b.args.add(pq.Array(toInt64s(c.Decades))), b.args.add(pq.Array(toInt64s(c.Months))),
			climateAlias, viewAlias, climateAlias))
	}

	return strings.Join(joins, "\n")
}

func (b *dataQueryBuilder) whereClause() string {
	// osm_type is always required to throttle output
	conds := []string{fmt.Sprintf("%s.osm_type = ANY(%s)", viewAlias, b.args.add(pq.Array(b.q.OSMTypes)))}

	if b.subtypes() && len(b.q.OSMSubtypes) > 0 {
		conds = append(conds, fmt.Sprintf("%s.osm_subtype = ANY(%s)", viewAlias, b.args.add(pq.Array(b.q.OSMSubtypes))))
	}

	if b.q.GeomType != "" {
		conds = append(conds, fmt.Sprintf("%s.geom_type = %s", viewAlias, b.args.add("ST_"+b.q.GeomType)))
	}

	// Boxes are lon/lat; they are projected to the storage SRID so the GIST index applies.
	if len(b.q.BBoxes) > 0 {
		boxes := make([]string, 0, len(b.q.BBoxes))
		for _, box := range b.q.BBoxes {
			boxes = append(boxes, fmt.Sprintf(
				"ST_Intersects(%s.geom, ST_Transform(ST_GeomFromText(%s, %d), %d))",
				viewAlias, b.args.add(box.WKT()), SRID4326, SRID3857))
		}
		conds = append(conds, "("+strings.Join(boxes, " OR ")+")")
	}

	return "WHERE " + strings.Join(conds, "\n\tAND ")
}

func (b *dataQueryBuilder) orderClause() string {
	order := viewAlias + ".osm_id"
	if b.q.Climate != nil {
		order += ", " + climateAlias + ".decade, " + climateAlias + ".month"
	}
	return "ORDER BY " + order
}

func (b *dataQueryBuilder) limitClause() string {
	limit := b.q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}
	return "LIMIT " + b.args.add(limit)
}

func toInt64s(values []int) []int64 {
	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = int64(v)
	}
	return out
}
