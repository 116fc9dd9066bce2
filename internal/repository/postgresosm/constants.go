package postgresosm

import "github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"

const (
	SRID4326 = 4326
	// SRID3857 is the storage projection of PgOSM Flex geometries.
	SRID3857 = 3857

	// DefaultQueryLimit caps data queries that do not pass a limit.
	DefaultQueryLimit = 50000
	MaxQueryLimit     = 500000

	// WKTPrecision is the number of decimal digits of geometry_wkt.
	WKTPrecision = 3
)

const (
	osmSchema    = "osm"
	tagsTable    = "osm.tags"
	placesTable  = "osm.place_polygon"
	viewAlias    = "v"
	climateAlias = "climate"
)

type climateTables struct {
	fact      string
	dimension string
	period    string
}

var climateTablesByKind = map[domain.BucketKind]climateTables{
	domain.BucketDecade: {fact: "climate.scenariomip", dimension: "climate.scenariomip_variables", period: "decade"},
	domain.BucketYear:   {fact: "climate.nasa_nex", dimension: "climate.nasa_nex_variables", period: "year"},
}
