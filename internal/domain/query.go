package domain

import "github.com/paulmach/orb"

// Admin levels of osm.place_polygon joined by the query API.
const (
	AdminLevelCounty = 6
	AdminLevelCity   = 8
)

// DataQuery - validated filter set of the data endpoint.
type DataQuery struct {
	Category    string
	HasSubtypes bool
	OSMTypes    []string
	OSMSubtypes []string
	BBoxes      []BoundingBox
	EPSG        int
	GeomType    string
	Climate     *ClimateFilter
	County      bool
	City        bool
	Limit       int
}

// ClimateFilter - all four fields are required together.
type ClimateFilter struct {
	Variable string `json:"variable"`
	SSP      SSP    `json:"ssp"`
	Months   []int  `json:"months"`
	Decades  []int  `json:"decades"`
}

// FeatureRecord - one row of the data query: a feature, optionally paired with one climate bucket
// and one county/city match.
type FeatureRecord struct {
	OSMID       int64
	OSMType     string
	OSMSubtype  *string
	Tags        map[string]string
	Geometry    orb.Geometry
	GeometryWKT string
	Longitude   float64
	Latitude    float64
	County      *string
	City        *string
	Climate     *ClimateValue
}

// ClimateValue - a climate fact joined to a feature.
type ClimateValue struct {
	Variable string   `json:"variable"`
	SSP      int      `json:"ssp"`
	Month    int      `json:"month"`
	Decade   int      `json:"decade"`
	Value    *float64 `json:"value"`
}
