package dto

import (
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
)

// Response formats of the data endpoint
const (
	FormatGeoJSON = "geojson"
	FormatJSON    = "json"
)

// DataRequest - the parsed query parameters of GET /api/v1/data/:format/:category
type DataRequest struct {
	Format      string               `json:"format" validate:"required,oneof=geojson json"`
	Category    string               `json:"category" validate:"required"`
	OSMTypes    []string             `json:"osm_types" validate:"required,min=1,dive,required"`
	OSMSubtypes []string             `json:"osm_subtypes,omitempty" validate:"omitempty,dive,required"`
	BBoxes      []domain.BoundingBox `json:"bbox,omitempty" validate:"omitempty,dive"`
	EPSG        int                  `json:"epsg_code,omitempty" validate:"omitempty,min=1024,max=999999"`
	GeomType    string               `json:"geom_type,omitempty" validate:"omitempty,oneof=Point LineString Polygon MultiPoint MultiLineString MultiPolygon GeometryCollection"`

	ClimateVariable string `json:"climate_variable,omitempty"`
	ClimateSSP      *int   `json:"climate_ssp,omitempty"`
	ClimateMonths   []int  `json:"climate_month,omitempty" validate:"omitempty,dive,min=1,max=12"`
	ClimateDecades  []int  `json:"climate_decade,omitempty"`

	County bool `json:"county,omitempty"`
	City   bool `json:"city,omitempty"`
	Limit  int  `json:"limit,omitempty" validate:"omitempty,min=1"`
}

// HasClimate reports whether any climate parameter was given.
func (r *DataRequest) HasClimate() bool {
	return r.ClimateVariable != "" || r.ClimateSSP != nil || len(r.ClimateMonths) > 0 || len(r.ClimateDecades) > 0
}

// ClimateComplete reports whether all four climate parameters were given.
func (r *DataRequest) ClimateComplete() bool {
	return r.ClimateVariable != "" && r.ClimateSSP != nil && len(r.ClimateMonths) > 0 && len(r.ClimateDecades) > 0
}

// DataResponse - a serialized body, or a download link when the body was too large to return.
type DataResponse struct {
	Body         []byte
	ContentType  string
	PresignedURL string
	Rows         int
	Features     int
	Cached       bool
}

// PresignedURLResponse - body returned instead of an oversized result
type PresignedURLResponse struct {
	PresignedURL string `json:"presigned_url"`
}

// DataRow - one flat row of the json format
type DataRow struct {
	OSMID       int64             `json:"osm_id"`
	OSMType     string            `json:"osm_type"`
	OSMSubtype  *string           `json:"osm_subtype"`
	Tags        map[string]string `json:"tags"`
	GeometryWKT string            `json:"geometry_wkt"`
	Longitude   float64           `json:"longitude"`
	Latitude    float64           `json:"latitude"`
	County      *string           `json:"county,omitempty"`
	City        *string           `json:"city,omitempty"`

	ClimateVariable *string  `json:"climate_variable,omitempty"`
	ClimateSSP      *int     `json:"ssp,omitempty"`
	ClimateMonth    *int     `json:"month,omitempty"`
	ClimateDecade   *int     `json:"decade,omitempty"`
	ClimateExposure *float64 `json:"climate_exposure,omitempty"`
}

// DataRowsResponse - body of the json format
type DataRowsResponse struct {
	Rows  []DataRow `json:"rows"`
	Total int       `json:"total"`
}

// ClimateExposures - the climate buckets of one feature, condensed in query order
type ClimateExposures struct {
	Variable  string     `json:"variable"`
	SSP       int        `json:"ssp"`
	Months    []int      `json:"months"`
	Decades   []int      `json:"decades"`
	Exposures []*float64 `json:"exposures"`
}
