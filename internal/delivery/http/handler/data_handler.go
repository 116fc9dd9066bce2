package handler

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/pkg/utils"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/usecase/dto"
)

// DataService answers data and climate metadata queries
type DataService interface {
	Query(ctx context.Context, req *dto.DataRequest) (*dto.DataResponse, error)
	GetClimateMetadata(ctx context.Context, req dto.ClimateMetadataRequest) (*dto.ClimateMetadataResponse, error)
}

// DataHandler serves the OSM x climate query contract
type DataHandler struct {
	data   DataService
	logger *zap.Logger
}

func NewDataHandler(data DataService, logger *zap.Logger) *DataHandler {
	return &DataHandler{
		data:   data,
		logger: logger,
	}
}

// GetData godoc
// @Summary Query OSM features with optional climate exposure
// @Description Returns features of a consolidated category view. geojson condenses one feature per osm_id; json returns one row per feature and climate bucket. Oversized results are answered with a presigned download URL.
// @Tags Data
// @Produce json
// @Param format path string true "Response format" Enums(geojson, json)
// @Param category path string true "OSM category, e.g. infrastructure"
// @Param osm_types query string true "Comma separated osm_type values"
// @Param osm_subtypes query string false "Comma separated osm_subtype values"
// @Param bbox query []string false "Repeatable JSON box {\"xmin\",\"xmax\",\"ymin\",\"ymax\"}" collectionFormat(multi)
// @Param epsg_code query int false "Output SRID" default(4326)
// @Param geom_type query string false "Point, LineString, Polygon, ..."
// @Param climate_variable query string false "Climate variable"
// @Param climate_ssp query string false "SSP, e.g. 585 or ssp585"
// @Param climate_month query string false "Comma separated months"
// @Param climate_decade query string false "Comma separated decades"
// @Param county query bool false "Attach county names"
// @Param city query bool false "Attach city names"
// @Param limit query int false "Maximum number of rows"
// @Success 200 {object} map[string]interface{} "GeoJSON FeatureCollection or dto.DataRowsResponse"
// @Failure 400 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Failure 500 {object} utils.ErrorResponse
// @Router /api/v1/data/{format}/{category} [get]
func (h *DataHandler) GetData(c *fiber.Ctx) error {
	req, err := parseDataRequest(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	resp, err := h.data.Query(c.UserContext(), req)
	if err != nil {
		return utils.SendError(c, err)
	}

	if resp.PresignedURL != "" {
		return c.JSON(dto.PresignedURLResponse{PresignedURL: resp.PresignedURL})
	}

	cache := "MISS"
	if resp.Cached {
		cache = "HIT"
	}
	c.Set("X-Cache", cache)
	c.Set("X-Feature-Count", strconv.Itoa(resp.Features))
	c.Set(fiber.HeaderContentType, resp.ContentType)
	return c.Send(resp.Body)
}

// GetClimateMetadata godoc
// @Summary Climate dimension metadata
// @Description Returns the metadata stored with a (variable, ssp) dimension row: units, source attributes and run details.
// @Tags Data
// @Produce json
// @Param variable path string true "Climate variable"
// @Param ssp path string true "SSP, e.g. 585, ssp585 or historical"
// @Param kind query string false "Bucket kind" Enums(decade, year) default(decade)
// @Success 200 {object} dto.ClimateMetadataResponse
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/climate-metadata/{variable}/{ssp} [get]
func (h *DataHandler) GetClimateMetadata(c *fiber.Ctx) error {
	req := dto.ClimateMetadataRequest{
		Variable: c.Params("variable"),
		SSP:      c.Params("ssp"),
		Kind:     c.Query("kind"),
	}

	resp, err := h.data.GetClimateMetadata(c.UserContext(), req)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(resp)
}
