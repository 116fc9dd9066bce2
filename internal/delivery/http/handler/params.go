package handler

import (
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/config"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
	pkgerrors "github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/pkg/errors"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/usecase/dto"
)

// parseDataRequest reads the data endpoint's path and query parameters. Semantic checks are left
// to the use case.
func parseDataRequest(c *fiber.Ctx) (*dto.DataRequest, error) {
	req := &dto.DataRequest{
		Format:          c.Params("format"),
		Category:        c.Params("category"),
		OSMTypes:        config.ParseList(c.Query("osm_types")),
		OSMSubtypes:     config.ParseList(c.Query("osm_subtypes")),
		GeomType:        c.Query("geom_type"),
		ClimateVariable: c.Query("climate_variable"),
	}

	for _, raw := range c.Context().QueryArgs().PeekMulti("bbox") {
		var box domain.BoundingBox
		if err := json.Unmarshal(raw, &box); err != nil {
			return nil, pkgerrors.ErrInvalidBoundingBox.WithDetails(map[string]interface{}{
				"bbox": string(raw),
			})
		}
		req.BBoxes = append(req.BBoxes, box)
	}

	var err error
	if req.EPSG, err = intParam(c, "epsg_code"); err != nil {
		return nil, err
	}
	if req.Limit, err = intParam(c, "limit"); err != nil {
		return nil, err
	}
	if raw := c.Query("climate_ssp"); raw != "" {
		ssp, err := domain.ParseSSP(raw)
		if err != nil {
			return nil, invalidParam("climate_ssp", raw)
		}
		v := int(ssp)
		req.ClimateSSP = &v
	}
	if req.ClimateMonths, err = intListParam(c, "climate_month"); err != nil {
		return nil, err
	}
	if req.ClimateDecades, err = intListParam(c, "climate_decade"); err != nil {
		return nil, err
	}
	if req.County, err = boolParam(c, "county"); err != nil {
		return nil, err
	}
	if req.City, err = boolParam(c, "city"); err != nil {
		return nil, err
	}

	return req, nil
}

func intParam(c *fiber.Ctx, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidParam(name, raw)
	}
	return v, nil
}

func intListParam(c *fiber.Ctx, name string) ([]int, error) {
	parts := config.ParseList(c.Query(name))
	if len(parts) == 0 {
		return nil, nil
	}
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, invalidParam(name, p)
		}
		out = append(out, v)
	}
	return out, nil
}

func boolParam(c *fiber.Ctx, name string) (bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, invalidParam(name, raw)
	}
	return v, nil
}

func invalidParam(name, value string) error {
	return pkgerrors.ErrInvalidRequest.WithDetails(map[string]interface{}{
		name: "invalid value " + strconv.Quote(value),
	})
}
