// Package docs registers the OpenAPI description served at /swagger/*.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "Climate Risk Lab"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/v1/data/{format}/{category}": {
            "get": {
                "description": "Returns features of a consolidated category view. geojson condenses one feature per osm_id; json returns one row per feature and climate bucket. Oversized results are answered with a presigned download URL.",
                "produces": ["application/json", "application/geo+json"],
                "tags": ["Data"],
                "summary": "Query OSM features with optional climate exposure",
                "parameters": [
                    {"enum": ["geojson", "json"], "type": "string", "description": "Response format", "name": "format", "in": "path", "required": true},
                    {"type": "string", "description": "OSM category, e.g. infrastructure", "name": "category", "in": "path", "required": true},
                    {"type": "string", "description": "Comma separated osm_type values", "name": "osm_types", "in": "query", "required": true},
                    {"type": "string", "description": "Comma separated osm_subtype values", "name": "osm_subtypes", "in": "query"},
                    {"type": "array", "items": {"type": "string"}, "collectionFormat": "multi", "description": "Repeatable JSON box {\"xmin\",\"xmax\",\"ymin\",\"ymax\"}", "name": "bbox", "in": "query"},
                    {"type": "integer", "default": 4326, "description": "Output SRID", "name": "epsg_code", "in": "query"},
                    {"type": "string", "description": "Point, LineString, Polygon, ...", "name": "geom_type", "in": "query"},
                    {"type": "string", "description": "Climate variable", "name": "climate_variable", "in": "query"},
                    {"type": "string", "description": "SSP, e.g. 585 or ssp585", "name": "climate_ssp", "in": "query"},
                    {"type": "string", "description": "Comma separated months", "name": "climate_month", "in": "query"},
                    {"type": "string", "description": "Comma separated decades", "name": "climate_decade", "in": "query"},
                    {"type": "boolean", "description": "Attach county names", "name": "county", "in": "query"},
                    {"type": "boolean", "description": "Attach city names", "name": "city", "in": "query"},
                    {"type": "integer", "description": "Maximum number of rows", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "GeoJSON FeatureCollection or dto.DataRowsResponse", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}}
                }
            }
        },
        "/api/v1/climate-metadata/{variable}/{ssp}": {
            "get": {
                "description": "Returns the metadata stored with a (variable, ssp) dimension row: units, source attributes and run details.",
                "produces": ["application/json"],
                "tags": ["Data"],
                "summary": "Climate dimension metadata",
                "parameters": [
                    {"type": "string", "description": "Climate variable", "name": "variable", "in": "path", "required": true},
                    {"type": "string", "description": "SSP, e.g. 585, ssp585 or historical", "name": "ssp", "in": "path", "required": true},
                    {"enum": ["decade", "year"], "type": "string", "default": "decade", "description": "Bucket kind", "name": "kind", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.ClimateMetadataResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}}
                }
            }
        },
        "/api/v1/jobs/etl": {
            "post": {
                "description": "Publishes a job that reduces, aggregates and loads one variable for each listed SSP.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Jobs"],
                "summary": "Enqueue a climate ETL job",
                "parameters": [
                    {"description": "ETL job", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.ETLJobRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/dto.JobAcceptedResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}}
                }
            }
        },
        "/api/v1/jobs/refresh": {
            "post": {
                "description": "Publishes a job that rebuilds the consolidated views of the listed categories, or all of them.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Jobs"],
                "summary": "Enqueue a view refresh job",
                "parameters": [
                    {"description": "Refresh job", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/dto.RefreshJobRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/dto.JobAcceptedResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}}
                }
            }
        },
        "/api/v1/health": {
            "get": {
                "description": "Pings the read database and Redis.",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Service health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.HealthResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/dto.HealthResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.BoundingBox": {
            "type": "object",
            "properties": {
                "xmin": {"type": "number"},
                "xmax": {"type": "number"},
                "ymin": {"type": "number"},
                "ymax": {"type": "number"}
            }
        },
        "dto.ClimateMetadataResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "variable": {"type": "string"},
                "ssp": {"type": "integer"},
                "metadata": {"type": "object", "additionalProperties": true}
            }
        },
        "dto.ETLJobRequest": {
            "type": "object",
            "required": ["climate_variable", "ssps", "osm_category", "osm_type"],
            "properties": {
                "climate_variable": {"type": "string"},
                "ssps": {"type": "array", "items": {"type": "string"}},
                "bucket_kind": {"type": "string", "enum": ["decade", "year"]},
                "model": {"type": "string"},
                "ensemble_member": {"type": "string"},
                "osm_category": {"type": "string"},
                "osm_type": {"type": "string"},
                "osm_subtypes": {"type": "array", "items": {"type": "string"}},
                "state_bbox": {"type": "string"},
                "bbox": {"$ref": "#/definitions/domain.BoundingBox"},
                "zonal_agg_method": {"type": "string", "enum": ["mean", "median", "max", "min"]}
            }
        },
        "dto.RefreshJobRequest": {
            "type": "object",
            "properties": {
                "categories": {"type": "array", "items": {"type": "string"}}
            }
        },
        "dto.JobAcceptedResponse": {
            "type": "object",
            "properties": {
                "job_id": {"type": "string"},
                "stream": {"type": "string"},
                "message_id": {"type": "string"}
            }
        },
        "dto.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "services": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "errors.AppError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "details": {"type": "object", "additionalProperties": true}
            }
        },
        "utils.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"$ref": "#/definitions/errors.AppError"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Climate Risk Map API",
	Description:      "Queries OpenStreetMap infrastructure joined with downscaled CMIP6 climate exposure, and enqueues ETL and view refresh jobs.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
