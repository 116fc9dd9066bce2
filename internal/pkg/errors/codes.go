package errors

import "net/http"

var (
	ErrInvalidRequest = New(
		"INVALID_REQUEST",
		"Invalid request parameters",
		http.StatusBadRequest,
	)

	ErrInvalidBoundingBox = New(
		"INVALID_BOUNDING_BOX",
		`Invalid bounding box. Example: bbox={"xmin": -126.0, "xmax": -119.0, "ymin": 46.1, "ymax": 47.2}`,
		http.StatusUnprocessableEntity,
	)

	ErrIncompleteClimateFilter = New(
		"INCOMPLETE_CLIMATE_FILTER",
		"climate_variable, climate_ssp, climate_month and climate_decade are required when requesting climate data",
		http.StatusUnprocessableEntity,
	)

	ErrUnsupportedFormat = New(
		"UNSUPPORTED_FORMAT",
		"Response format not supported",
		http.StatusUnprocessableEntity,
	)

	ErrCategoryNotFound = New(
		"CATEGORY_NOT_FOUND",
		"OSM category is not available",
		http.StatusNotFound,
	)

	ErrMetadataNotFound = New(
		"METADATA_NOT_FOUND",
		"No climate metadata for the given variable and ssp",
		http.StatusNotFound,
	)

	ErrDatabaseError = New(
		"DATABASE_ERROR",
		"Database operation failed",
		http.StatusInternalServerError,
	)

	ErrCacheError = New(
		"CACHE_ERROR",
		"Cache operation failed",
		http.StatusInternalServerError,
	)

	ErrStorageError = New(
		"STORAGE_ERROR",
		"Object storage operation failed",
		http.StatusInternalServerError,
	)

	ErrQueueError = New(
		"QUEUE_ERROR",
		"Failed to enqueue job",
		http.StatusInternalServerError,
	)

	ErrInternalServer = New(
		"INTERNAL_SERVER_ERROR",
		"Internal server error",
		http.StatusInternalServerError,
	)
)
