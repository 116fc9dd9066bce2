package dto

import (
	"github.com/google/uuid"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
)

// ETLJobRequest - body of POST /api/v1/jobs/etl
type ETLJobRequest struct {
	Variable    string              `json:"climate_variable" validate:"required"`
	SSPs        []string            `json:"ssps" validate:"required,min=1,dive,required"`
	Kind        string              `json:"bucket_kind,omitempty" validate:"omitempty,oneof=decade year"`
	Model       string              `json:"model,omitempty" validate:"required_if=Kind year"`
	Member      string              `json:"ensemble_member,omitempty" validate:"required_if=Kind year"`
	Category    string              `json:"osm_category" validate:"required"`
	OSMType     string              `json:"osm_type" validate:"required"`
	OSMSubtypes []string            `json:"osm_subtypes,omitempty"`
	StateBBox   string              `json:"state_bbox,omitempty"`
	BBox        *domain.BoundingBox `json:"bbox,omitempty"`
	ZonalMethod string              `json:"zonal_agg_method,omitempty" validate:"omitempty,oneof=mean median max min"`
}

// RefreshJobRequest - body of POST /api/v1/jobs/refresh. No categories means all of them.
type RefreshJobRequest struct {
	Categories []string `json:"categories,omitempty"`
}

// JobAcceptedResponse - returned with 202 once a job is on its stream
type JobAcceptedResponse struct {
	JobID     uuid.UUID `json:"job_id"`
	Stream    string    `json:"stream"`
	MessageID string    `json:"message_id"`
}
