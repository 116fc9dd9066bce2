package domain

import (
	"time"

	"github.com/google/uuid"
)

// Stream names
const (
	StreamETLJobs       = "stream:climate:etl"
	StreamETLDone       = "stream:climate:etl:done"
	StreamViewRefresh   = "stream:osm:refresh"
	StreamViewRefreshed = "stream:osm:refresh:done"
)

// StreamMessage - raw message read from a Redis stream
type StreamMessage struct {
	ID   string
	Data string
}

// ETLJobEvent - request to run the pipeline for one variable over one or more SSPs
type ETLJobEvent struct {
	JobID       uuid.UUID    `json:"job_id"`
	Variable    string       `json:"climate_variable" validate:"required"`
	SSPs        []string     `json:"ssps" validate:"required,min=1"`
	Kind        BucketKind   `json:"bucket_kind,omitempty" validate:"omitempty,oneof=decade year"`
	Model       string       `json:"model,omitempty"`
	Member      string       `json:"ensemble_member,omitempty"`
	Category    string       `json:"osm_category" validate:"required"`
	OSMType     string       `json:"osm_type" validate:"required"`
	OSMSubtypes []string     `json:"osm_subtypes,omitempty"`
	StateBBox   string       `json:"state_bbox,omitempty"`
	BBox        *BoundingBox `json:"bbox,omitempty"`
	ZonalMethod string       `json:"zonal_agg_method,omitempty" validate:"omitempty,oneof=mean median max min"`
	RequestedAt time.Time    `json:"requested_at"`
}

// ETLDoneEvent - result of an ETL job, one per SSP run
type ETLDoneEvent struct {
	JobID        uuid.UUID `json:"job_id"`
	Variable     string    `json:"climate_variable"`
	SSP          int       `json:"ssp"`
	RowsUpserted int64     `json:"rows_upserted"`
	Features     int       `json:"features"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}

// ViewRefreshEvent - request to rebuild consolidated views. Empty Categories means all.
type ViewRefreshEvent struct {
	JobID       uuid.UUID `json:"job_id"`
	Categories  []string  `json:"categories,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// ViewRefreshDoneEvent - result of a refresh job
type ViewRefreshDoneEvent struct {
	JobID      uuid.UUID       `json:"job_id"`
	Results    []RefreshResult `json:"results"`
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Job statuses
const (
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)
