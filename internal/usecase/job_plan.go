package usecase

import (
	"fmt"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/climatology"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/config"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
)

// PlanJob expands an ETL job into one run request per SSP. An explicit bbox wins over a state
// name; defaultState applies when the job names neither.
func PlanJob(job domain.ETLJobEvent, categories config.CategoryRegistry, defaultState string) ([]RunRequest, error) {
	category, ok := categories.Get(job.Category)
	if !ok {
		return nil, fmt.Errorf("unknown osm category %q", job.Category)
	}

	bbox := job.BBox
	if bbox == nil {
		state := job.StateBBox
		if state == "" {
			state = defaultState
		}
		if state != "" {
			b, ok := domain.StateBBox(state)
			if !ok {
				return nil, fmt.Errorf("unknown state bbox %q", state)
			}
			bbox = &b
		}
	}

	var reduction string
	switch job.Kind {
	case domain.BucketDecade:
		reduction = climatology.MethodDecadeMonth
	case domain.BucketYear:
		reduction = climatology.MethodYearMonth
	case "":
	default:
		return nil, fmt.Errorf("unknown bucket kind %q", job.Kind)
	}

	reqs := make([]RunRequest, 0, len(job.SSPs))
	for _, s := range job.SSPs {
		ssp, err := domain.ParseSSP(s)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, RunRequest{
			Variable:    job.Variable,
			SSP:         ssp,
			Model:       job.Model,
			Member:      job.Member,
			Category:    category,
			OSMType:     job.OSMType,
			OSMSubtypes: job.OSMSubtypes,
			BBox:        bbox,
			Reduction:   reduction,
			ZonalMethod: job.ZonalMethod,
		})
	}
	return reqs, nil
}
