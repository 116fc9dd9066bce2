package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	pkgerrors "github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/pkg/errors"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/pkg/utils"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/usecase/dto"
)

// JobService enqueues background work
type JobService interface {
	EnqueueETL(ctx context.Context, req dto.ETLJobRequest) (*dto.JobAcceptedResponse, error)
	EnqueueRefresh(ctx context.Context, req dto.RefreshJobRequest) (*dto.JobAcceptedResponse, error)
}

type JobHandler struct {
	jobs   JobService
	logger *zap.Logger
}

func NewJobHandler(jobs JobService, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		jobs:   jobs,
		logger: logger,
	}
}

// EnqueueETL godoc
// @Summary Enqueue a climate ETL job
// @Description Publishes a job that reduces, aggregates and loads one variable for each listed SSP.
// @Tags Jobs
// @Accept json
// @Produce json
// @Param request body dto.ETLJobRequest true "ETL job"
// @Success 202 {object} utils.SuccessResponse{data=dto.JobAcceptedResponse}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Failure 500 {object} utils.ErrorResponse
// @Router /api/v1/jobs/etl [post]
func (h *JobHandler) EnqueueETL(c *fiber.Ctx) error {
	var req dto.ETLJobRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, pkgerrors.ErrInvalidRequest.WithMessage("Invalid request body"))
	}

	resp, err := h.jobs.EnqueueETL(c.UserContext(), req)
	if err != nil {
		return utils.SendError(c, err)
	}

	h.logger.Info("ETL job enqueued",
		zap.String("job_id", resp.JobID.String()),
		zap.String("variable", req.Variable))
	return utils.SendAccepted(c, resp)
}

// EnqueueRefresh godoc
// @Summary Enqueue a view refresh job
// @Description Publishes a job that rebuilds the consolidated views of the listed categories, or all of them.
// @Tags Jobs
// @Accept json
// @Produce json
// @Param request body dto.RefreshJobRequest false "Refresh job"
// @Success 202 {object} utils.SuccessResponse{data=dto.JobAcceptedResponse}
// @Failure 404 {object} utils.ErrorResponse
// @Failure 500 {object} utils.ErrorResponse
// @Router /api/v1/jobs/refresh [post]
func (h *JobHandler) EnqueueRefresh(c *fiber.Ctx) error {
	var req dto.RefreshJobRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.SendError(c, pkgerrors.ErrInvalidRequest.WithMessage("Invalid request body"))
		}
	}

	resp, err := h.jobs.EnqueueRefresh(c.UserContext(), req)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendAccepted(c, resp)
}
