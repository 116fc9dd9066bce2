package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/config"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain/repository"
	pkgerrors "github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/pkg/errors"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/pkg/validator"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/usecase/dto"
)

// JobUseCase puts ETL and refresh requests on their streams for the workers.
type JobUseCase struct {
	streams    repository.StreamRepository
	categories config.CategoryRegistry
	clock      clockwork.Clock
	logger     *zap.Logger
}

func NewJobUseCase(
	streams repository.StreamRepository,
	categories config.CategoryRegistry,
	clock clockwork.Clock,
	logger *zap.Logger,
) *JobUseCase {
	return &JobUseCase{
		streams:    streams,
		categories: categories,
		clock:      clock,
		logger:     logger,
	}
}

func (uc *JobUseCase) EnqueueETL(ctx context.Context, req dto.ETLJobRequest) (*dto.JobAcceptedResponse, error) {
	if err := validator.Validate(req); err != nil {
		return nil, pkgerrors.ErrInvalidRequest.WithDetails(validator.Details(err))
	}
	for _, s := range req.SSPs {
		if _, err := domain.ParseSSP(s); err != nil {
			return nil, pkgerrors.ErrInvalidRequest.WithMessage(err.Error())
		}
	}
	if _, ok := uc.categories.Get(req.Category); !ok {
		return nil, pkgerrors.ErrCategoryNotFound.WithMessage(req.Category + " is not a registered category")
	}
	if req.StateBBox != "" {
		if _, ok := domain.StateBBox(req.StateBBox); !ok {
			return nil, pkgerrors.ErrInvalidBoundingBox.WithMessage("unknown state " + req.StateBBox)
		}
	}
	if req.BBox != nil {
		if err := req.BBox.Validate(); err != nil {
			return nil, pkgerrors.ErrInvalidBoundingBox.WithDetails(map[string]interface{}{"reason": err.Error()})
		}
	}

	event := domain.ETLJobEvent{
		JobID:       uuid.New(),
		Variable:    req.Variable,
		SSPs:        req.SSPs,
		Kind:        domain.BucketKind(req.Kind),
		Model:       req.Model,
		Member:      req.Member,
		Category:    req.Category,
		OSMType:     req.OSMType,
		OSMSubtypes: req.OSMSubtypes,
		StateBBox:   req.StateBBox,
		BBox:        req.BBox,
		ZonalMethod: req.ZonalMethod,
		RequestedAt: uc.clock.Now().UTC(),
	}
	return uc.publish(ctx, domain.StreamETLJobs, event.JobID, event)
}

func (uc *JobUseCase) EnqueueRefresh(ctx context.Context, req dto.RefreshJobRequest) (*dto.JobAcceptedResponse, error) {
	for _, name := range req.Categories {
		if _, ok := uc.categories.Get(name); !ok {
			return nil, pkgerrors.ErrCategoryNotFound.WithMessage(name + " is not a registered category")
		}
	}

	event := domain.ViewRefreshEvent{
		JobID:       uuid.New(),
		Categories:  req.Categories,
		RequestedAt: uc.clock.Now().UTC(),
	}
	return uc.publish(ctx, domain.StreamViewRefresh, event.JobID, event)
}

func (uc *JobUseCase) publish(ctx context.Context, stream string, jobID uuid.UUID, event interface{}) (*dto.JobAcceptedResponse, error) {
	id, err := uc.streams.PublishToStream(ctx, stream, event)
	if err != nil {
		uc.logger.Error("Failed to enqueue job",
			zap.String("stream", stream),
			zap.String("job_id", jobID.String()),
			zap.Error(err))
		return nil, pkgerrors.ErrQueueError
	}

	uc.logger.Info("Job enqueued",
		zap.String("stream", stream),
		zap.String("job_id", jobID.String()),
		zap.String("message_id", id))
	return &dto.JobAcceptedResponse{JobID: jobID, Stream: stream, MessageID: id}, nil
}
