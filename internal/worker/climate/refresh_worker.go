package climate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain/repository"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/worker"
)

const RefreshWorkerName = "view-refresh"

// ViewRefresher rebuilds consolidated views
type ViewRefresher interface {
	Refresh(ctx context.Context, names []string) ([]domain.RefreshResult, error)
}

// RefreshWorker consumes view refresh jobs
type RefreshWorker struct {
	*worker.BaseWorker
	refresher ViewRefresher
	streams   repository.StreamRepository
	clock     clockwork.Clock
}

func NewRefreshWorker(
	refresher ViewRefresher,
	streams repository.StreamRepository,
	clock clockwork.Clock,
	consumerGroup string,
	logger *zap.Logger,
) *RefreshWorker {
	return &RefreshWorker{
		BaseWorker: worker.NewBaseWorker(RefreshWorkerName, domain.StreamViewRefresh, consumerGroup, streams, logger),
		refresher:  refresher,
		streams:    streams,
		clock:      clock,
	}
}

func (w *RefreshWorker) Start(ctx context.Context) error {
	return w.Consume(ctx, w.handle)
}

func (w *RefreshWorker) handle(ctx context.Context, msg domain.StreamMessage) error {
	var job domain.ViewRefreshEvent
	if err := json.Unmarshal([]byte(msg.Data), &job); err != nil {
		return fmt.Errorf("parse refresh job: %w", err)
	}

	w.Logger().Info("Refreshing views",
		zap.String("job_id", job.JobID.String()),
		zap.Strings("categories", job.Categories))

	results, err := w.refresher.Refresh(ctx, job.Categories)
	done := domain.ViewRefreshDoneEvent{
		JobID:      job.JobID,
		Results:    results,
		Status:     domain.JobStatusSucceeded,
		FinishedAt: w.clock.Now().UTC(),
	}
	if done.Results == nil {
		done.Results = []domain.RefreshResult{}
	}
	if err != nil {
		done.Status = domain.JobStatusFailed
		done.Error = err.Error()
	}

	if _, perr := w.streams.PublishToStream(ctx, domain.StreamViewRefreshed, done); perr != nil {
		w.Logger().Error("Failed to publish refresh result",
			zap.String("job_id", job.JobID.String()),
			zap.Error(perr))
	}
	return nil
}
