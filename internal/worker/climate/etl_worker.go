package climate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/config"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain/repository"
	pkgerrors "github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/pkg/errors"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/usecase"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/worker"
)

const ETLWorkerName = "climate-etl"

// PipelineRunner runs one batch
type PipelineRunner interface {
	Run(ctx context.Context, req usecase.RunRequest) (*usecase.RunResult, error)
}

// ETLWorkerConfig - retry and planning settings of the ETL worker
type ETLWorkerConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
	Parallelism  int
	DefaultState string
}

// ETLWorker consumes ETL jobs, runs one pipeline batch per SSP and reports each batch on the
// done stream.
type ETLWorker struct {
	*worker.BaseWorker
	pipeline   PipelineRunner
	streams    repository.StreamRepository
	categories config.CategoryRegistry
	clock      clockwork.Clock
	cfg        ETLWorkerConfig
}

func NewETLWorker(
	pipeline PipelineRunner,
	streams repository.StreamRepository,
	categories config.CategoryRegistry,
	clock clockwork.Clock,
	consumerGroup string,
	cfg ETLWorkerConfig,
	logger *zap.Logger,
) *ETLWorker {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return &ETLWorker{
		BaseWorker: worker.NewBaseWorker(ETLWorkerName, domain.StreamETLJobs, consumerGroup, streams, logger),
		pipeline:   pipeline,
		streams:    streams,
		categories: categories,
		clock:      clock,
		cfg:        cfg,
	}
}

func (w *ETLWorker) Start(ctx context.Context) error {
	return w.Consume(ctx, w.handle)
}

func (w *ETLWorker) handle(ctx context.Context, msg domain.StreamMessage) error {
	var job domain.ETLJobEvent
	if err := json.Unmarshal([]byte(msg.Data), &job); err != nil {
		// Malformed messages are acked and dropped; there is no job id to report against.
		return fmt.Errorf("parse etl job: %w", err)
	}

	log := w.Logger().With(
		zap.String("job_id", job.JobID.String()),
		zap.String("variable", job.Variable),
		zap.Strings("ssps", job.SSPs))

	reqs, err := usecase.PlanJob(job, w.categories, w.cfg.DefaultState)
	if err != nil {
		log.Warn("Rejected ETL job", zap.Error(err))
		w.publishDone(ctx, domain.ETLDoneEvent{
			JobID:    job.JobID,
			Variable: job.Variable,
			Status:   domain.JobStatusFailed,
			Error:    err.Error(),
		})
		return nil
	}

	log.Info("Processing ETL job", zap.Int("batches", len(reqs)))

	var (
		mu     sync.Mutex
		failed int
	)
	var g errgroup.Group
	g.SetLimit(w.cfg.Parallelism)
	for _, req := range reqs {
		req := req
		g.Go(func() error {
			res, err := w.runWithRetry(ctx, req, log)
			done := domain.ETLDoneEvent{
				JobID:    job.JobID,
				Variable: req.Variable,
				SSP:      int(req.SSP),
				Status:   domain.JobStatusSucceeded,
			}
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				done.Status = domain.JobStatusFailed
				done.Error = err.Error()
			} else {
				done.RowsUpserted = res.RowsUpserted
				done.Features = res.Features
			}
			w.publishDone(ctx, done)
			return nil
		})
	}
	_ = g.Wait()

	log.Info("ETL job finished", zap.Int("batches", len(reqs)), zap.Int("failed", failed))
	return nil
}

// runWithRetry reruns batches that failed on a transient error, waiting RetryBackoff times the
// attempt number between tries.
func (w *ETLWorker) runWithRetry(ctx context.Context, req usecase.RunRequest, log *zap.Logger) (*usecase.RunResult, error) {
	var lastErr error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn("Retrying batch",
				zap.Int("ssp", int(req.SSP)),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			if err := w.wait(ctx, time.Duration(attempt)*w.cfg.RetryBackoff); err != nil {
				return nil, err
			}
		}

		res, err := w.pipeline.Run(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !pkgerrors.IsRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (w *ETLWorker) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.clock.After(d):
		return nil
	}
}

func (w *ETLWorker) publishDone(ctx context.Context, event domain.ETLDoneEvent) {
	if event.JobID == uuid.Nil {
		event.JobID = uuid.New()
	}
	event.FinishedAt = w.clock.Now().UTC()
	if _, err := w.streams.PublishToStream(ctx, domain.StreamETLDone, event); err != nil {
		w.Logger().Error("Failed to publish ETL result",
			zap.String("job_id", event.JobID.String()),
			zap.Error(err))
	}
}
