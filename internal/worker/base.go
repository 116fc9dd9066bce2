package worker

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain/repository"
)

// HandlerFunc processes one message. The message is acknowledged whatever the result; failures
// are reported on the done stream by the handler itself.
type HandlerFunc func(ctx context.Context, msg domain.StreamMessage) error

// BaseWorker holds the consumer group plumbing shared by all workers
type BaseWorker struct {
	name          string
	stream        string
	consumerGroup string
	consumerName  string
	streams       repository.StreamRepository
	logger        *zap.Logger
	stopChan      chan struct{}
	stopped       bool
	mu            sync.Mutex
}

func NewBaseWorker(name, stream, consumerGroup string, streams repository.StreamRepository, logger *zap.Logger) *BaseWorker {
	hostname, _ := os.Hostname()
	return &BaseWorker{
		name:          name,
		stream:        stream,
		consumerGroup: consumerGroup,
		consumerName:  fmt.Sprintf("%s-%s-%d", name, hostname, os.Getpid()),
		streams:       streams,
		logger:        logger.With(zap.String("worker", name)),
		stopChan:      make(chan struct{}),
	}
}

func (w *BaseWorker) Name() string {
	return w.name
}

func (w *BaseWorker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}

	w.logger.Info("Stopping worker")
	close(w.stopChan)
	w.stopped = true
	return nil
}

func (w *BaseWorker) IsStopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

func (w *BaseWorker) StopChan() <-chan struct{} {
	return w.stopChan
}

func (w *BaseWorker) ConsumerGroup() string {
	return w.consumerGroup
}

func (w *BaseWorker) Logger() *zap.Logger {
	return w.logger
}

// Consume creates the consumer group and hands every message to handle until ctx is cancelled,
// Stop is called or the message channel closes.
func (w *BaseWorker) Consume(ctx context.Context, handle HandlerFunc) error {
	w.logger.Info("Starting worker",
		zap.String("stream", w.stream),
		zap.String("consumer_group", w.consumerGroup),
		zap.String("consumer_name", w.consumerName))

	if err := w.streams.CreateConsumerGroup(ctx, w.stream, w.consumerGroup); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	messages, err := w.streams.ConsumeStream(ctx, w.stream, w.consumerGroup, w.consumerName)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", w.stream, err)
	}

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker stopped")
			return nil

		case <-ctx.Done():
			w.logger.Info("Context cancelled")
			return ctx.Err()

		case msg, ok := <-messages:
			if !ok {
				return ctx.Err()
			}
			if err := handle(ctx, msg); err != nil {
				w.logger.Error("Failed to handle message",
					zap.String("message_id", msg.ID),
					zap.Error(err))
			}
			if err := w.streams.AckMessage(ctx, w.stream, w.consumerGroup, msg.ID); err != nil {
				w.logger.Error("Failed to ack message", zap.String("message_id", msg.ID), zap.Error(err))
			}
		}
	}
}
