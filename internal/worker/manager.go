package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// DefaultShutdownTimeout bounds how long Stop waits for in-flight batches.
const DefaultShutdownTimeout = 30 * time.Second

// ManagerOption customizes a WorkerManager.
type ManagerOption func(*WorkerManager)

// WithShutdownTimeout overrides DefaultShutdownTimeout. Non-positive values are ignored.
func WithShutdownTimeout(d time.Duration) ManagerOption {
	return func(m *WorkerManager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithClock sets the clock that times shutdown.
func WithClock(c clockwork.Clock) ManagerOption {
	return func(m *WorkerManager) {
		m.clock = c
	}
}

// WorkerManager runs the ETL and refresh workers and stops them together.
type WorkerManager struct {
	workers []Worker
	running map[string]struct{}
	logger  *zap.Logger
	clock   clockwork.Clock
	wg      sync.WaitGroup
	mu      sync.Mutex
	timeout time.Duration
}

func NewWorkerManager(logger *zap.Logger, opts ...ManagerOption) *WorkerManager {
	m := &WorkerManager{
		running: make(map[string]struct{}),
		logger:  logger,
		clock:   clockwork.NewRealClock(),
		timeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *WorkerManager) Register(w Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.workers = append(m.workers, w)
	m.logger.Info("Worker registered", zap.String("name", w.Name()))
}

// Start launches every registered worker in its own goroutine and returns immediately.
func (m *WorkerManager) Start(ctx context.Context) error {
	workers := m.snapshot()
	if len(workers) == 0 {
		return fmt.Errorf("no workers registered")
	}

	m.logger.Info("Starting workers", zap.Int("count", len(workers)))

	for _, w := range workers {
		m.setRunning(w.Name(), true)
		m.wg.Add(1)
		go func(w Worker) {
			defer m.wg.Done()
			defer m.setRunning(w.Name(), false)
			if err := w.Start(ctx); err != nil && ctx.Err() == nil {
				m.logger.Error("Worker failed",
					zap.String("name", w.Name()),
					zap.Error(err))
			}
		}(w)
	}

	return nil
}

// Running lists the workers whose Start has not returned yet.
func (m *WorkerManager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.running))
	for name := range m.running {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stop signals every worker and waits for them up to the shutdown timeout. A timeout error
// names the workers still inside a batch.
func (m *WorkerManager) Stop() error {
	workers := m.snapshot()
	m.logger.Info("Stopping workers",
		zap.Int("count", len(workers)),
		zap.Duration("timeout", m.timeout))

	for _, w := range workers {
		if err := w.Stop(); err != nil {
			m.logger.Error("Failed to stop worker",
				zap.String("name", w.Name()),
				zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All workers stopped gracefully")
		return nil
	case <-m.clock.After(m.timeout):
		pending := m.Running()
		m.logger.Warn("Workers shutdown timed out, some batches may not have committed",
			zap.Duration("timeout", m.timeout),
			zap.Strings("pending", pending))
		return fmt.Errorf("workers shutdown timed out after %v: %v still running", m.timeout, pending)
	}
}

func (m *WorkerManager) snapshot() []Worker {
	m.mu.Lock()
	defer m.mu.Unlock()

	workers := make([]Worker, len(m.workers))
	copy(workers, m.workers)
	return workers
}

func (m *WorkerManager) setRunning(name string, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if running {
		m.running[name] = struct{}{}
	} else {
		delete(m.running, name)
	}
}
