package worker

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type blockingWorker struct {
	name    string
	stop    chan struct{}
	started chan struct{}
}

func newBlockingWorker(name string) *blockingWorker {
	return &blockingWorker{name: name, stop: make(chan struct{}), started: make(chan struct{})}
}

func (w *blockingWorker) Start(ctx context.Context) error {
	close(w.started)
	select {
	case <-w.stop:
	case <-ctx.Done():
	}
	return nil
}

func (w *blockingWorker) Stop() error {
	close(w.stop)
	return nil
}

func (w *blockingWorker) Name() string { return w.name }

func TestWorkerManager_StartStop(t *testing.T) {
	m := NewWorkerManager(zap.NewNop())
	a, b := newBlockingWorker("a"), newBlockingWorker("b")
	m.Register(a)
	m.Register(b)

	require.NoError(t, m.Start(context.Background()))
	<-a.started
	<-b.started

	assert.Equal(t, []string{"a", "b"}, m.Running())

	assert.NoError(t, m.Stop())
	assert.Empty(t, m.Running())
}

func TestWorkerManager_NoWorkers(t *testing.T) {
	m := NewWorkerManager(zap.NewNop())
	assert.Error(t, m.Start(context.Background()))
}

// stuckWorker ignores Stop until released.
type stuckWorker struct {
	started chan struct{}
	release chan struct{}
}

func (w *stuckWorker) Start(ctx context.Context) error {
	close(w.started)
	<-w.release
	return nil
}

func (w *stuckWorker) Stop() error  { return nil }
func (w *stuckWorker) Name() string { return "stuck" }

func TestWorkerManager_StopTimesOutOnConfiguredTimeout(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewWorkerManager(zap.NewNop(), WithShutdownTimeout(5*time.Second), WithClock(clock))

	stuck := &stuckWorker{started: make(chan struct{}), release: make(chan struct{})}
	fine := newBlockingWorker("fine")
	m.Register(stuck)
	m.Register(fine)

	require.NoError(t, m.Start(context.Background()))
	<-stuck.started
	<-fine.started

	errCh := make(chan error, 1)
	go func() { errCh <- m.Stop() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	require.Eventually(t, func() bool {
		return len(m.Running()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	clock.Advance(5 * time.Second)

	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "5s")
	assert.Contains(t, err.Error(), "stuck")
	assert.NotContains(t, err.Error(), "fine")

	close(stuck.release)
}

func TestWithShutdownTimeout_IgnoresNonPositive(t *testing.T) {
	m := NewWorkerManager(zap.NewNop(), WithShutdownTimeout(0))
	assert.Equal(t, DefaultShutdownTimeout, m.timeout)
}
