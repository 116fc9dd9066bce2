package climate_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/usecase"
)

type MockStreamRepository struct {
	mock.Mock

	mu        sync.Mutex
	published map[string][]interface{}
}

func (m *MockStreamRepository) ConsumeStream(ctx context.Context, stream, group, consumer string) (<-chan domain.StreamMessage, error) {
	args := m.Called(ctx, stream, group, consumer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan domain.StreamMessage), args.Error(1)
}

func (m *MockStreamRepository) AckMessage(ctx context.Context, stream, group, messageID string) error {
	return m.Called(ctx, stream, group, messageID).Error(0)
}

func (m *MockStreamRepository) CreateConsumerGroup(ctx context.Context, stream, group string) error {
	return m.Called(ctx, stream, group).Error(0)
}

func (m *MockStreamRepository) PublishToStream(ctx context.Context, stream string, data interface{}) (string, error) {
	m.mu.Lock()
	if m.published == nil {
		m.published = map[string][]interface{}{}
	}
	m.published[stream] = append(m.published[stream], data)
	m.mu.Unlock()
	return "1-0", nil
}

func (m *MockStreamRepository) Published(stream string) []interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]interface{}(nil), m.published[stream]...)
}

type MockPipeline struct {
	mock.Mock
}

func (m *MockPipeline) Run(ctx context.Context, req usecase.RunRequest) (*usecase.RunResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.RunResult), args.Error(1)
}

type MockRefresher struct {
	mock.Mock
}

func (m *MockRefresher) Refresh(ctx context.Context, names []string) ([]domain.RefreshResult, error) {
	args := m.Called(ctx, names)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RefreshResult), args.Error(1)
}

// feed returns a closed channel holding msgs so a worker drains them and returns.
func feed(msgs ...domain.StreamMessage) <-chan domain.StreamMessage {
	ch := make(chan domain.StreamMessage, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	close(ch)
	return ch
}
