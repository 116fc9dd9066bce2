package repository

import (
	"context"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
)

// StreamRepository - job transport over Redis Streams
type StreamRepository interface {
	// ConsumeStream reads messages of the consumer group until ctx is cancelled
	ConsumeStream(ctx context.Context, stream, group, consumer string) (<-chan domain.StreamMessage, error)

	// AckMessage acknowledges a processed message
	AckMessage(ctx context.Context, stream, group, messageID string) error

	// CreateConsumerGroup creates the group, tolerating an existing one
	CreateConsumerGroup(ctx context.Context, stream, group string) error

	// PublishToStream publishes data as JSON in the "data" field
	PublishToStream(ctx context.Context, stream string, data interface{}) (string, error)
}
