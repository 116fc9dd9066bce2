package worker

import (
	"context"
)

// Worker is a long running stream consumer
type Worker interface {
	// Start blocks until ctx is cancelled, Stop is called or the stream closes
	Start(ctx context.Context) error

	Stop() error

	Name() string
}
