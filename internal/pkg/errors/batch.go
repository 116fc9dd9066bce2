package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Pipeline stages reported by BatchError.
const (
	StageSource    = "source"
	StageReduce    = "reduce"
	StageFeatures  = "features"
	StageAggregate = "aggregate"
	StageLoad      = "load"
	StageRefresh   = "refresh"
)

// BatchError reports a failed ETL batch with enough context to retry it from scratch.
type BatchError struct {
	Stage     string
	Variable  string
	SSP       int
	Bucket    string
	Retryable bool
	Err       error
}

func (e *BatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "batch %s failed", e.Stage)
	if e.Variable != "" {
		fmt.Fprintf(&b, " (variable=%s ssp=%d", e.Variable, e.SSP)
		if e.Bucket != "" {
			fmt.Fprintf(&b, " bucket=%s", e.Bucket)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err carries a BatchError marked retryable.
func IsRetryable(err error) bool {
	var be *BatchError
	if stderrors.As(err, &be) {
		return be.Retryable
	}
	return false
}

// ErrRefreshInProgress is returned when another session is rebuilding the same view.
var ErrRefreshInProgress = stderrors.New("view refresh already in progress")
