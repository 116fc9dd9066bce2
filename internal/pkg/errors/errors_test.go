package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_WithDetailsKeepsSentinel(t *testing.T) {
	err := ErrInvalidRequest.WithDetails(map[string]interface{}{"field": "osm_types"})

	assert.Equal(t, "osm_types", err.Details["field"])
	assert.Empty(t, ErrInvalidRequest.Details)
	assert.True(t, stderrors.Is(err, ErrInvalidRequest))
	assert.False(t, stderrors.Is(err, ErrDatabaseError))
}

func TestAppError_WithMessage(t *testing.T) {
	err := ErrCategoryNotFound.WithMessage("buildings is not available")

	assert.Equal(t, "CATEGORY_NOT_FOUND: buildings is not available", err.Error())
	assert.Equal(t, "OSM category is not available", ErrCategoryNotFound.Message)
}

func TestBatchError(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := &BatchError{
		Stage:     StageLoad,
		Variable:  "tas",
		SSP:       585,
		Bucket:    "decade=2030 month=6",
		Retryable: true,
		Err:       cause,
	}

	assert.Equal(t, "batch load failed (variable=tas ssp=585 bucket=decade=2030 month=6): connection reset", err.Error())
	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, IsRetryable(fmt.Errorf("run: %w", err)))
	assert.False(t, IsRetryable(cause))

	nonRetryable := &BatchError{Stage: StageReduce, Err: cause}
	assert.False(t, IsRetryable(nonRetryable))
	assert.Equal(t, "batch reduce failed: connection reset", nonRetryable.Error())
}
