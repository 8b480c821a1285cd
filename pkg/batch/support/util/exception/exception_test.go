package exception_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
)

func TestKindHelpers(t *testing.T) {
	cause := errors.New("boom")

	exhausted := exception.NewExhaustedRetries("retry", 4, cause)
	item := exception.NewItemError("orchestrator", "item 3 failed", exhausted)

	assert.True(t, exception.IsItemError(item))
	assert.True(t, exception.IsExhaustedRetries(item), "kind lookup walks the chain")
	assert.False(t, exception.IsStageFailure(item))
	assert.ErrorIs(t, item, cause)
	assert.Equal(t, 4, exhausted.Attempts)

	stage := exception.NewStageFailure("tracker", "persist failed", cause)
	assert.True(t, exception.IsStageFailure(fmt.Errorf("wrapped: %w", stage)))

	cfg := exception.NewConfigurationError("config", "bad batch size", nil)
	assert.True(t, exception.IsConfigurationError(cfg))
	assert.Equal(t, "[config] bad batch size", cfg.Error())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, exception.IsRetryable(exception.NewBatchError("http", "503", exception.ErrServerUnavailable, true)))
	assert.False(t, exception.IsRetryable(exception.NewBatchError("http", "400", nil, false)))
	assert.False(t, exception.IsRetryable(errors.New("plain")))
}

func TestNewBatchErrorf_WrapsTrailingError(t *testing.T) {
	cause := errors.New("disk full")
	err := exception.NewBatchErrorf("store", "failed to write %s", "checkpoint.json", cause)

	assert.Equal(t, "failed to write checkpoint.json", err.Message)
	assert.ErrorIs(t, err, cause)
	assert.False(t, err.IsRetryable())
}

func TestIsErrorOfType(t *testing.T) {
	wrapped := exception.NewBatchError("http", "quota", exception.ErrRateLimited, true)
	assert.True(t, exception.IsErrorOfType(wrapped, "ErrRateLimited"))
	assert.False(t, exception.IsErrorOfType(wrapped, "context.DeadlineExceeded"))

	opErr := fmt.Errorf("dial: %w", &net.OpError{Op: "dial", Err: errors.New("refused")})
	assert.True(t, exception.IsErrorOfType(opErr, "*net.OpError"))
	assert.True(t, exception.IsErrorOfType(opErr, "net.OpError"))

	assert.True(t, exception.IsErrorTypeRegistered("ErrRateLimited"))
	assert.Contains(t, exception.RegisteredErrorTypes(), "context.DeadlineExceeded")
}

func TestIsCancellation(t *testing.T) {
	assert.True(t, exception.IsCancellation(fmt.Errorf("call: %w", context.Canceled)))
	assert.True(t, exception.IsCancellation(context.DeadlineExceeded))
	assert.False(t, exception.IsCancellation(errors.New("other")))
}

func TestExtractErrorMessage(t *testing.T) {
	assert.Equal(t, "", exception.ExtractErrorMessage(nil))
	assert.Equal(t, "plain", exception.ExtractErrorMessage(errors.New("plain")))
	assert.Equal(t, "item failed: boom",
		exception.ExtractErrorMessage(exception.NewItemError("w", "item failed", errors.New("boom"))))
}
