package retry

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"

	config "github.com/tigerroll/notepipe/pkg/batch/core/config"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
)

// RetryPolicy decides whether a failed call is retried and how long to wait before it.
type RetryPolicy interface {
	// ShouldRetry determines if a given error is retryable.
	ShouldRetry(err error) bool
	// MaxRetries returns how many retries follow the first call.
	MaxRetries() int
	// NewBackOff returns a fresh delay sequence for one logical call.
	NewBackOff() backoff.BackOff
}

// DefaultRetryPolicy retries errors marked retryable or matching the configured error names,
// waiting min(initialDelay * factor^attempt, maxDelay) between calls.
type DefaultRetryPolicy struct {
	maxRetries      int
	initialDelay    time.Duration
	maxDelay        time.Duration
	factor          float64
	retryableErrors []string
}

// NewRetryPolicy creates a DefaultRetryPolicy from client retry settings.
//
// Parameters:
//
//	cfg: The retry section of an external client's configuration.
//
// Returns:
//
//	A new DefaultRetryPolicy.
func NewRetryPolicy(cfg config.RetryConfig) *DefaultRetryPolicy {
	return &DefaultRetryPolicy{
		maxRetries:      cfg.MaxRetries,
		initialDelay:    time.Duration(cfg.InitialDelayMs) * time.Millisecond,
		maxDelay:        time.Duration(cfg.MaxDelayMs) * time.Millisecond,
		factor:          cfg.BackoffFactor,
		retryableErrors: cfg.RetryableErrors,
	}
}

// MaxRetries returns the maximum number of retries.
func (p *DefaultRetryPolicy) MaxRetries() int {
	return p.maxRetries
}

// ShouldRetry determines if an error is retryable.
// Cancellation, item errors and configuration errors are never retried. Otherwise the
// BatchError retryable flag or a match against the configured error names decides; an empty
// list retries every other error.
// A deadline error is retryable by name because it usually comes from a per-call timeout;
// the client checks its own context before retrying.
func (p *DefaultRetryPolicy) ShouldRetry(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if exception.IsRetryable(err) {
		return true
	}
	if exception.IsItemError(err) || exception.IsConfigurationError(err) {
		return false
	}
	if len(p.retryableErrors) == 0 {
		return true
	}
	for _, typeName := range p.retryableErrors {
		if exception.IsErrorOfType(err, typeName) {
			return true
		}
	}
	return false
}

// NewBackOff returns a deterministic exponential sequence: no randomization, so the n-th
// delay (counted from 0) is exactly min(initialDelay * factor^n, maxDelay).
func (p *DefaultRetryPolicy) NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initialDelay
	b.MaxInterval = p.maxDelay
	b.Multiplier = p.factor
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Reason returns a low-cardinality classification of err for metrics.
func Reason(err error) string {
	switch {
	case errors.Is(err, exception.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, exception.ErrServerUnavailable):
		return "unavailable"
	case isTimeout(err) || errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case exception.IsErrorOfType(err, "*net.OpError"):
		return "network"
	default:
		return "other"
	}
}

var _ RetryPolicy = (*DefaultRetryPolicy)(nil)
