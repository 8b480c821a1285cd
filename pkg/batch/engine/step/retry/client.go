// Package retry provides the retry policy and the rate-limited retrying wrapper used for
// every call to an external service.
package retry

import (
	"context"

	metrics "github.com/tigerroll/notepipe/pkg/batch/core/metrics"
	"github.com/tigerroll/notepipe/pkg/batch/engine/ratelimit"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

// Call is one fallible external operation.
type Call[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Estimator returns the token cost of a request before it is issued.
type Estimator[Req any] func(req Req) int

// ClientOption configures a RateLimitedRetryClient.
type ClientOption func(*clientOptions)

type clientOptions struct {
	clock    ratelimit.Clock
	recorder metrics.MetricRecorder
}

// WithClock replaces the clock used for backoff sleeps.
func WithClock(c ratelimit.Clock) ClientOption {
	return func(o *clientOptions) { o.clock = c }
}

// WithMetricRecorder reports every retry to recorder.
func WithMetricRecorder(recorder metrics.MetricRecorder) ClientOption {
	return func(o *clientOptions) { o.recorder = recorder }
}

// RateLimitedRetryClient wraps a Call with a token budget and bounded exponential backoff.
// Every attempt, the first one and each retry, acquires its estimated cost from the limiter.
type RateLimitedRetryClient[Req, Resp any] struct {
	name     string
	call     Call[Req, Resp]
	estimate Estimator[Req]
	limiter  *ratelimit.WindowLimiter
	policy   RetryPolicy
	opts     clientOptions
}

// NewRateLimitedRetryClient creates a client named name around call.
func NewRateLimitedRetryClient[Req, Resp any](
	name string,
	call Call[Req, Resp],
	estimate Estimator[Req],
	limiter *ratelimit.WindowLimiter,
	policy RetryPolicy,
	opts ...ClientOption,
) *RateLimitedRetryClient[Req, Resp] {
	o := clientOptions{
		clock:    ratelimit.SystemClock(),
		recorder: metrics.NewNoOpMetricRecorder(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &RateLimitedRetryClient[Req, Resp]{
		name:     name,
		call:     call,
		estimate: estimate,
		limiter:  limiter,
		policy:   policy,
		opts:     o,
	}
}

// Name returns the client name.
func (c *RateLimitedRetryClient[Req, Resp]) Name() string { return c.name }

// Do issues req, retrying retryable failures up to MaxRetries times.
//
// It returns the response of the first successful attempt; the error itself when the policy
// rejects it; an ExhaustedRetries error wrapping the last error when retries run out; or
// ctx.Err() once ctx is done, in which case no further call is issued.
func (c *RateLimitedRetryClient[Req, Resp]) Do(ctx context.Context, req Req) (Resp, error) {
	var zero Resp
	cost := c.estimate(req)
	delays := c.policy.NewBackOff()

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Acquire(ctx, cost); err != nil {
			return zero, err
		}

		resp, err := c.call(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !c.policy.ShouldRetry(err) {
			return zero, err
		}
		if attempt >= c.policy.MaxRetries() {
			logger.Errorf("RetryClient '%s': giving up after %d attempts: %v", c.name, attempt+1, err)
			return zero, exception.NewExhaustedRetries(c.name, attempt+1, err)
		}

		delay := delays.NextBackOff()
		c.opts.recorder.RecordRetry(ctx, c.name, Reason(err))
		logger.Warnf("RetryClient '%s': attempt %d failed (%v); retrying in %v.", c.name, attempt+1, err, delay)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-c.opts.clock.After(delay):
		}
	}
}
