// Package ratelimit provides a fixed-window token budget for calls to external services.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

// DefaultWindow is the budget window of a tokens-per-minute limit.
const DefaultWindow = time.Minute

// Clock abstracts time for the limiter and the retry loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock { return systemClock{} }

// WaitObserver is told how long a caller was suspended waiting for the window to reset.
type WaitObserver func(limiter string, waited time.Duration)

// Option configures a WindowLimiter.
type Option func(*WindowLimiter)

// WithClock replaces the system clock.
func WithClock(c Clock) Option { return func(l *WindowLimiter) { l.clock = c } }

// WithWindow replaces the one-minute window.
func WithWindow(d time.Duration) Option { return func(l *WindowLimiter) { l.window = d } }

// WithWaitObserver registers a callback for every suspension.
func WithWaitObserver(o WaitObserver) Option { return func(l *WindowLimiter) { l.onWait = o } }

// WindowLimiter admits calls while the tokens consumed in the current window plus the cost of
// the next call stay within the budget. A call that would overflow waits until the window
// ends; the counter then restarts at zero.
//
// A single call costing more than the whole budget can never fit. It is admitted alone in a
// fresh window rather than blocking forever.
type WindowLimiter struct {
	name   string
	budget int
	window time.Duration
	clock  Clock
	onWait WaitObserver

	mu          sync.Mutex
	windowStart time.Time
	used        int
}

// NewWindowLimiter creates a limiter allowing budget tokens per window.
func NewWindowLimiter(name string, budget int, opts ...Option) (*WindowLimiter, error) {
	if budget <= 0 {
		return nil, exception.NewConfigurationError("ratelimit", "limiter '"+name+"' needs a positive token budget", nil)
	}
	l := &WindowLimiter{
		name:   name,
		budget: budget,
		window: DefaultWindow,
		clock:  SystemClock(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Name returns the limiter name.
func (l *WindowLimiter) Name() string { return l.name }

// Acquire blocks until cost tokens fit in the current window, then consumes them.
// It returns ctx.Err() if ctx is done while waiting.
func (l *WindowLimiter) Acquire(ctx context.Context, cost int) error {
	if cost < 0 {
		cost = 0
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		now := l.clock.Now()
		if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
			l.windowStart = now
			l.used = 0
		}
		if l.used+cost <= l.budget || (l.used == 0 && cost > l.budget) {
			l.used += cost
			l.mu.Unlock()
			return nil
		}
		wait := l.windowStart.Add(l.window).Sub(now)
		used := l.used
		l.mu.Unlock()

		logger.Debugf("RateLimiter '%s': %d used + %d requested exceeds %d; waiting %v for the window to reset.", l.name, used, cost, l.budget, wait)
		if l.onWait != nil {
			l.onWait(l.name, wait)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(wait):
		}
	}
}

// Usage returns the tokens consumed in the current window and the window start.
func (l *WindowLimiter) Usage() (used int, windowStart time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.used, l.windowStart
}
