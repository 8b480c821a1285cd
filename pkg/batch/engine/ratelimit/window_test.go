package ratelimit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/notepipe/pkg/batch/engine/ratelimit"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
	"github.com/tigerroll/notepipe/pkg/batch/test"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestWindowLimiter_SuspendsWhenBudgetExceeded(t *testing.T) {
	clock := test.NewFakeClock(t0)
	var waits []time.Duration
	l, err := ratelimit.NewWindowLimiter("completion", 1000,
		ratelimit.WithClock(clock),
		ratelimit.WithWaitObserver(func(_ string, d time.Duration) { waits = append(waits, d) }))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, 400))
	clock.Advance(10 * time.Second)
	require.NoError(t, l.Acquire(ctx, 600))
	assert.Empty(t, clock.Sleeps(), "exactly at budget is admitted")

	clock.Advance(5 * time.Second)
	require.NoError(t, l.Acquire(ctx, 1))

	assert.Equal(t, []time.Duration{45 * time.Second}, clock.Sleeps(), "waits until the window started at t0 ends")
	assert.Equal(t, []time.Duration{45 * time.Second}, waits)
	used, start := l.Usage()
	assert.Equal(t, 1, used, "counter restarts after the reset")
	assert.Equal(t, t0.Add(time.Minute), start)
}

func TestWindowLimiter_WindowExpiresNaturally(t *testing.T) {
	clock := test.NewFakeClock(t0)
	l, err := ratelimit.NewWindowLimiter("embedding", 10, ratelimit.WithClock(clock))
	require.NoError(t, err)

	require.NoError(t, l.Acquire(context.Background(), 10))
	clock.Advance(61 * time.Second)
	require.NoError(t, l.Acquire(context.Background(), 10))
	assert.Empty(t, clock.Sleeps())
}

func TestWindowLimiter_OversizedCallAdmittedAlone(t *testing.T) {
	clock := test.NewFakeClock(t0)
	l, err := ratelimit.NewWindowLimiter("completion", 100, ratelimit.WithClock(clock))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, 250), "fresh window admits an oversized call")

	require.NoError(t, l.Acquire(ctx, 10))
	assert.Equal(t, []time.Duration{time.Minute}, clock.Sleeps())

	require.NoError(t, l.Acquire(ctx, 500))
	assert.Len(t, clock.Sleeps(), 2, "oversized call waits for a window of its own")
}

func TestWindowLimiter_NoWindowOverBudget(t *testing.T) {
	clock := test.NewFakeClock(t0)
	const budget = 50
	l, err := ratelimit.NewWindowLimiter("completion", budget, ratelimit.WithClock(clock))
	require.NoError(t, err)

	for i := 0; i < 40; i++ {
		require.NoError(t, l.Acquire(context.Background(), 1+i%7))
		used, _ := l.Usage()
		assert.LessOrEqual(t, used, budget)
		clock.Advance(time.Second)
	}
	assert.NotEmpty(t, clock.Sleeps(), "total cost exceeds one window")
}

func TestWindowLimiter_ConcurrentCallers(t *testing.T) {
	clock := test.NewFakeClock(t0)
	const budget = 20
	l, err := ratelimit.NewWindowLimiter("completion", budget, ratelimit.WithClock(clock))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Acquire(context.Background(), 3))
		}()
	}
	wg.Wait()

	used, _ := l.Usage()
	assert.LessOrEqual(t, used, budget)
	assert.GreaterOrEqual(t, len(clock.Sleeps()), 4, "90 tokens need at least five windows")
}

func TestWindowLimiter_CancelWhileWaiting(t *testing.T) {
	l, err := ratelimit.NewWindowLimiter("completion", 1, ratelimit.WithWindow(time.Hour))
	require.NoError(t, err)
	require.NoError(t, l.Acquire(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = l.Acquire(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewWindowLimiter_RejectsNonPositiveBudget(t *testing.T) {
	_, err := ratelimit.NewWindowLimiter("completion", 0)
	assert.True(t, exception.IsConfigurationError(err))
}
