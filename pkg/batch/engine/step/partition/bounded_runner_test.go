package partition_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	"github.com/tigerroll/notepipe/pkg/batch/engine/step/partition"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
)

func ids(n int) []model.ItemID {
	out := make([]model.ItemID, n)
	for i := range out {
		out[i] = model.ItemID(i)
	}
	return out
}

func TestBoundedBatchRunner_ConcurrencyCeiling(t *testing.T) {
	for _, limit := range []int{1, 2, 3, 5} {
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			var inFlight, maxSeen int32
			worker := func(ctx context.Context, id model.ItemID) error {
				cur := atomic.AddInt32(&inFlight, 1)
				for {
					prev := atomic.LoadInt32(&maxSeen)
					if cur <= prev || atomic.CompareAndSwapInt32(&maxSeen, prev, cur) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			}

			res, err := partition.NewBoundedBatchRunner().Run(context.Background(), ids(20), limit, worker)
			require.NoError(t, err)
			assert.Len(t, res.Succeeded, 20)
			assert.LessOrEqual(t, int(maxSeen), limit)
			if limit > 1 {
				assert.Greater(t, int(maxSeen), 1, "workers do run in parallel")
			}
		})
	}
}

func TestBoundedBatchRunner_FailuresDoNotAbortSiblings(t *testing.T) {
	var mu sync.Mutex
	attempts := map[model.ItemID]int{}
	worker := func(ctx context.Context, id model.ItemID) error {
		mu.Lock()
		attempts[id]++
		mu.Unlock()
		switch id {
		case 1:
			return errors.New("malformed note")
		case 3:
			panic("nil body")
		}
		return nil
	}

	res, err := partition.NewBoundedBatchRunner().Run(context.Background(), []model.ItemID{0, 1, 2, 3, 4, 2}, 2, worker)
	require.NoError(t, err)

	assert.Equal(t, model.NewItemSet(0, 2, 4), res.Succeeded)
	require.Len(t, res.Failed, 2)
	assert.EqualError(t, res.Failed[1], "malformed note")
	assert.True(t, exception.IsItemError(res.Failed[3]))
	assert.Contains(t, res.Failed[3].Error(), "nil body")
	assert.Equal(t, 5, res.Attempted())

	for id, n := range attempts {
		assert.Equal(t, 1, n, "id %s attempted once", id)
	}
}

func TestBoundedBatchRunner_CancellationStopsNewWorkers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var started int32
	worker := func(ctx context.Context, id model.ItemID) error {
		atomic.AddInt32(&started, 1)
		if id == 0 {
			cancel()
			return nil
		}
		<-ctx.Done()
		return ctx.Err()
	}

	res, err := partition.NewBoundedBatchRunner().Run(ctx, ids(10), 1, worker)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&started), "no worker starts after cancellation")
	assert.True(t, res.Succeeded.Has(0))
	assert.Empty(t, res.Failed)
	assert.Len(t, res.Interrupted, 9)
}

func TestBoundedBatchRunner_RejectsInvalidLimit(t *testing.T) {
	_, err := partition.NewBoundedBatchRunner().Run(context.Background(), ids(1), 0, func(context.Context, model.ItemID) error { return nil })
	assert.True(t, exception.IsConfigurationError(err))
}
