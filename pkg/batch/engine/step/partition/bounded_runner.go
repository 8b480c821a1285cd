// Package partition runs a worker over a set of item ids with bounded parallelism.
package partition

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

// Worker performs one stage's unit of work for one item.
// Expected failures are returned as errors; they never abort the batch.
type Worker func(ctx context.Context, id model.ItemID) error

// BatchResult collects the outcome of every id handed to Run.
type BatchResult struct {
	// Succeeded holds ids whose worker returned nil.
	Succeeded model.ItemSet
	// Failed maps ids to the error their worker returned.
	Failed map[model.ItemID]error
	// Interrupted holds ids that were not started, or whose worker returned a cancellation
	// error, because ctx was done. They are neither succeeded nor failed.
	Interrupted []model.ItemID
}

// Attempted returns the number of ids with a recorded outcome.
func (r *BatchResult) Attempted() int {
	return len(r.Succeeded) + len(r.Failed)
}

// BoundedBatchRunner executes a Worker over item ids, keeping at most concurrencyLimit
// workers in flight.
type BoundedBatchRunner struct{}

// NewBoundedBatchRunner creates a BoundedBatchRunner.
func NewBoundedBatchRunner() *BoundedBatchRunner {
	return &BoundedBatchRunner{}
}

// Run attempts every distinct id exactly once and returns when all started workers finished.
// A worker error is recorded in the result and does not affect its siblings. A panicking
// worker is recorded as a failure of its item.
//
// Once ctx is done no new worker is started; the remaining ids are reported as Interrupted.
// The only error returned is a ConfigurationError for a concurrencyLimit below 1.
func (r *BoundedBatchRunner) Run(ctx context.Context, ids []model.ItemID, concurrencyLimit int, worker Worker) (*BatchResult, error) {
	if concurrencyLimit < 1 {
		return nil, exception.NewConfigurationError("batch_runner", fmt.Sprintf("concurrencyLimit must be at least 1, got %d", concurrencyLimit), nil)
	}

	result := &BatchResult{
		Succeeded: model.NewItemSet(),
		Failed:    make(map[model.ItemID]error),
	}
	var mu sync.Mutex

	// A plain Group: an item error must not cancel the siblings.
	var g errgroup.Group
	g.SetLimit(concurrencyLimit)

	seen := model.NewItemSet()
	for _, id := range ids {
		if !seen.Add(id) {
			continue
		}
		if ctx.Err() != nil {
			mu.Lock()
			result.Interrupted = append(result.Interrupted, id)
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			// The slot may have been granted after cancellation.
			if ctx.Err() != nil {
				mu.Lock()
				result.Interrupted = append(result.Interrupted, id)
				mu.Unlock()
				return nil
			}
			err := invoke(ctx, worker, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Succeeded.Add(id)
			case ctx.Err() != nil && exception.IsCancellation(err):
				result.Interrupted = append(result.Interrupted, id)
			default:
				result.Failed[id] = err
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(result.Interrupted, func(i, j int) bool { return result.Interrupted[i] < result.Interrupted[j] })

	logger.Debugf("BoundedBatchRunner: %d succeeded, %d failed, %d interrupted (limit %d).",
		len(result.Succeeded), len(result.Failed), len(result.Interrupted), concurrencyLimit)
	return result, nil
}

func invoke(ctx context.Context, worker Worker, id model.ItemID) (err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Errorf("BoundedBatchRunner: worker panicked on item %s: %v\n%s", id, p, debug.Stack())
			err = exception.NewItemError("batch_runner", fmt.Sprintf("worker panicked on item %s", id), fmt.Errorf("%v", p))
		}
	}()
	return worker(ctx, id)
}
