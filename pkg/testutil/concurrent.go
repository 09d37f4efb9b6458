package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	dErrors "registrar/pkg/domain-errors"
)

// ConcurrentResult tallies outcomes of concurrent test operations.
type ConcurrentResult struct {
	Successes  int32
	Rejections int32 // transaction_rejected: the ledger refused the write
	NotFounds  int32
	Errors     int32
}

func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Rejections + r.NotFounds + r.Errors
}

// RunConcurrent runs fn in parallel goroutines and classifies each result by
// its domain error code.
func RunConcurrent(goroutines int, fn func(idx int) error) *ConcurrentResult {
	var wg sync.WaitGroup
	var successes, rejections, notFounds, errs atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			err := fn(idx)
			switch {
			case err == nil:
				successes.Add(1)
			case dErrors.HasCode(err, dErrors.CodeTransactionRejected):
				rejections.Add(1)
			case dErrors.HasCode(err, dErrors.CodeNotFound):
				notFounds.Add(1)
			default:
				errs.Add(1)
			}
		}(i)
	}
	wg.Wait()

	return &ConcurrentResult{
		Successes:  successes.Load(),
		Rejections: rejections.Load(),
		NotFounds:  notFounds.Load(),
		Errors:     errs.Load(),
	}
}

// RunConcurrentCtx is RunConcurrent with a shared context.
func RunConcurrentCtx(ctx context.Context, goroutines int, fn func(ctx context.Context, idx int) error) *ConcurrentResult {
	return RunConcurrent(goroutines, func(idx int) error {
		return fn(ctx, idx)
	})
}

// RunConcurrentCollect runs fn in parallel and returns every error for inspection.
func RunConcurrentCollect(goroutines int, fn func(idx int) error) (successes int32, errs []error) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok atomic.Int32
	collected := make([]error, 0)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if err := fn(idx); err != nil {
				mu.Lock()
				collected = append(collected, err)
				mu.Unlock()
				return
			}
			ok.Add(1)
		}(i)
	}
	wg.Wait()
	return ok.Load(), collected
}
