package tune

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Executor runs benchmark jobs. A blocking executor runs the job before Submit returns; a
// deferred one returns immediately and the results are harvested by later Execute calls.
type Executor interface {
	Blocking() bool
	Submit(job func())
}

// BlockingExecutor runs jobs inline on the calling goroutine.
type BlockingExecutor struct{}

func (BlockingExecutor) Blocking() bool { return true }

func (BlockingExecutor) Submit(job func()) { job() }

// DeferredExecutor runs jobs on background goroutines, at most parallelism at a time.
type DeferredExecutor struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewDeferredExecutor returns a DeferredExecutor. parallelism <= 0 means runtime.NumCPU().
//
// Benchmarks measure wall-clock time, so a parallelism above 1 trades measurement noise for
// faster convergence.
func NewDeferredExecutor(parallelism int) *DeferredExecutor {
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	return &DeferredExecutor{sem: semaphore.NewWeighted(int64(parallelism))}
}

func (e *DeferredExecutor) Blocking() bool { return false }

func (e *DeferredExecutor) Submit(job func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		// Acquire with a background context never fails.
		_ = e.sem.Acquire(context.Background(), 1)
		defer e.sem.Release(1)
		job()
	}()
}

// Wait blocks until every submitted job has finished. Jobs submitted by a running job (a
// candidate that is itself tuned) are waited for too.
func (e *DeferredExecutor) Wait() {
	e.wg.Wait()
}
