package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Runner is the worker pool executing sync jobs detached from the
// triggering request. Admission happens before dispatch, so a queued
// job only ever waits on a worker slot, never on another admission.
type Runner struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func NewRunner(workers int) *Runner {
	if workers <= 0 {
		workers = 1
	}
	return &Runner{sem: semaphore.NewWeighted(int64(workers))}
}

// Go hands fn to the pool and returns immediately; the goroutine waits
// for a worker slot, so a saturated pool queues the job without blocking
// the trigger path. The job carries its own background context: the
// triggering HTTP request finishing must not cancel the run.
func (r *Runner) Go(fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.sem.Acquire(context.Background(), 1); err != nil {
			log.Error().Err(err).Msg("worker slot acquire failed")
			return
		}
		defer r.sem.Release(1)
		fn(context.Background())
	}()
}

// Wait blocks until all dispatched jobs finish. Used on shutdown.
func (r *Runner) Wait() { r.wg.Wait() }
