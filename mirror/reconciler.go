/*
reconciler.go - Background write-back queue

PURPOSE:
  Every local mutation returns to the caller as soon as the cache is
  written; pushing the change to the warehouse happens here, off the
  request path. After each write-back the staleness memo is dropped and
  the request tables are re-pulled, which is also what swaps placeholder
  ids for warehouse-assigned ones.

FAILURE MODEL:
  Write-back errors are logged and swallowed. The follow-up re-pull then
  reverts the optimistic cache row to whatever the warehouse holds, so a
  failed sync surfaces as the change quietly not sticking, never as a
  wedged queue.
*/
package mirror

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// defaultQueueDepth bounds pending write-backs. The queue drains at
// warehouse speed; a full queue means the warehouse is badly behind.
const defaultQueueDepth = 64

type task struct {
	name string
	fn   func(ctx context.Context) error
}

// Reconciler runs write-back tasks on a single background worker,
// preserving enqueue order.
type Reconciler struct {
	refresher *Refresher
	oracle    *Oracle
	log       zerolog.Logger

	tasks chan task
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewReconciler starts the worker.
func NewReconciler(refresher *Refresher, oracle *Oracle, log zerolog.Logger) *Reconciler {
	r := &Reconciler{
		refresher: refresher,
		oracle:    oracle,
		log:       log.With().Str("component", "reconciler").Logger(),
		tasks:     make(chan task, defaultQueueDepth),
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

// Enqueue schedules a write-back. Fire and forget: a full queue drops the
// task with a warning, and the next full refresh makes the cache right.
func (r *Reconciler) Enqueue(name string, fn func(ctx context.Context) error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.log.Warn().Str("task", name).Msg("reconciler closed, dropping write-back")
		return
	}
	select {
	case r.tasks <- task{name: name, fn: fn}:
		r.mu.Unlock()
	default:
		r.mu.Unlock()
		r.log.Warn().Str("task", name).Msg("write-back queue full, dropping task")
	}
}

// Close stops accepting tasks and waits for the queue to drain.
func (r *Reconciler) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.tasks)
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Reconciler) worker() {
	defer r.wg.Done()
	for t := range r.tasks {
		ctx := context.Background()

		if err := t.fn(ctx); err != nil {
			r.log.Error().Err(err).Str("task", t.name).Msg("write-back failed")
		} else {
			r.log.Debug().Str("task", t.name).Msg("write-back complete")
		}

		// Re-pull regardless of the write-back outcome: on success it
		// reconciles placeholder ids, on failure it reverts the
		// optimistic cache row to the warehouse's version.
		r.oracle.Invalidate()
		if err := r.refresher.RefreshRequestsAndSteps(ctx); err != nil {
			r.log.Error().Err(err).Str("task", t.name).Msg("post write-back re-pull failed")
		}
	}
}
