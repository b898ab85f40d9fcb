package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// task is a unit of fire-and-forget background work.
type task struct {
	name string
	fn   func(ctx context.Context)
}

// workQueue is a bounded worker pool consuming background tasks. Deploy and
// destroy triggers submit their remote-call sequence here so the request path
// returns as soon as the initial record write lands. Tasks run detached from
// the submitting caller's context: a remote trigger already accepted must run
// to completion regardless of what the caller does.
type workQueue struct {
	tasks  chan task
	logger zerolog.Logger

	workers  sync.WaitGroup
	inFlight sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// newWorkQueue starts a worker pool with the given parallelism and queue depth.
func newWorkQueue(workers, depth int, logger zerolog.Logger) *workQueue {
	if workers <= 0 {
		workers = 4
	}
	if depth <= 0 {
		depth = 64
	}

	q := &workQueue{
		tasks:  make(chan task, depth),
		logger: logger.With().Str("component", "work-queue").Logger(),
	}

	for i := 0; i < workers; i++ {
		q.workers.Add(1)
		go q.worker()
	}

	return q
}

func (q *workQueue) worker() {
	defer q.workers.Done()
	for t := range q.tasks {
		q.logger.Debug().Str("task", t.name).Msg("Executing background task")
		t.fn(context.Background())
		q.inFlight.Done()
	}
}

// Submit enqueues a background task. Returns an error once the queue is closed
// or when the queue is full; submission never blocks the request path.
func (q *workQueue) Submit(name string, fn func(ctx context.Context)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("work queue is closed")
	}

	q.inFlight.Add(1)
	select {
	case q.tasks <- task{name: name, fn: fn}:
		return nil
	default:
		q.inFlight.Done()
		return fmt.Errorf("work queue is full")
	}
}

// Close stops accepting tasks and waits for queued work to drain, or for the
// context to expire.
func (q *workQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.inFlight.Wait()
		q.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
