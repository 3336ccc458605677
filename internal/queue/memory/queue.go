// Package memory provides the in-process task queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/gastronom/catalog-crawler/internal/catalog"
)

// Queue is a bounded in-memory FIFO of parse tasks. Shutdown is
// drain-friendly: Close rejects new tasks immediately but consumers keep
// receiving the backlog until it is empty.
type Queue struct {
	tasks chan catalog.ParseTask
	stop  chan struct{}
	once  sync.Once
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		tasks: make(chan catalog.ParseTask, capacity),
		stop:  make(chan struct{}),
	}
}

// Enqueue pushes a task, blocking while the queue is full. After Close it
// fails with catalog.ErrQueueClosed instead of panicking on a closed
// channel; the task channel itself is never closed.
func (q *Queue) Enqueue(ctx context.Context, task catalog.ParseTask) error {
	select {
	case <-q.stop:
		return catalog.ErrQueueClosed
	default:
	}
	select {
	case <-q.stop:
		return catalog.ErrQueueClosed
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.tasks <- task:
		return nil
	}
}

// Dequeue pops the next task, respecting context cancellation. After
// Close it drains the remaining backlog, then reports
// catalog.ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (catalog.ParseTask, error) {
	// Backlog wins over shutdown so accepted work is never dropped.
	select {
	case task := <-q.tasks:
		return task, nil
	default:
	}
	select {
	case task := <-q.tasks:
		return task, nil
	case <-ctx.Done():
		return catalog.ParseTask{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.stop:
		// A task admitted just before Close may still be in flight.
		select {
		case task := <-q.tasks:
			return task, nil
		default:
			return catalog.ParseTask{}, catalog.ErrQueueClosed
		}
	}
}

// Len reports the number of tasks waiting to be consumed.
func (q *Queue) Len() int {
	return len(q.tasks)
}

// Close stops admissions. Idempotent.
func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.stop)
	})
}
