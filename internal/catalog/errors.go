package catalog

import (
	"errors"
	"fmt"
)

// ErrTransport marks timeouts and connection failures. The fetch client
// resets its session when it surfaces one of these; it never retries below
// the orchestrator.
var ErrTransport = errors.New("transport failure")

// ErrQueueClosed is returned by TaskQueue implementations once the queue
// is shut down: immediately on enqueue, and on dequeue after the backlog
// is drained.
var ErrQueueClosed = errors.New("task queue closed")

// StatusError reports a non-2xx response. It terminates the current
// pagination walk or discards the current detail-page extraction, never the
// whole run.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

// IsStatusError reports whether err wraps a StatusError.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}
