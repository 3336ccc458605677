package catalog

import (
	"context"
	"time"
)

// Fetcher performs one HTTP request through the shared session. It is the
// only component allowed to touch the network; everything else calls
// through it so that server-issued cookies accumulate in one place.
type Fetcher interface {
	Fetch(ctx context.Context, method, url string, opts FetchOptions) (FetchResponse, error)
}

// Extractor turns one detail page URL into an assembled product record.
// A nil product with a nil error means the page was fetched but yielded
// nothing worth keeping (empty name after the retry budget).
type Extractor interface {
	Extract(ctx context.Context, url string) (*Product, error)
}

// Classifier decides whether an assembled record belongs to the target
// category. Pure predicate, no side effects.
type Classifier interface {
	Accept(p Product) bool
}

// ProductSink persists accepted records. Implementations: CSV, JSONL,
// Postgres.
type ProductSink interface {
	Store(ctx context.Context, p Product) error
}

// TaskQueue provides enqueue/dequeue semantics for parse tasks.
type TaskQueue interface {
	Enqueue(ctx context.Context, task ParseTask) error
	Dequeue(ctx context.Context) (ParseTask, error)
}

// Clock returns the current time (swappable in tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task IDs.
type IDGenerator interface {
	NewID() (string, error)
}
