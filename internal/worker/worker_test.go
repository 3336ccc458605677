package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gastronom/catalog-crawler/internal/catalog"
	"github.com/gastronom/catalog-crawler/internal/queue/memory"
)

type fakeRunner struct {
	products []catalog.Product
	stats    catalog.Stats
}

func (r *fakeRunner) Run(context.Context) ([]catalog.Product, catalog.Stats) {
	return r.products, r.stats
}

type fakeSink struct {
	mu     sync.Mutex
	stored []catalog.Product
	err    error
}

func (s *fakeSink) Store(_ context.Context, p catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.stored = append(s.stored, p)
	return nil
}

func (s *fakeSink) storedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stored)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func runTask(t *testing.T, runner Runner, sinks []catalog.ProductSink) (*TaskStore, catalog.ParseTask) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := memory.NewQueue(1)
	defer queue.Close()
	store := NewTaskStore()
	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}

	task := catalog.ParseTask{TaskID: "task-1", Mode: "full", Timestamp: clock.now}
	store.Create(task)
	require.NoError(t, queue.Enqueue(ctx, task))

	w := New(queue, store, runner, sinks, clock, zap.NewNop())
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		rec, ok := store.Get(task.TaskID)
		return ok && rec.Status != catalog.TaskStatusQueued && rec.Status != catalog.TaskStatusRunning
	}, 2*time.Second, 5*time.Millisecond)

	return store, task
}

func TestWorkerSuccessFlow(t *testing.T) {
	t.Parallel()

	var stats catalog.Stats
	stats.URLsDiscovered = 2
	stats.Observe(catalog.Product{Name: "Салат", Composition: "состав"})
	stats.Observe(catalog.Product{Name: "Суп"})

	runner := &fakeRunner{
		products: []catalog.Product{{ID: "a", Name: "Салат"}, {ID: "b", Name: "Суп"}},
		stats:    stats,
	}
	sink := &fakeSink{}

	store, task := runTask(t, runner, []catalog.ProductSink{sink})

	rec, ok := store.Get(task.TaskID)
	require.True(t, ok)
	require.Equal(t, catalog.TaskStatusSucceeded, rec.Status)
	require.NotNil(t, rec.Started)
	require.NotNil(t, rec.Finished)
	require.Empty(t, rec.Note)
	require.Equal(t, 2, rec.Stats.Accepted)
	require.Equal(t, 2, sink.storedCount())
}

func TestWorkerEmptyRunIsFailed(t *testing.T) {
	t.Parallel()

	var stats catalog.Stats
	stats.URLsDiscovered = 5
	store, task := runTask(t, &fakeRunner{stats: stats}, nil)

	rec, _ := store.Get(task.TaskID)
	require.Equal(t, catalog.TaskStatusFailed, rec.Status)
	require.Equal(t, "no results", rec.Note)
}

func TestWorkerNoURLsDiscoveredNote(t *testing.T) {
	t.Parallel()

	store, task := runTask(t, &fakeRunner{}, nil)

	rec, _ := store.Get(task.TaskID)
	require.Equal(t, catalog.TaskStatusFailed, rec.Status)
	require.Equal(t, "no urls discovered", rec.Note)
}

func TestWorkerSinkFailureDoesNotFailTask(t *testing.T) {
	t.Parallel()

	var stats catalog.Stats
	stats.Observe(catalog.Product{Name: "Салат"})
	runner := &fakeRunner{
		products: []catalog.Product{{ID: "a", Name: "Салат"}},
		stats:    stats,
	}
	broken := &fakeSink{err: errors.New("disk full")}
	healthy := &fakeSink{}

	store, task := runTask(t, runner, []catalog.ProductSink{broken, healthy})

	rec, _ := store.Get(task.TaskID)
	require.Equal(t, catalog.TaskStatusSucceeded, rec.Status)
	require.Equal(t, 1, healthy.storedCount())
}

func TestWorkerExitsWhenQueueCloses(t *testing.T) {
	t.Parallel()

	queue := memory.NewQueue(1)
	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	w := New(queue, NewTaskStore(), &fakeRunner{}, nil, clock, zap.NewNop())

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	queue.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after queue close")
	}
}

func TestTaskStoreUpdateUnknownIDIsNoop(t *testing.T) {
	t.Parallel()

	store := NewTaskStore()
	store.Update("ghost", func(rec *TaskRecord) {
		rec.Status = catalog.TaskStatusRunning
	})
	_, ok := store.Get("ghost")
	require.False(t, ok)
}
