package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gastronom/catalog-crawler/internal/catalog"
)

func TestQueueFIFO(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, catalog.ParseTask{TaskID: "first"}))
	require.NoError(t, q.Enqueue(ctx, catalog.ParseTask{TaskID: "second"}))

	task, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "first", task.TaskID)

	task, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "second", task.TaskID)
}

func TestDequeueHonorsContext(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEnqueueHonorsContextWhenFull(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	defer q.Close()
	require.NoError(t, q.Enqueue(context.Background(), catalog.ParseTask{TaskID: "fill"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Enqueue(ctx, catalog.ParseTask{TaskID: "overflow"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDequeueAfterClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), catalog.ParseTask{TaskID: "last"}))
	q.Close()
	q.Close() // idempotent

	task, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "last", task.TaskID)

	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, catalog.ErrQueueClosed)
}

func TestEnqueueAfterCloseFails(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	q.Close()

	err := q.Enqueue(context.Background(), catalog.ParseTask{TaskID: "late"})
	require.ErrorIs(t, err, catalog.ErrQueueClosed)
	require.Zero(t, q.Len())
}

func TestCloseWakesBlockedDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)

	errs := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-errs:
		require.ErrorIs(t, err, catalog.ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return after close")
	}
}

func TestLenTracksBacklog(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	defer q.Close()
	ctx := context.Background()

	require.Zero(t, q.Len())
	require.NoError(t, q.Enqueue(ctx, catalog.ParseTask{TaskID: "a"}))
	require.NoError(t, q.Enqueue(ctx, catalog.ParseTask{TaskID: "b"}))
	require.Equal(t, 2, q.Len())

	_, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, q.Len())
}
