// Package worker consumes the task queue and executes the parse pipeline
// per dequeued task.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/gastronom/catalog-crawler/internal/catalog"
)

// Runner executes one full pipeline run.
type Runner interface {
	Run(ctx context.Context) ([]catalog.Product, catalog.Stats)
}

// Worker blocks on the queue and drives the pipeline.
type Worker struct {
	queue  catalog.TaskQueue
	store  *TaskStore
	runner Runner
	sinks  []catalog.ProductSink
	clock  catalog.Clock
	logger *zap.Logger
}

// New constructs a Worker.
func New(
	queue catalog.TaskQueue,
	store *TaskStore,
	runner Runner,
	sinks []catalog.ProductSink,
	clock catalog.Clock,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:  queue,
		store:  store,
		runner: runner,
		sinks:  sinks,
		clock:  clock,
		logger: logger,
	}
}

// Run blocks, consuming tasks until the context finishes or the queue is
// closed and drained.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, catalog.ErrQueueClosed) {
				return
			}
			w.logger.Error("dequeue failed", zap.Error(err))
			continue
		}
		w.processTask(ctx, task)
	}
}

func (w *Worker) processTask(ctx context.Context, task catalog.ParseTask) {
	log := w.logger.With(zap.String("task_id", task.TaskID))
	started := w.clock.Now()
	w.store.Update(task.TaskID, func(rec *TaskRecord) {
		rec.Status = catalog.TaskStatusRunning
		rec.Started = &started
	})
	log.Info("task started", zap.String("mode", task.Mode))

	products, stats := w.runner.Run(ctx)
	w.persist(ctx, products, log)

	finished := w.clock.Now()
	status := catalog.TaskStatusSucceeded
	note := ""
	if stats.Accepted == 0 {
		// "No results" is distinct from a partial run below target count.
		status = catalog.TaskStatusFailed
		note = "no results"
		if stats.URLsDiscovered == 0 {
			note = "no urls discovered"
		}
	}
	w.store.Update(task.TaskID, func(rec *TaskRecord) {
		rec.Status = status
		rec.Finished = &finished
		rec.Note = note
		rec.Stats = stats
	})
	log.Info("task finished",
		zap.String("status", string(status)),
		zap.Int("accepted", stats.Accepted),
	)
}

// persist feeds every accepted record through the configured sinks. A sink
// failure is logged, never fatal to the task.
func (w *Worker) persist(ctx context.Context, products []catalog.Product, log *zap.Logger) {
	for _, sink := range w.sinks {
		for _, p := range products {
			if err := sink.Store(ctx, p); err != nil {
				log.Error("sink store failed", zap.String("url", p.URL), zap.Error(err))
				break
			}
		}
	}
}
