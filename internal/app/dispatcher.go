package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/dialectica/internal/ctxutil"
	"github.com/example/dialectica/internal/metrics"
	"github.com/example/dialectica/internal/ports/primary"
	"github.com/example/dialectica/internal/ports/secondary"
)

// idlePoll bounds each dequeue while draining so an empty queue is noticed.
const idlePoll = 200 * time.Millisecond

// dequeueBackoff is the pause after a failed dequeue.
const dequeueBackoff = time.Second

// Dispatcher runs units of work from the task queue on a fixed pool of
// workers. A failed unit is acked and counted; the reconciliation sweep
// repairs whatever state it left behind.
type Dispatcher struct {
	queue         secondary.TaskQueue
	orchestration primary.OrchestrationService
	research      primary.ResearchService
	synthesis     primary.SynthesisService
	concurrency   int
	unitTimeout   time.Duration
	log           *slog.Logger

	active atomic.Int64
}

// NewDispatcher creates a dispatcher with concurrency workers.
func NewDispatcher(
	queue secondary.TaskQueue,
	orchestration primary.OrchestrationService,
	research primary.ResearchService,
	synthesis primary.SynthesisService,
	concurrency int,
	unitTimeout time.Duration,
	log *slog.Logger,
) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{
		queue:         queue,
		orchestration: orchestration,
		research:      research,
		synthesis:     synthesis,
		concurrency:   concurrency,
		unitTimeout:   unitTimeout,
		log:           log,
	}
}

// Run processes tasks until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.concurrency; i++ {
		worker := i
		g.Go(func() error {
			d.log.Debug("worker started", "worker", worker)
			for {
				task, err := d.queue.Dequeue(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					d.log.Warn("dequeue failed", "worker", worker, "error", err)
					select {
					case <-ctx.Done():
						return nil
					case <-time.After(dequeueBackoff):
					}
					continue
				}
				d.process(ctx, task)
			}
		})
	}
	return g.Wait()
}

// RunUntilIdle processes tasks until the queue is empty and no unit is in
// flight, then returns. Used to drain work inline from the CLI. A worker
// that still holds a unit keeps draining whatever that unit enqueues.
func (d *Dispatcher) RunUntilIdle(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.concurrency; i++ {
		g.Go(func() error {
			for {
				if err := ctx.Err(); err != nil {
					return err
				}

				pollCtx, cancel := context.WithTimeout(ctx, idlePoll)
				task, err := d.queue.Dequeue(pollCtx)
				timedOut := errors.Is(pollCtx.Err(), context.DeadlineExceeded)
				cancel()
				if err == nil {
					d.active.Add(1)
					d.process(ctx, task)
					d.active.Add(-1)
					continue
				}

				if ctx.Err() != nil {
					return ctx.Err()
				}
				if !timedOut {
					return fmt.Errorf("failed to dequeue task: %w", err)
				}

				n, err := d.queue.Len(ctx)
				if err != nil {
					return fmt.Errorf("failed to read queue length: %w", err)
				}
				if n == 0 && d.active.Load() == 0 {
					return nil
				}
			}
		})
	}
	return g.Wait()
}

// process handles one task. The task is acked whatever the outcome, except
// when the dispatcher itself is shutting down, in which case it is
// returned to the queue for the next consumer.
func (d *Dispatcher) process(ctx context.Context, task *secondary.Task) {
	start := time.Now()
	unitCtx := ctxutil.WithScope(ctx, ctxutil.Scope{JobID: task.JobID, DossierID: task.DossierID})
	if d.unitTimeout > 0 {
		var cancel context.CancelFunc
		unitCtx, cancel = context.WithTimeout(unitCtx, d.unitTimeout)
		defer cancel()
	}

	err := d.handle(unitCtx, task)
	metrics.TaskDuration.WithLabelValues(string(task.Kind)).Observe(time.Since(start).Seconds())

	settleCtx := context.WithoutCancel(ctx)
	if err != nil && ctx.Err() != nil {
		metrics.TasksProcessed.WithLabelValues(string(task.Kind), "interrupted").Inc()
		if nackErr := d.queue.Nack(settleCtx, task); nackErr != nil {
			d.log.Error("failed to return task to queue", "task_id", task.ID, "error", nackErr)
		}
		return
	}

	outcome := "succeeded"
	if err != nil {
		outcome = "failed"
		d.log.Error("task failed", "task_id", task.ID, "kind", task.Kind, "job_id", task.JobID, "dossier_id", task.DossierID, "error", err)
	} else {
		d.log.Debug("task done", "task_id", task.ID, "kind", task.Kind, "elapsed", time.Since(start))
	}
	metrics.TasksProcessed.WithLabelValues(string(task.Kind), outcome).Inc()

	if ackErr := d.queue.Ack(settleCtx, task); ackErr != nil {
		d.log.Error("failed to ack task", "task_id", task.ID, "error", ackErr)
	}
}

func (d *Dispatcher) handle(ctx context.Context, task *secondary.Task) error {
	switch task.Kind {
	case secondary.TaskDecompose:
		return d.orchestration.Decompose(ctx, task.JobID)
	case secondary.TaskRunResearch:
		if err := d.research.RunPlan(ctx, task.DossierID); err != nil {
			return err
		}
		_, err := d.orchestration.OnResearchUnitFinished(ctx, task.DossierID)
		return err
	case secondary.TaskSynthesize:
		_, err := d.synthesis.Synthesize(ctx, task.JobID)
		return err
	default:
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}
}

// enqueue dispatches task and counts it.
func enqueue(ctx context.Context, queue secondary.TaskQueue, task secondary.Task) error {
	if err := queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue %s task: %w", task.Kind, err)
	}
	metrics.TasksEnqueued.WithLabelValues(string(task.Kind)).Inc()
	return nil
}
