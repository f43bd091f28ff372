package secondary

import (
	"context"
	"time"
)

// TaskKind names a unit of work.
type TaskKind string

const (
	TaskDecompose   TaskKind = "decompose"
	TaskRunResearch TaskKind = "run_research"
	TaskSynthesize  TaskKind = "synthesize"
)

// Task is one unit of work. Delivery is at-least-once, so every handler
// must tolerate seeing the same task twice.
type Task struct {
	ID         string    `json:"id"`
	Kind       TaskKind  `json:"kind"`
	JobID      string    `json:"job_id,omitempty"`
	DossierID  string    `json:"dossier_id,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// TaskQueue defines the secondary port for the work queue.
type TaskQueue interface {
	// Enqueue appends a task.
	Enqueue(ctx context.Context, task Task) error

	// Dequeue blocks until a task is available or ctx is done. The task
	// stays in flight until it is acked or nacked.
	Dequeue(ctx context.Context) (*Task, error)

	// Ack removes an in-flight task.
	Ack(ctx context.Context, task *Task) error

	// Nack returns an in-flight task to the queue.
	Nack(ctx context.Context, task *Task) error

	// Len returns the number of tasks waiting to be dequeued.
	Len(ctx context.Context) (int, error)

	// Recover moves tasks left in flight by a dead consumer back to the
	// queue and returns how many were moved.
	Recover(ctx context.Context) (int, error)
}
