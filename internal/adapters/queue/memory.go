// Package queue implements secondary.TaskQueue in memory and on Redis.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/dialectica/internal/ports/secondary"
)

// MemoryQueue is a process-local FIFO. Tasks do not survive a restart;
// the reconciliation sweep re-derives lost work from the database.
type MemoryQueue struct {
	mu       sync.Mutex
	items    []secondary.Task
	inflight map[string]secondary.Task
	notify   chan struct{}
}

var _ secondary.TaskQueue = (*MemoryQueue)(nil)

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		inflight: make(map[string]secondary.Task),
		notify:   make(chan struct{}, 1),
	}
}

// Enqueue implements secondary.TaskQueue.
func (q *MemoryQueue) Enqueue(_ context.Context, task secondary.Task) error {
	stamp(&task)
	q.mu.Lock()
	q.items = append(q.items, task)
	q.mu.Unlock()
	q.signal()
	return nil
}

// Dequeue implements secondary.TaskQueue.
func (q *MemoryQueue) Dequeue(ctx context.Context) (*secondary.Task, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			task := q.items[0]
			q.items = q.items[1:]
			q.inflight[task.ID] = task
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return &task, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// Ack implements secondary.TaskQueue.
func (q *MemoryQueue) Ack(_ context.Context, task *secondary.Task) error {
	q.mu.Lock()
	delete(q.inflight, task.ID)
	q.mu.Unlock()
	return nil
}

// Nack implements secondary.TaskQueue.
func (q *MemoryQueue) Nack(_ context.Context, task *secondary.Task) error {
	q.mu.Lock()
	delete(q.inflight, task.ID)
	q.items = append(q.items, *task)
	q.mu.Unlock()
	q.signal()
	return nil
}

// Len implements secondary.TaskQueue.
func (q *MemoryQueue) Len(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}

// Recover implements secondary.TaskQueue. Only call it while no consumer
// is running.
func (q *MemoryQueue) Recover(context.Context) (int, error) {
	q.mu.Lock()
	n := len(q.inflight)
	for id, task := range q.inflight {
		q.items = append(q.items, task)
		delete(q.inflight, id)
	}
	q.mu.Unlock()
	if n > 0 {
		q.signal()
	}
	return n, nil
}

func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func stamp(task *secondary.Task) {
	if task.ID == "" {
		task.ID = "TASK-" + uuid.NewString()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}
}
