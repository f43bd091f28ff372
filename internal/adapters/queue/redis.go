package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/dialectica/internal/ports/secondary"
)

const (
	blockTimeout = time.Second
	leaseTTL     = 30 * time.Second
)

// RedisQueue is a reliable queue on Redis lists. Tasks wait on key and
// move atomically to key:processing:<consumer> while that consumer handles
// them. Each consumer keeps key:consumer:<consumer> alive with a TTL; a
// processing list whose lease has expired belongs to a dead consumer.
type RedisQueue struct {
	rdb        *redis.Client
	key        string
	consumer   string
	processing string
	lease      string

	mu  sync.Mutex
	raw map[string]string

	stop context.CancelFunc
	wg   sync.WaitGroup
}

var _ secondary.TaskQueue = (*RedisQueue)(nil)

// NewRedisQueue connects to url and verifies the server is reachable.
func NewRedisQueue(ctx context.Context, url, key string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	consumer := uuid.NewString()
	q := &RedisQueue{
		rdb:        rdb,
		key:        key,
		consumer:   consumer,
		processing: key + ":processing:" + consumer,
		lease:      key + ":consumer:" + consumer,
		raw:        make(map[string]string),
	}
	if err := q.renewLease(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	hbCtx, stop := context.WithCancel(context.Background())
	q.stop = stop
	q.wg.Add(1)
	go q.heartbeat(hbCtx)
	return q, nil
}

// Close drops the consumer lease and releases the connection pool. Tasks
// still in flight become recoverable by other consumers.
func (q *RedisQueue) Close() error {
	q.stop()
	q.wg.Wait()
	_ = q.rdb.Del(context.Background(), q.lease).Err()
	return q.rdb.Close()
}

func (q *RedisQueue) renewLease(ctx context.Context) error {
	if err := q.rdb.Set(ctx, q.lease, time.Now().UTC().Format(time.RFC3339), leaseTTL).Err(); err != nil {
		return fmt.Errorf("failed to renew consumer lease: %w", err)
	}
	return nil
}

func (q *RedisQueue) heartbeat(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(leaseTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.renewLease(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("queue heartbeat failed", "consumer", q.consumer, "error", err)
			}
		}
	}
}

// Enqueue implements secondary.TaskQueue.
func (q *RedisQueue) Enqueue(ctx context.Context, task secondary.Task) error {
	stamp(&task)
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// Dequeue implements secondary.TaskQueue.
func (q *RedisQueue) Dequeue(ctx context.Context) (*secondary.Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := q.rdb.BLMove(ctx, q.key, q.processing, "RIGHT", "LEFT", blockTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to dequeue task: %w", err)
		}

		var task secondary.Task
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			// Drop undecodable entries rather than wedge the queue.
			_ = q.rdb.LRem(ctx, q.processing, 1, raw).Err()
			return nil, fmt.Errorf("failed to decode task: %w", err)
		}

		q.mu.Lock()
		q.raw[task.ID] = raw
		q.mu.Unlock()
		return &task, nil
	}
}

// Ack implements secondary.TaskQueue.
func (q *RedisQueue) Ack(ctx context.Context, task *secondary.Task) error {
	raw, err := q.take(task)
	if err != nil {
		return err
	}
	if err := q.rdb.LRem(ctx, q.processing, 1, raw).Err(); err != nil {
		return fmt.Errorf("failed to ack task %s: %w", task.ID, err)
	}
	return nil
}

// Nack implements secondary.TaskQueue.
func (q *RedisQueue) Nack(ctx context.Context, task *secondary.Task) error {
	raw, err := q.take(task)
	if err != nil {
		return err
	}
	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing, 1, raw)
		pipe.RPush(ctx, q.key, raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to nack task %s: %w", task.ID, err)
	}
	return nil
}

// Len implements secondary.TaskQueue.
func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return int(n), nil
}

// Recover implements secondary.TaskQueue. Only processing lists whose
// consumer lease has expired are returned to the queue, so a worker
// starting next to live ones leaves their tasks alone.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	prefix := q.key + ":processing:"
	var lists []string
	iter := q.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		lists = append(lists, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan processing lists: %w", err)
	}

	moved := 0
	for _, list := range lists {
		owner := strings.TrimPrefix(list, prefix)
		if owner == q.consumer {
			continue
		}
		alive, err := q.rdb.Exists(ctx, q.key+":consumer:"+owner).Result()
		if err != nil {
			return moved, fmt.Errorf("failed to check consumer %s: %w", owner, err)
		}
		if alive > 0 {
			continue
		}
		n, err := q.drainList(ctx, list)
		moved += n
		if err != nil {
			return moved, err
		}
		slog.Debug("recovered tasks from dead consumer", "consumer", owner, "tasks", n)
	}
	return moved, nil
}

func (q *RedisQueue) drainList(ctx context.Context, list string) (int, error) {
	moved := 0
	for {
		err := q.rdb.LMove(ctx, list, q.key, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("failed to recover tasks: %w", err)
		}
		moved++
	}
}

func (q *RedisQueue) take(task *secondary.Task) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	raw, ok := q.raw[task.ID]
	if !ok {
		return "", fmt.Errorf("task %s is not in flight", task.ID)
	}
	delete(q.raw, task.ID)
	return raw, nil
}
