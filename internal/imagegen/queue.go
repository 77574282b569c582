package imagegen

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrQueueClosed = errors.New("queue closed")
	ErrQueueFull   = errors.New("queue full")
)

// LocalQueue runs jobs on a fixed pool of goroutines in this process. Jobs are
// owned by the queue's lifetime context, not by the enqueuing request.
type LocalQueue struct {
	jobs    chan string
	workers int
	logger  *zap.Logger

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	process func(ctx context.Context, toolCallID string) error
}

func NewLocalQueue(workers, buffer int, logger *zap.Logger) *LocalQueue {
	if workers <= 0 {
		workers = 2
	}
	if buffer <= 0 {
		buffer = workers * 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalQueue{
		jobs:    make(chan string, buffer),
		workers: workers,
		logger:  logger.Named("localqueue"),
	}
}

// Start launches the workers. process is typically Manager.Process.
func (q *LocalQueue) Start(ctx context.Context, process func(ctx context.Context, toolCallID string) error) {
	q.process = process
	q.wg.Add(q.workers)
	for i := 0; i < q.workers; i++ {
		go func(workerID int) {
			defer q.wg.Done()
			for id := range q.jobs {
				if err := q.process(ctx, id); err != nil {
					q.logger.Error("process failed", zap.Int("worker", workerID), zap.String("tool_call_id", id), zap.Error(err))
				}
			}
		}(i)
	}
}

// Enqueue never waits for a free worker. When the buffer is full the job is
// left pending for Reconcile to hand back later.
func (q *LocalQueue) Enqueue(ctx context.Context, toolCallID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- toolCallID:
		return nil
	default:
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrQueueFull
	}
}

// Close stops accepting work and waits for queued jobs to drain.
func (q *LocalQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()
	q.wg.Wait()
}
