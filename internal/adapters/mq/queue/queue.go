// Package queue provides the bounded in-memory job queue that feeds
// the recompute worker pool. Enqueue is non-blocking; a full queue
// sheds load instead of stalling ingestion.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/cscx/pulse/internal/domain/model"
	"github.com/cscx/pulse/pkg/metrics"
)

const defaultCapacity = 10000

// Job is one unit of recompute work for a single entity.
type Job struct {
	ID         string
	EntityID   string
	EntityType model.EntityType
	Trigger    string // "batch" or "event"
	ModelName  string
	EnqueuedAt time.Time
}

// Queue provides non-blocking enqueue and channel-based dequeue.
type Queue interface {
	// Enqueue adds a job. Returns false when the queue is full or
	// closed; the caller decides whether that is fatal.
	Enqueue(ctx context.Context, j Job) bool

	// Dequeue returns the consumption channel. It is closed when the
	// queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Job

	// Len returns the current queue depth.
	Len(ctx context.Context) int

	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue on a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a queue with the given options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a job without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected()
		return false
	}

	select {
	case q.jobs <- j:
		metrics.UpdateQueueSize(len(q.jobs))
		return true
	case <-ctx.Done():
		metrics.RecordQueueRejected()
		return false
	default:
		metrics.RecordQueueRejected()
		return false
	}
}

// Dequeue returns the consumption channel. The wrapper goroutine keeps
// the depth gauge current and honors ctx cancellation.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Job {
	out := make(chan Job)
	go func() {
		defer close(out)
		for j := range q.jobs {
			select {
			case out <- j:
				metrics.UpdateQueueSize(len(q.jobs))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current queue depth.
func (q *InMemoryQueue) Len(_ context.Context) int {
	n := len(q.jobs)
	metrics.UpdateQueueSize(n)
	return n
}

// Close stops accepting jobs and lets consumers drain what remains.
// Closing an already-closed queue returns ErrClosed.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed reports whether the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
