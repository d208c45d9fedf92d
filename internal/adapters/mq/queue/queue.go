// Package queue carries samples from the sample source to the control loop.
//
// The source runs on its own goroutine at the sampling rate while the control
// loop drains at the tick rate, so the queue is bounded and drops on overflow
// rather than blocking the sampler.
package queue

import (
	"context"
	"sync"

	"github.com/okian/tapsense/internal/domain/model"
	"github.com/okian/tapsense/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
)

// Queue provides non-blocking enqueue and drain semantics for samples.
type Queue interface {
	// Enqueue adds a sample to the queue.
	// Returns false if the queue is full or closed and the sample was not enqueued.
	Enqueue(ctx context.Context, s model.Sample) bool

	// Dequeue returns the channel samples are delivered on.
	// The channel is closed when the queue is closed.
	Dequeue() <-chan model.Sample

	// DrainInto hands every currently queued sample to fn without blocking
	// and returns how many were delivered.
	DrainInto(fn func(model.Sample)) int

	// Len returns the current number of queued samples.
	Len() int

	// Close shuts down the queue. Queued samples stay readable.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	samples  chan model.Sample
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.samples = make(chan model.Sample, q.capacity)
	return q
}

// Enqueue adds a sample to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, s model.Sample) bool { //nolint:gocritic // hugeParam: samples move by value
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return false
	}

	select {
	case q.samples <- s:
		return true
	case <-ctx.Done():
		return false
	default:
		metrics.RecordSampleQueueDrop()
		return false
	}
}

// Dequeue returns the channel samples are delivered on.
func (q *InMemoryQueue) Dequeue() <-chan model.Sample {
	return q.samples
}

// DrainInto delivers every queued sample to fn without blocking.
func (q *InMemoryQueue) DrainInto(fn func(model.Sample)) int {
	n := 0
	for {
		select {
		case s, ok := <-q.samples:
			if !ok {
				return n
			}
			fn(s)
			n++
		default:
			return n
		}
	}
}

// Len returns the current number of queued samples.
func (q *InMemoryQueue) Len() int {
	return len(q.samples)
}

// Capacity returns the maximum number of queued samples.
func (q *InMemoryQueue) Capacity() int {
	return q.capacity
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	close(q.samples)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
