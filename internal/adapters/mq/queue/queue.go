// Package queue buffers inbound commands between the transport and the
// dispatcher workers.
//
// Commands are spread over a fixed number of partitions by a hash of their
// partition key, so commands for one participant are consumed in arrival
// order while different participants proceed in parallel.
package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/okian/pairup/internal/domain/model"
	"github.com/okian/pairup/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultCapacity   = 10_000
	defaultPartitions = 4
)

// Command is the payload flowing through the queue.
type Command = model.Command

// Queue provides non-blocking enqueue and per-partition dequeue.
type Queue interface {
	// Enqueue adds a command. It returns ErrQueueFull when the target
	// partition is at capacity and ErrStopped after Close.
	Enqueue(ctx context.Context, c Command) error
	// Partitions returns the number of partitions.
	Partitions() int
	// Partition returns the receive side of partition i. It is closed by Close.
	Partition(i int) <-chan Command
	// Len returns the number of buffered commands.
	Len(ctx context.Context) int
	Close() error
	IsClosed() bool
}

// PartitionedQueue implements Queue with one buffered channel per partition.
type PartitionedQueue struct {
	parts      []chan Command
	capacity   int
	partitions int
	depth      atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewPartitionedQueue creates a queue. Capacity is split evenly across partitions.
func NewPartitionedQueue(opts ...Option) *PartitionedQueue {
	q := &PartitionedQueue{
		capacity:   defaultCapacity,
		partitions: defaultPartitions,
	}
	for _, opt := range opts {
		opt(q)
	}

	per := (q.capacity + q.partitions - 1) / q.partitions
	q.parts = make([]chan Command, q.partitions)
	for i := range q.parts {
		q.parts[i] = make(chan Command, per)
	}

	metrics.UpdateCommandQueueDepth(0)
	return q
}

// PartitionFor returns the partition index for key.
func (q *PartitionedQueue) PartitionFor(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(q.parts)))
}

// Enqueue adds a command to the partition of its key.
func (q *PartitionedQueue) Enqueue(ctx context.Context, c Command) error { //nolint:gocritic // hugeParam: Command is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrStopped
	}

	select {
	case q.parts[q.PartitionFor(c.PartitionKey())] <- c:
		metrics.UpdateCommandQueueDepth(int(q.depth.Add(1)))
		return nil
	case <-ctx.Done():
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return ctx.Err()
	default:
		metrics.RecordCommandRejected()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrQueueFull
	}
}

// Partitions returns the number of partitions.
func (q *PartitionedQueue) Partitions() int { return len(q.parts) }

// Partition returns the receive side of partition i.
func (q *PartitionedQueue) Partition(i int) <-chan Command { return q.parts[i] }

// Done marks one dequeued command as consumed for depth accounting.
func (q *PartitionedQueue) Done() {
	metrics.UpdateCommandQueueDepth(int(q.depth.Add(-1)))
}

// Len returns the number of buffered commands across partitions.
func (q *PartitionedQueue) Len(_ context.Context) int {
	n := 0
	for _, p := range q.parts {
		n += len(p)
	}
	return n
}

// Close stops accepting commands and closes every partition. Buffered
// commands remain readable.
func (q *PartitionedQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	for _, p := range q.parts {
		close(p)
	}
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *PartitionedQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
