package queue

// Option applies a configuration option to the PartitionedQueue.
type Option func(*PartitionedQueue)

// WithCapacity sets the total number of commands the queue may hold.
func WithCapacity(capacity int) Option {
	return func(q *PartitionedQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithPartitions sets the number of ordered partitions.
func WithPartitions(n int) Option {
	return func(q *PartitionedQueue) {
		if n > 0 {
			q.partitions = n
		}
	}
}
