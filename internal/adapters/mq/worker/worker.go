package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/pairup/internal/domain/model"
	"github.com/okian/pairup/pkg/logger"
	"github.com/okian/pairup/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Handler executes one inbound command.
type Handler interface {
	Handle(ctx context.Context, c model.Command) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, c model.Command) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, c model.Command) error { return f(ctx, c) }

// Source is the partitioned queue the pool drains.
type Source interface {
	Partitions() int
	Partition(i int) <-chan model.Command
}

// InMemoryWorker drains a single partition in order.
type InMemoryWorker struct {
	commands <-chan model.Command
	handler  Handler
	name     string
	ack      func()

	processed atomic.Int64
	done      chan struct{}
	logger    logger.Logger
}

// NewInMemoryWorker creates a worker reading from commands.
func NewInMemoryWorker(commands <-chan model.Command, h Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		commands: commands,
		handler:  h,
		name:     "worker",
		ack:      func() {},
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run handles commands until the partition is closed and drained or ctx is canceled.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-w.commands:
			if !ok {
				return
			}
			if err := w.process(ctx, c); err != nil {
				w.logger.Error(ctx, "error handling command",
					logger.String("kind", string(c.Kind)),
					logger.String("participant", c.ParticipantID),
					logger.Error(err),
				)
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// Processed returns the number of handled commands.
func (w *InMemoryWorker) Processed() int64 { return w.processed.Load() }

func (w *InMemoryWorker) process(ctx context.Context, c model.Command) (err error) { //nolint:gocritic // hugeParam: Command is passed by value for channel semantics
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordErrorByComponent("worker", "panic")
			err = fmt.Errorf("handler panic: %v", r)
		}
		w.processed.Add(1)
		w.ack()
		metrics.RecordCommandLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if herr := w.handler.Handle(ctx, c); herr != nil {
		metrics.RecordErrorByComponent("worker", "handler_error")
		return fmt.Errorf("handle %s: %w", c.Kind, herr)
	}
	return nil
}

// PoolOption applies a configuration option to the Pool.
type PoolOption func(*Pool)

// WithPoolAck sets the per-command callback passed to every worker.
func WithPoolAck(ack func()) PoolOption {
	return func(p *Pool) { p.ack = ack }
}

// Pool runs one worker per queue partition.
type Pool struct {
	workers []*InMemoryWorker
	source  Source
	ack     func()
	logger  logger.Logger
}

// NewPool creates a pool with a worker for every partition of source.
func NewPool(source Source, h Handler, opts ...PoolOption) *Pool {
	p := &Pool{
		source: source,
		logger: logger.Get().Named("dispatcher"),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.workers = make([]*InMemoryWorker, source.Partitions())
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(
			source.Partition(i),
			h,
			WithName("worker-"+strconv.Itoa(i)),
			WithAck(p.ack),
		)
	}
	metrics.UpdateWorkerCount(len(p.workers))
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the number of commands handled by all workers.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Start launches all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.logger.Info(ctx, "dispatcher started", logger.Int("workers", len(p.workers)))
}

// Shutdown closes the source if it can be closed and waits for the workers
// to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.source.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.Done():
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("shutdown timed out: %w", shutdownCtx.Err())
		}
	}
	metrics.UpdateWorkerCount(0)
	return nil
}
