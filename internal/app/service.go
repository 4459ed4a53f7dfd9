// Package service composes the matchmaking components and implements the
// inbound command handlers.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/pairup/internal/adapters/mq/queue"
	"github.com/okian/pairup/internal/adapters/mq/worker"
	"github.com/okian/pairup/internal/adapters/notify"
	"github.com/okian/pairup/internal/adapters/storage"
	"github.com/okian/pairup/internal/domain/dedupe"
	"github.com/okian/pairup/internal/domain/matching"
	"github.com/okian/pairup/internal/domain/model"
	"github.com/okian/pairup/internal/domain/pool"
	"github.com/okian/pairup/internal/domain/scoring"
	"github.com/okian/pairup/pkg/logger"
	"github.com/okian/pairup/pkg/metrics"
)

// Service owns the pool, engine, dispatcher and notifier.
type Service struct {
	mu sync.RWMutex

	// Core components
	pool      *pool.Pool
	committer *matching.Committer
	engine    *matching.Engine
	hub       *notify.Hub
	queue     *queue.PartitionedQueue
	workers   *worker.Pool
	deduper   dedupe.Deduper
	store     storage.Store

	// Configuration
	workerCount        int
	queueSize          int
	dedupeSize         int
	sendBuffer         int
	scorerKind         string
	skillWeight        float64
	availabilityWeight float64
	threshold          float64
	listLimit          int
	queueTTL           time.Duration
	sweepInterval      time.Duration
	persistTimeout     time.Duration
	leaveOnDisconnect  bool
	now                func() time.Time

	// State
	started   bool
	stopped   bool
	stopCh    chan struct{}
	sweepDone chan struct{}

	logger logger.Logger
}

// Stats is the monitoring snapshot served at /stats.
type Stats struct {
	Started         bool  `json:"started"`
	QueueSize       int   `json:"queueSize"`
	Sessions        int   `json:"sessions"`
	WorkerCount     int   `json:"workerCount"`
	Connected       int   `json:"connected"`
	PendingCommands int   `json:"pendingCommands"`
	DedupeSize      int64 `json:"dedupeSize"`
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of dispatch partitions.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the command queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the request id cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithSendBuffer sets the per-connection outbound buffer.
func WithSendBuffer(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sendBuffer = n
		}
	}
}

// WithScorer selects the scorer kind and its weights.
func WithScorer(kind string, skillWeight, availabilityWeight float64) Option {
	return func(s *Service) {
		s.scorerKind = kind
		s.skillWeight = skillWeight
		s.availabilityWeight = availabilityWeight
	}
}

// WithThreshold sets the auto-match threshold.
func WithThreshold(t float64) Option {
	return func(s *Service) { s.threshold = t }
}

// WithMatchListLimit caps pushed candidate lists. Zero means unlimited.
func WithMatchListLimit(n int) Option {
	return func(s *Service) { s.listLimit = n }
}

// WithSweep enables the periodic auto-match sweep and idle eviction.
func WithSweep(interval, ttl time.Duration) Option {
	return func(s *Service) {
		s.sweepInterval = interval
		s.queueTTL = ttl
	}
}

// WithLeaveOnDisconnect controls whether a closed connection leaves the pool.
func WithLeaveOnDisconnect(v bool) Option {
	return func(s *Service) { s.leaveOnDisconnect = v }
}

// WithStore sets the profile and session backend. The service closes it on Stop.
func WithStore(st storage.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithPersistTimeout bounds each session write.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Service) { s.persistTimeout = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Components are ready for synchronous use;
// Start launches the dispatcher and the sweep.
func New(opts ...Option) (*Service, error) {
	s := &Service{
		workerCount:        runtime.NumCPU(),
		queueSize:          10_000,
		dedupeSize:         50_000,
		sendBuffer:         64,
		scorerKind:         scoring.KindOverlap,
		skillWeight:        scoring.DefaultSkillWeight,
		availabilityWeight: scoring.DefaultAvailabilityWeight,
		threshold:          matching.DefaultThreshold,
		leaveOnDisconnect:  true,
		now:                time.Now,
		stopCh:             make(chan struct{}),
		sweepDone:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.threshold < 0 {
		return nil, matching.ErrInvalidThreshold
	}

	scorer, err := scoring.New(s.scorerKind,
		scoring.WithSkillWeight(s.skillWeight),
		scoring.WithAvailabilityWeight(s.availabilityWeight),
	)
	if err != nil {
		return nil, fmt.Errorf("building scorer: %w", err)
	}
	if s.store == nil {
		s.store = storage.NewMemoryStore()
	}

	s.pool = pool.New(pool.WithClock(s.now))
	s.committer = matching.NewCommitter(s.pool,
		matching.WithSessionStore(s.store),
		matching.WithPersistTimeout(s.persistTimeout),
		matching.WithCommitClock(s.now),
	)
	s.engine = matching.NewEngine(s.pool, s.committer,
		matching.WithScorer(scorer),
		matching.WithThreshold(s.threshold),
		matching.WithListLimit(s.listLimit),
	)
	s.hub = notify.NewHub(notify.WithSendBuffer(s.sendBuffer))
	s.queue = queue.NewPartitionedQueue(
		queue.WithCapacity(s.queueSize),
		queue.WithPartitions(s.workerCount),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.workers = worker.NewPool(s.queue, s, worker.WithPoolAck(s.queue.Done))
	return s, nil
}

// ErrStopped is returned by Start once the service has been stopped.
var ErrStopped = errors.New("service stopped")

// Start launches the dispatcher workers and, when configured, the sweep.
// They run until Stop; canceling ctx does not abandon queued commands.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting matchmaking service...")

	runCtx := context.WithoutCancel(ctx)
	s.workers.Start(runCtx)
	if s.sweepInterval > 0 {
		go s.sweepLoop(runCtx)
	} else {
		close(s.sweepDone)
	}

	s.started = true
	metrics.UpdateWorkerCount(s.workers.Size())
	s.logger.Info(ctx, "matchmaking service started",
		logger.Int("workers", s.workers.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.String("scorer", s.scorerKind),
		logger.Float64("threshold", s.threshold),
		logger.Duration("sweepInterval", s.sweepInterval),
	)
	return nil
}

// Stop drains queued commands, stops the sweep and closes the store.
// A stopped service cannot be started again.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping matchmaking service...")

	var errs []error
	if err := s.workers.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	close(s.stopCh)
	<-s.sweepDone

	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}

	s.started = false
	s.stopped = true
	s.logger.Info(ctx, "matchmaking service stopped")
	return errors.Join(errs...)
}

// Enqueue hands a command to the dispatcher.
func (s *Service) Enqueue(ctx context.Context, c model.Command) error {
	return s.queue.Enqueue(ctx, c)
}

// Hub returns the connection hub.
func (s *Service) Hub() *notify.Hub { return s.hub }

// Deduper returns the inbound request id tracker.
func (s *Service) Deduper() dedupe.Deduper { return s.deduper }

// QueueIDs returns queued participant ids in enqueue order.
func (s *Service) QueueIDs() []string { return s.pool.IDs() }

// Profile returns a stored profile.
func (s *Service) Profile(ctx context.Context, participantID string) (model.ProfileSnapshot, error) {
	return s.store.GetProfile(ctx, participantID)
}

// RecentSessions returns the newest committed sessions.
func (s *Service) RecentSessions(ctx context.Context, limit int) ([]model.Session, error) {
	return s.store.RecentSessions(ctx, limit)
}

// PairCohorts stably pairs two cohorts from the pool and notifies each pair.
func (s *Service) PairCohorts(ctx context.Context, cohortA, cohortB string) ([]model.Session, error) {
	sessions, err := s.engine.PairCohorts(ctx, cohortA, cohortB)
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		s.notifyMatched(ctx, sess)
	}
	return sessions, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	st := Stats{
		Started:         started,
		QueueSize:       s.pool.Len(),
		WorkerCount:     s.workers.Size(),
		Connected:       s.hub.Connected(),
		PendingCommands: s.queue.Len(ctx),
		DedupeSize:      s.deduper.Size(),
	}
	n, err := s.store.CountSessions(ctx)
	if err != nil {
		return st, fmt.Errorf("counting sessions: %w", err)
	}
	st.Sessions = n
	return st, nil
}
