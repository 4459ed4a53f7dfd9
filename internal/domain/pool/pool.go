// Package pool holds the registry of participants waiting for a match.
//
// All mutations go through a single RWMutex. Reads used for scoring take the
// read lock and copy entries out, so a scoring round never observes a
// half-applied pair removal.
package pool

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/pairup/internal/domain/model"
	"github.com/okian/pairup/pkg/logger"
	"github.com/okian/pairup/pkg/metrics"
)

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithClock overrides the time source used for EnqueuedAt.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets a custom logger for the pool.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// Pool is a concurrency-safe registry of queue entries keyed by participant id.
type Pool struct {
	mu      sync.RWMutex
	entries map[string]model.QueueEntry
	seq     uint64

	now    func() time.Time
	logger logger.Logger
}

// New creates an empty pool.
func New(opts ...Option) *Pool {
	p := &Pool{
		entries: make(map[string]model.QueueEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("pool")
	}
	return p
}

// Join inserts or replaces the entry for its participant. A replaced entry
// keeps its position in the enqueue order. It reports whether an entry was
// replaced.
func (p *Pool) Join(ctx context.Context, e model.QueueEntry) (bool, error) {
	if !e.Profile.Valid() {
		return false, ErrProfileIncomplete
	}
	e.Profile = e.Profile.Normalize()

	p.mu.Lock()
	prev, replaced := p.entries[e.ParticipantID()]
	if replaced {
		e.Seq = prev.Seq
		if e.ConnectionHandle == "" {
			e.ConnectionHandle = prev.ConnectionHandle
		}
	} else {
		p.seq++
		e.Seq = p.seq
	}
	e.EnqueuedAt = p.now()
	p.entries[e.ParticipantID()] = e
	size := len(p.entries)
	p.mu.Unlock()

	metrics.RecordJoin()
	metrics.UpdatePoolSize(size)
	p.logger.Debug(ctx, "participant queued",
		logger.String("participant", e.ParticipantID()),
		logger.Bool("replaced", replaced),
		logger.Int("size", size),
	)
	return replaced, nil
}

// Leave removes the participant if present. Absent ids are a no-op.
func (p *Pool) Leave(ctx context.Context, participantID string) (model.QueueEntry, bool) {
	p.mu.Lock()
	e, ok := p.entries[participantID]
	if ok {
		delete(p.entries, participantID)
	}
	size := len(p.entries)
	p.mu.Unlock()

	if ok {
		metrics.RecordLeave("leave")
		metrics.UpdatePoolSize(size)
		p.logger.Debug(ctx, "participant left", logger.String("participant", participantID), logger.Int("size", size))
	}
	return e, ok
}

// Get returns the current entry for a participant.
func (p *Pool) Get(participantID string) (model.QueueEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[participantID]
	return e, ok
}

// Has reports whether the participant is queued.
func (p *Pool) Has(participantID string) bool {
	_, ok := p.Get(participantID)
	return ok
}

// Snapshot returns a point-in-time copy of all entries except exclude,
// ordered by enqueue sequence.
func (p *Pool) Snapshot(exclude string) []model.QueueEntry {
	p.mu.RLock()
	out := make([]model.QueueEntry, 0, len(p.entries))
	for id, e := range p.entries {
		if id == exclude {
			continue
		}
		out = append(out, e)
	}
	p.mu.RUnlock()

	sortBySeq(out)
	return out
}

// RemovePair atomically removes both participants. If either is missing,
// nothing is removed and ErrPartnerUnavailable is returned.
func (p *Pool) RemovePair(ctx context.Context, idA, idB string) (model.QueueEntry, model.QueueEntry, error) {
	if idA == idB {
		return model.QueueEntry{}, model.QueueEntry{}, ErrSelfMatch
	}

	p.mu.Lock()
	a, okA := p.entries[idA]
	b, okB := p.entries[idB]
	if !okA || !okB {
		p.mu.Unlock()
		p.logger.Debug(ctx, "pair removal aborted",
			logger.String("a", idA), logger.Bool("a_present", okA),
			logger.String("b", idB), logger.Bool("b_present", okB),
		)
		return model.QueueEntry{}, model.QueueEntry{}, ErrPartnerUnavailable
	}
	delete(p.entries, idA)
	delete(p.entries, idB)
	size := len(p.entries)
	p.mu.Unlock()

	metrics.RecordLeave("matched")
	metrics.RecordLeave("matched")
	metrics.UpdatePoolSize(size)
	return a, b, nil
}

// EvictIdle removes entries enqueued before cutoff and returns them.
func (p *Pool) EvictIdle(ctx context.Context, cutoff time.Time) []model.QueueEntry {
	p.mu.Lock()
	var evicted []model.QueueEntry
	for id, e := range p.entries {
		if e.EnqueuedAt.Before(cutoff) {
			evicted = append(evicted, e)
			delete(p.entries, id)
		}
	}
	size := len(p.entries)
	p.mu.Unlock()

	if len(evicted) > 0 {
		sortBySeq(evicted)
		for range evicted {
			metrics.RecordEviction()
			metrics.RecordLeave("ttl")
		}
		metrics.UpdatePoolSize(size)
		p.logger.Info(ctx, "evicted idle participants", logger.Int("count", len(evicted)), logger.Int("size", size))
	}
	return evicted
}

// IDs returns queued participant ids in enqueue order.
func (p *Pool) IDs() []string {
	entries := p.Snapshot("")
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ParticipantID()
	}
	return ids
}

// Len returns the number of queued participants.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

func sortBySeq(entries []model.QueueEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
}
