package matching

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/okian/pairup/internal/domain/model"
	"github.com/okian/pairup/internal/domain/pool"
	"github.com/okian/pairup/pkg/logger"
	"github.com/okian/pairup/pkg/metrics"
)

// Trigger labels what caused a commit.
type Trigger string

// Commit triggers.
const (
	TriggerAuto   Trigger = "auto"
	TriggerAccept Trigger = "accept"
	TriggerCohort Trigger = "cohort"
)

const (
	sessionIDPrefix       = "sess_"
	defaultPersistTimeout = 5 * time.Second
)

// SessionStore persists committed sessions.
type SessionStore interface {
	SaveSession(ctx context.Context, s model.Session) error
}

// CommitterOption applies a configuration option to the Committer.
type CommitterOption func(*Committer)

// WithSessionStore sets the persistence collaborator. Without one, sessions
// are only returned to the caller.
func WithSessionStore(s SessionStore) CommitterOption {
	return func(c *Committer) { c.store = s }
}

// WithPersistTimeout bounds each session write.
func WithPersistTimeout(d time.Duration) CommitterOption {
	return func(c *Committer) {
		if d > 0 {
			c.persistTimeout = d
		}
	}
}

// WithCommitClock overrides the CommittedAt time source.
func WithCommitClock(now func() time.Time) CommitterOption {
	return func(c *Committer) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSessionIDs overrides the session id generator.
func WithSessionIDs(gen func() string) CommitterOption {
	return func(c *Committer) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// WithCommitterLogger sets a custom logger.
func WithCommitterLogger(l logger.Logger) CommitterOption {
	return func(c *Committer) {
		if l != nil {
			c.logger = l
		}
	}
}

// Committer turns a pair of queued participants into a Session.
type Committer struct {
	pool           *pool.Pool
	store          SessionStore
	persistTimeout time.Duration
	now            func() time.Time
	newID          func() string
	logger         logger.Logger
}

// NewCommitter creates a committer over p.
func NewCommitter(p *pool.Pool, opts ...CommitterOption) *Committer {
	c := &Committer{
		pool:           p,
		persistTimeout: defaultPersistTimeout,
		now:            time.Now,
		newID:          func() string { return sessionIDPrefix + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("committer")
	}
	return c
}

// Commit removes idA and idB from the pool in one step and returns the
// resulting session. If either is gone, neither is removed and
// ErrPartnerUnavailable is returned. A persistence failure is logged and
// does not undo the match.
func (c *Committer) Commit(ctx context.Context, idA, idB string, trigger Trigger) (model.Session, error) {
	start := time.Now()
	a, b, err := c.pool.RemovePair(ctx, idA, idB)
	metrics.RecordCommitLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		if errors.Is(err, ErrPartnerUnavailable) {
			metrics.RecordCommitConflict()
		}
		return model.Session{}, err
	}

	s := model.Session{
		SessionID:    c.newID(),
		ParticipantA: a.Profile,
		ParticipantB: b.Profile,
		CommittedAt:  c.now(),
	}
	metrics.RecordMatchCommitted(string(trigger))
	c.logger.Info(ctx, "session committed",
		logger.String("session", s.SessionID),
		logger.String("a", idA),
		logger.String("b", idB),
		logger.String("trigger", string(trigger)),
	)

	c.persist(ctx, s)
	return s, nil
}

func (c *Committer) persist(ctx context.Context, s model.Session) {
	if c.store == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.persistTimeout)
	defer cancel()

	if err := c.store.SaveSession(pctx, s); err != nil {
		metrics.RecordPersistenceFailure()
		metrics.RecordErrorByComponent("committer", "persist")
		c.logger.Error(ctx, "failed to persist session",
			logger.String("session", s.SessionID),
			logger.Error(err),
		)
		return
	}
	metrics.RecordSessionPersisted()
}
