// Package matching ranks queued participants and commits pairs.
package matching

import (
	"context"
	"sort"
	"time"

	"github.com/okian/pairup/internal/domain/model"
	"github.com/okian/pairup/internal/domain/pool"
	"github.com/okian/pairup/internal/domain/scoring"
	"github.com/okian/pairup/pkg/logger"
	"github.com/okian/pairup/pkg/metrics"
)

// DefaultThreshold is the minimum top score that triggers an auto-match.
const DefaultThreshold = 1.0

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithScorer sets the compatibility scorer.
func WithScorer(s scoring.Scorer) Option {
	return func(e *Engine) {
		if s != nil {
			e.scorer = s
		}
	}
}

// WithThreshold sets the default auto-match threshold.
func WithThreshold(t float64) Option {
	return func(e *Engine) {
		if t >= 0 {
			e.threshold = t
		}
	}
}

// WithListLimit caps pushed candidate lists. Zero means unlimited.
func WithListLimit(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.limit = n
		}
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine scores a requester against the pool and decides auto-matches.
type Engine struct {
	pool      *pool.Pool
	committer *Committer
	scorer    scoring.Scorer
	threshold float64
	limit     int
	logger    logger.Logger
}

// NewEngine creates an engine over p that commits through c.
func NewEngine(p *pool.Pool, c *Committer, opts ...Option) *Engine {
	e := &Engine{
		pool:      p,
		committer: c,
		scorer:    scoring.NewOverlapScorer(),
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Get().Named("engine")
	}
	return e
}

// Threshold returns the configured auto-match threshold.
func (e *Engine) Threshold() float64 { return e.threshold }

// Scorer returns the engine's scorer.
func (e *Engine) Scorer() scoring.Scorer { return e.scorer }

// ComputeMatches ranks every other queued participant against participantID,
// best first. Equal scores keep enqueue order. An unqueued requester gets an
// empty list.
func (e *Engine) ComputeMatches(ctx context.Context, participantID string) []model.MatchCandidate {
	self, ok := e.pool.Get(participantID)
	if !ok {
		return []model.MatchCandidate{}
	}

	start := time.Now()
	others := e.pool.Snapshot(participantID)
	out := make([]model.MatchCandidate, 0, len(others))
	for _, other := range others {
		res := e.scorer.Score(self.Profile, other.Profile)
		out = append(out, model.MatchCandidate{
			ParticipantID:      other.ParticipantID(),
			DisplayName:        other.Profile.DisplayName,
			Score:              res.Score,
			SharedSkills:       res.SharedSkills,
			SharedAvailability: res.SharedAvailability,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	metrics.RecordMatchRound(float64(time.Since(start).Microseconds())/1000, len(out))
	e.logger.Debug(ctx, "scoring round",
		logger.String("participant", participantID),
		logger.Int("candidates", len(out)),
	)
	return out
}

// Limit truncates a ranked list to the configured list limit.
func (e *Engine) Limit(ranked []model.MatchCandidate) []model.MatchCandidate {
	if e.limit > 0 && len(ranked) > e.limit {
		return ranked[:e.limit]
	}
	return ranked
}

// AttemptAutoMatch scores participantID and commits the top candidate when
// its score reaches threshold. It returns nil without error when nobody
// qualifies, and ErrPartnerUnavailable when the chosen partner was taken.
func (e *Engine) AttemptAutoMatch(ctx context.Context, participantID string, threshold float64) (*model.Session, error) {
	return e.AutoMatchFrom(ctx, participantID, e.ComputeMatches(ctx, participantID), threshold)
}

// AutoMatchFrom is AttemptAutoMatch over an already computed ranking.
func (e *Engine) AutoMatchFrom(ctx context.Context, participantID string, ranked []model.MatchCandidate, threshold float64) (*model.Session, error) {
	if threshold < 0 {
		return nil, ErrInvalidThreshold
	}
	if len(ranked) == 0 {
		return nil, nil
	}
	top := ranked[0]
	if top.Score < threshold {
		return nil, nil
	}

	s, err := e.committer.Commit(ctx, participantID, top.ParticipantID, TriggerAuto)
	if err != nil {
		e.logger.Debug(ctx, "auto-match lost race",
			logger.String("participant", participantID),
			logger.String("partner", top.ParticipantID),
			logger.Error(err),
		)
		return nil, err
	}
	return &s, nil
}

// Accept commits inviterID and acceptorID regardless of score.
func (e *Engine) Accept(ctx context.Context, inviterID, acceptorID string) (model.Session, error) {
	return e.committer.Commit(ctx, inviterID, acceptorID, TriggerAccept)
}
