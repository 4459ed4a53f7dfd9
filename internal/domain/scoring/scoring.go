// Package scoring defines the contract for computing pairwise compatibility.
package scoring

import (
	"fmt"

	"github.com/okian/pairup/internal/domain/model"
)

// Default scoring weights. Skills count twice as much as shared time slots.
const (
	DefaultSkillWeight        = 2.0
	DefaultAvailabilityWeight = 1.0
)

// Scorer kinds accepted by New.
const (
	KindOverlap     = "overlap"
	KindExchange    = "exchange"
	KindProficiency = "proficiency"
)

// Proficiency scoring constants. A pairing earns a tier for the level gap
// plus five points per year of mentor experience, capped at thirty, and the
// sum is rescaled so the best pairing scores 100.
const (
	tierIdeal    = 100 // gap 2..4
	tierNear     = 80  // gap 1 or 5
	tierWide     = 60  // gap 6+
	tierFallback = 40

	experiencePoints   = 5
	maxExperienceBonus = 30
	proficiencyScale   = tierIdeal + maxExperienceBonus
)

// Option applies a configuration option to a scorer.
type Option func(*weights)

// WithSkillWeight sets the per-skill weight.
func WithSkillWeight(w float64) Option {
	return func(s *weights) {
		if w >= 0 {
			s.skill = w
		}
	}
}

// WithAvailabilityWeight sets the per-time-slot weight.
func WithAvailabilityWeight(w float64) Option {
	return func(s *weights) {
		if w >= 0 {
			s.availability = w
		}
	}
}

// Result is the score between two snapshots with its supporting evidence.
type Result struct {
	Score              float64
	SharedSkills       model.SkillSet
	SharedAvailability model.SkillSet
}

// Scorer computes compatibility between two snapshots.
// Implementations must be pure and symmetric: Score(a, b) == Score(b, a).
type Scorer interface {
	Score(a, b model.ProfileSnapshot) Result
}

type weights struct {
	skill        float64
	availability float64
}

func newWeights(opts ...Option) weights {
	w := weights{skill: DefaultSkillWeight, availability: DefaultAvailabilityWeight}
	for _, opt := range opts {
		opt(&w)
	}
	return w
}

// OverlapScorer scores by shared skills and shared availability.
type OverlapScorer struct {
	w weights
}

// NewOverlapScorer creates an overlap scorer with the default 2:1 weighting.
func NewOverlapScorer(opts ...Option) *OverlapScorer {
	return &OverlapScorer{w: newWeights(opts...)}
}

// Score implements Scorer.
func (s *OverlapScorer) Score(a, b model.ProfileSnapshot) Result {
	skills := a.Skills.Intersect(b.Skills)
	avail := a.Availability.Intersect(b.Availability)
	return Result{
		Score:              s.w.skill*float64(skills.Len()) + s.w.availability*float64(avail.Len()),
		SharedSkills:       skills,
		SharedAvailability: avail,
	}
}

// ExchangeScorer scores teach/learn complement: what a can teach b and what
// b can teach a, plus shared availability.
type ExchangeScorer struct {
	w weights
}

// NewExchangeScorer creates a skill-exchange scorer.
func NewExchangeScorer(opts ...Option) *ExchangeScorer {
	return &ExchangeScorer{w: newWeights(opts...)}
}

// Score implements Scorer.
func (s *ExchangeScorer) Score(a, b model.ProfileSnapshot) Result {
	aToB := a.Teaches.Intersect(b.Learns)
	bToA := b.Teaches.Intersect(a.Learns)
	avail := a.Availability.Intersect(b.Availability)
	return Result{
		Score:              s.w.skill*float64(aToB.Len()+bToA.Len()) + s.w.availability*float64(avail.Len()),
		SharedSkills:       aToB.Union(bToA),
		SharedAvailability: avail,
	}
}

// ProficiencyScorer pairs a mentor with a learner on a skill the mentor
// teaches and the learner wants to learn, but only when the mentor is rated
// strictly higher on it. Both directions are considered and the best single
// pairing is the score, so the result stays symmetric.
type ProficiencyScorer struct{}

// NewProficiencyScorer creates a proficiency-gap scorer.
func NewProficiencyScorer() *ProficiencyScorer {
	return &ProficiencyScorer{}
}

// Score implements Scorer.
func (s *ProficiencyScorer) Score(a, b model.ProfileSnapshot) Result {
	shared := make(model.SkillSet)
	best := 0.0
	pair := func(mentor, learner model.ProfileSnapshot) {
		for skill := range mentor.Teaches.Intersect(learner.Learns) {
			gap := mentor.Proficiency.Of(skill) - learner.Proficiency.Of(skill)
			if gap <= 0 {
				continue
			}
			shared[skill] = struct{}{}
			if c := Compatibility(gap, mentor.Experience.Of(skill)); c > best {
				best = c
			}
		}
	}
	pair(a, b)
	pair(b, a)

	return Result{
		Score:              best,
		SharedSkills:       shared,
		SharedAvailability: a.Availability.Intersect(b.Availability),
	}
}

// Compatibility scores one mentor/learner pairing on a 0..100 scale from the
// proficiency gap and the mentor's years of experience.
func Compatibility(gap, years int) float64 {
	var tier int
	switch {
	case gap >= 2 && gap <= 4:
		tier = tierIdeal
	case gap == 1 || gap == 5:
		tier = tierNear
	case gap >= 6:
		tier = tierWide
	default:
		tier = tierFallback
	}
	bonus := min(experiencePoints*max(years, 0), maxExperienceBonus)
	return float64(tier+bonus) / proficiencyScale * 100
}

// Known reports whether kind names a registered scorer.
func Known(kind string) bool {
	switch kind {
	case "", KindOverlap, KindExchange, KindProficiency:
		return true
	}
	return false
}

// New returns the scorer registered under kind.
func New(kind string, opts ...Option) (Scorer, error) {
	switch kind {
	case "", KindOverlap:
		return NewOverlapScorer(opts...), nil
	case KindExchange:
		return NewExchangeScorer(opts...), nil
	case KindProficiency:
		return NewProficiencyScorer(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScorer, kind)
	}
}
