// Package model contains domain models passed between layers.
package model

import (
	"sort"
	"strings"
	"time"
)

// SkillSet is an unordered set of identifiers (skills or time slots).
// The zero value is an empty set.
type SkillSet map[string]struct{}

// NewSkillSet builds a set from items, trimming blanks and collapsing duplicates.
func NewSkillSet(items ...string) SkillSet {
	s := make(SkillSet, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		s[it] = struct{}{}
	}
	return s
}

// Has reports whether item is in the set.
func (s SkillSet) Has(item string) bool {
	_, ok := s[item]
	return ok
}

// Len returns the number of items.
func (s SkillSet) Len() int { return len(s) }

// Intersect returns the items present in both sets.
func (s SkillSet) Intersect(o SkillSet) SkillSet {
	small, large := s, o
	if len(large) < len(small) {
		small, large = large, small
	}
	out := make(SkillSet)
	for it := range small {
		if large.Has(it) {
			out[it] = struct{}{}
		}
	}
	return out
}

// Union returns the items present in either set.
func (s SkillSet) Union(o SkillSet) SkillSet {
	out := make(SkillSet, len(s)+len(o))
	for it := range s {
		out[it] = struct{}{}
	}
	for it := range o {
		out[it] = struct{}{}
	}
	return out
}

// Sorted returns the items in ascending order. Used for deterministic output.
func (s SkillSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for it := range s {
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}

// Levels maps a skill to a non-negative integer rating.
type Levels map[string]int

// NewLevels copies m, trimming keys and dropping blank keys and
// non-positive values.
func NewLevels(m map[string]int) Levels {
	out := make(Levels, len(m))
	for k, v := range m {
		k = strings.TrimSpace(k)
		if k == "" || v <= 0 {
			continue
		}
		out[k] = v
	}
	return out
}

// Of returns the level for skill, zero when unrated.
func (l Levels) Of(skill string) int { return l[skill] }

// Map returns a plain copy, nil when empty.
func (l Levels) Map() map[string]int {
	if len(l) == 0 {
		return nil
	}
	out := make(map[string]int, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

func (l Levels) normalize() Levels {
	if l == nil {
		return Levels{}
	}
	return l
}

// ProfileSnapshot is the matchable view of a participant captured for a
// scoring round. Snapshots are replaced, never mutated, once they enter the pool.
type ProfileSnapshot struct {
	ParticipantID string
	DisplayName   string
	Skills        SkillSet
	Availability  SkillSet
	// Teaches and Learns carry teach/learn intent for the exchange and
	// proficiency scorers.
	Teaches SkillSet
	Learns  SkillSet
	// Proficiency is the self-rated level per skill; Experience is years
	// of practice per skill. Missing skills read as zero.
	Proficiency Levels
	Experience  Levels
	// Cohort optionally labels the participant's side for cohort pairing.
	Cohort string
}

// Valid reports whether the snapshot carries a participant identifier.
func (p ProfileSnapshot) Valid() bool {
	return strings.TrimSpace(p.ParticipantID) != ""
}

// Normalize returns a copy with nil sets replaced by empty ones.
func (p ProfileSnapshot) Normalize() ProfileSnapshot {
	p.ParticipantID = strings.TrimSpace(p.ParticipantID)
	if p.Skills == nil {
		p.Skills = SkillSet{}
	}
	if p.Availability == nil {
		p.Availability = SkillSet{}
	}
	if p.Teaches == nil {
		p.Teaches = SkillSet{}
	}
	if p.Learns == nil {
		p.Learns = SkillSet{}
	}
	p.Proficiency = p.Proficiency.normalize()
	p.Experience = p.Experience.normalize()
	return p
}

// QueueEntry is a pooled participant: its snapshot plus how to reach it.
type QueueEntry struct {
	Profile ProfileSnapshot
	// ConnectionHandle is opaque to everything except the notifier.
	ConnectionHandle string
	EnqueuedAt       time.Time
	// Seq orders entries by first enqueue; a re-join keeps the original value.
	Seq uint64
}

// ParticipantID is a shortcut for e.Profile.ParticipantID.
func (e QueueEntry) ParticipantID() string { return e.Profile.ParticipantID }

// MatchCandidate is one ranked entry in a participant's match list.
type MatchCandidate struct {
	ParticipantID      string
	DisplayName        string
	Score              float64
	SharedSkills       SkillSet
	SharedAvailability SkillSet
}

// Session is the immutable record of a committed pairing.
type Session struct {
	SessionID    string
	ParticipantA ProfileSnapshot
	ParticipantB ProfileSnapshot
	CommittedAt  time.Time
}

// Involves reports whether participantID is one side of the session.
func (s Session) Involves(participantID string) bool {
	return s.ParticipantA.ParticipantID == participantID || s.ParticipantB.ParticipantID == participantID
}
