// Package storage defines the profile and session stores the matchmaker
// reads from and writes to, plus an in-memory implementation.
package storage

import (
	"context"

	"github.com/okian/pairup/internal/domain/model"
)

// DefaultSessionLimit is the page size used when a caller does not pick one.
const DefaultSessionLimit = 50

// ProfileStore reads and writes participant profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, participantID string) (model.ProfileSnapshot, error)
	UpsertProfile(ctx context.Context, p model.ProfileSnapshot) error
}

// SessionStore persists committed sessions.
type SessionStore interface {
	SaveSession(ctx context.Context, s model.Session) error
	// RecentSessions returns up to limit sessions, newest first.
	RecentSessions(ctx context.Context, limit int) ([]model.Session, error)
	CountSessions(ctx context.Context) (int, error)
}

// Store is a backend that serves both roles.
type Store interface {
	ProfileStore
	SessionStore
	Close() error
}

// ProfileRecord is the serialized form of a snapshot used by SQL backends.
type ProfileRecord struct {
	ID           string         `json:"id"`
	Username     string         `json:"username,omitempty"`
	Skills       []string       `json:"skills"`
	Availability []string       `json:"availability"`
	Teaches      []string       `json:"teaches"`
	Learns       []string       `json:"learns"`
	Cohort       string         `json:"cohort,omitempty"`
	Proficiency  map[string]int `json:"proficiency,omitempty"`
	Experience   map[string]int `json:"experience,omitempty"`
}

// NewProfileRecord flattens a snapshot with sorted sets.
func NewProfileRecord(p model.ProfileSnapshot) ProfileRecord {
	return ProfileRecord{
		ID:           p.ParticipantID,
		Username:     p.DisplayName,
		Skills:       p.Skills.Sorted(),
		Availability: p.Availability.Sorted(),
		Teaches:      p.Teaches.Sorted(),
		Learns:       p.Learns.Sorted(),
		Cohort:       p.Cohort,
		Proficiency:  p.Proficiency.Map(),
		Experience:   p.Experience.Map(),
	}
}

// Snapshot rebuilds the domain snapshot.
func (r ProfileRecord) Snapshot() model.ProfileSnapshot {
	return model.ProfileSnapshot{
		ParticipantID: r.ID,
		DisplayName:   r.Username,
		Skills:        model.NewSkillSet(r.Skills...),
		Availability:  model.NewSkillSet(r.Availability...),
		Teaches:       model.NewSkillSet(r.Teaches...),
		Learns:        model.NewSkillSet(r.Learns...),
		Cohort:        r.Cohort,
		Proficiency:   model.NewLevels(r.Proficiency),
		Experience:    model.NewLevels(r.Experience),
	}
}

// ClampLimit applies the default page size to non-positive limits.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultSessionLimit
	}
	return limit
}
