package notify

import (
	"time"

	"github.com/okian/pairup/internal/domain/model"
)

// Kind names an outbound message.
type Kind string

// Outbound message kinds.
const (
	KindMatchUpdate  Kind = "matchUpdate"
	KindMatched      Kind = "matched"
	KindNotification Kind = "notification"
)

// Envelope is the JSON frame exchanged with clients in both directions.
type Envelope[T any] struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Payload   T      `json:"payload"`
}

// ProfileView is the wire form of a profile snapshot.
type ProfileView struct {
	ID           string   `json:"id"`
	Username     string   `json:"username,omitempty"`
	Skills       []string `json:"skills"`
	Availability []string `json:"availability"`
	Teaches      []string `json:"teaches,omitempty"`
	Learns       []string `json:"learns,omitempty"`
	Cohort       string   `json:"cohort,omitempty"`
	// Proficiency and Experience map a skill to a level and to years.
	Proficiency map[string]int `json:"proficiency,omitempty"`
	Experience  map[string]int `json:"experience,omitempty"`
}

// Snapshot converts the view into a normalized domain snapshot.
func (v ProfileView) Snapshot() model.ProfileSnapshot {
	return model.ProfileSnapshot{
		ParticipantID: v.ID,
		DisplayName:   v.Username,
		Skills:        model.NewSkillSet(v.Skills...),
		Availability:  model.NewSkillSet(v.Availability...),
		Teaches:       model.NewSkillSet(v.Teaches...),
		Learns:        model.NewSkillSet(v.Learns...),
		Cohort:        v.Cohort,
		Proficiency:   model.NewLevels(v.Proficiency),
		Experience:    model.NewLevels(v.Experience),
	}.Normalize()
}

// NewProfileView builds the wire form of p with sorted sets.
func NewProfileView(p model.ProfileSnapshot) ProfileView {
	return ProfileView{
		ID:           p.ParticipantID,
		Username:     p.DisplayName,
		Skills:       p.Skills.Sorted(),
		Availability: p.Availability.Sorted(),
		Teaches:      nonEmpty(p.Teaches.Sorted()),
		Learns:       nonEmpty(p.Learns.Sorted()),
		Cohort:       p.Cohort,
		Proficiency:  p.Proficiency.Map(),
		Experience:   p.Experience.Map(),
	}
}

// CandidateView is one entry of a matchUpdate payload.
type CandidateView struct {
	UserID             string   `json:"userId"`
	Username           string   `json:"username,omitempty"`
	Score              float64  `json:"score"`
	SharedSkills       []string `json:"sharedSkills"`
	SharedAvailability []string `json:"sharedAvailability"`
}

// NewCandidateViews converts a ranked list keeping its order.
func NewCandidateViews(cands []model.MatchCandidate) []CandidateView {
	out := make([]CandidateView, len(cands))
	for i, c := range cands {
		out[i] = CandidateView{
			UserID:             c.ParticipantID,
			Username:           c.DisplayName,
			Score:              c.Score,
			SharedSkills:       c.SharedSkills.Sorted(),
			SharedAvailability: c.SharedAvailability.Sorted(),
		}
	}
	return out
}

// SessionView is the payload of a matched message.
type SessionView struct {
	SessionID   string      `json:"sessionId"`
	A           ProfileView `json:"a"`
	B           ProfileView `json:"b"`
	CommittedAt time.Time   `json:"committedAt"`
}

// NewSessionView converts a committed session.
func NewSessionView(s model.Session) SessionView {
	return SessionView{
		SessionID:   s.SessionID,
		A:           NewProfileView(s.ParticipantA),
		B:           NewProfileView(s.ParticipantB),
		CommittedAt: s.CommittedAt,
	}
}

func nonEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}
