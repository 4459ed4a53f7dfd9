package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/pairup/internal/domain/model"
)

// MemoryStore keeps profiles and sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]model.ProfileSnapshot
	sessions []model.Session
	ids      map[string]struct{}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]model.ProfileSnapshot),
		ids:      make(map[string]struct{}),
	}
}

// GetProfile returns the stored profile or ErrNotFound.
func (m *MemoryStore) GetProfile(_ context.Context, participantID string) (model.ProfileSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[participantID]
	if !ok {
		return model.ProfileSnapshot{}, fmt.Errorf("profile %q: %w", participantID, ErrNotFound)
	}
	return p, nil
}

// UpsertProfile inserts or replaces a profile.
func (m *MemoryStore) UpsertProfile(_ context.Context, p model.ProfileSnapshot) error {
	if !p.Valid() {
		return fmt.Errorf("%w: empty participant id", ErrPersist)
	}
	p = p.Normalize()
	m.mu.Lock()
	m.profiles[p.ParticipantID] = p
	m.mu.Unlock()
	return nil
}

// SaveSession appends a session. Saving the same session id twice is an error.
func (m *MemoryStore) SaveSession(_ context.Context, s model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.ids[s.SessionID]; dup {
		return fmt.Errorf("%w: duplicate session %s", ErrPersist, s.SessionID)
	}
	m.ids[s.SessionID] = struct{}{}
	m.sessions = append(m.sessions, s)
	return nil
}

// RecentSessions returns up to limit sessions, newest first.
func (m *MemoryStore) RecentSessions(_ context.Context, limit int) ([]model.Session, error) {
	limit = ClampLimit(limit)
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Session, 0, min(limit, len(m.sessions)))
	for i := len(m.sessions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.sessions[i])
	}
	return out, nil
}

// CountSessions returns the number of stored sessions.
func (m *MemoryStore) CountSessions(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions), nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
