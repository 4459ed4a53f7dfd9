// Package postgres stores profiles and sessions in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/okian/pairup/internal/adapters/storage"
	"github.com/okian/pairup/internal/adapters/storage/postgres/migrate"
	"github.com/okian/pairup/internal/domain/model"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var profileColumns = []string{"id", "username", "skills", "availability", "teaches", "learns", "cohort", "proficiency", "experience"}

var sessionColumns = []string{"id", "profile_a", "profile_b", "committed_at"}

// Config configures the PostgreSQL store.
type Config struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	// Migrate applies the embedded schema on Open.
	Migrate bool
}

// Store implements storage.Store using PostgreSQL.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Open connects, pings and optionally migrates.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if cfg.Migrate {
		if err := migrate.Run(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return New(db), nil
}

// Close closes the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetProfile returns the stored profile or storage.ErrNotFound.
func (s *Store) GetProfile(ctx context.Context, participantID string) (model.ProfileSnapshot, error) {
	query, args, err := psq.Select(profileColumns...).
		From("profiles").
		Where(sq.Eq{"id": participantID}).
		ToSql()
	if err != nil {
		return model.ProfileSnapshot{}, fmt.Errorf("building profile query: %w", err)
	}

	var (
		r                       storage.ProfileRecord
		proficiency, experience []byte
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&r.ID, &r.Username,
		pq.Array(&r.Skills), pq.Array(&r.Availability), pq.Array(&r.Teaches), pq.Array(&r.Learns),
		&r.Cohort, &proficiency, &experience,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ProfileSnapshot{}, fmt.Errorf("profile %q: %w", participantID, storage.ErrNotFound)
	}
	if err != nil {
		return model.ProfileSnapshot{}, fmt.Errorf("querying profile: %w", err)
	}
	if err := decodeLevels(proficiency, &r.Proficiency); err != nil {
		return model.ProfileSnapshot{}, fmt.Errorf("decoding proficiency: %w", err)
	}
	if err := decodeLevels(experience, &r.Experience); err != nil {
		return model.ProfileSnapshot{}, fmt.Errorf("decoding experience: %w", err)
	}
	return r.Snapshot(), nil
}

// UpsertProfile inserts or replaces a profile.
func (s *Store) UpsertProfile(ctx context.Context, p model.ProfileSnapshot) error {
	if !p.Valid() {
		return fmt.Errorf("%w: empty participant id", storage.ErrPersist)
	}
	p = p.Normalize()
	r := storage.NewProfileRecord(p)
	proficiency, err := json.Marshal(p.Proficiency)
	if err != nil {
		return fmt.Errorf("encoding proficiency: %w", err)
	}
	experience, err := json.Marshal(p.Experience)
	if err != nil {
		return fmt.Errorf("encoding experience: %w", err)
	}

	query, args, err := psq.Insert("profiles").
		Columns(append(profileColumns, "updated_at")...).
		Values(
			r.ID, r.Username,
			pq.Array(r.Skills), pq.Array(r.Availability), pq.Array(r.Teaches), pq.Array(r.Learns),
			r.Cohort, proficiency, experience, s.now().UTC(),
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			skills = EXCLUDED.skills,
			availability = EXCLUDED.availability,
			teaches = EXCLUDED.teaches,
			learns = EXCLUDED.learns,
			cohort = EXCLUDED.cohort,
			proficiency = EXCLUDED.proficiency,
			experience = EXCLUDED.experience,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("building profile upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: upserting profile: %w", storage.ErrPersist, err)
	}
	return nil
}

// SaveSession inserts a committed session.
func (s *Store) SaveSession(ctx context.Context, sess model.Session) error {
	a, err := json.Marshal(storage.NewProfileRecord(sess.ParticipantA))
	if err != nil {
		return fmt.Errorf("encoding profile a: %w", err)
	}
	b, err := json.Marshal(storage.NewProfileRecord(sess.ParticipantB))
	if err != nil {
		return fmt.Errorf("encoding profile b: %w", err)
	}

	query, args, err := psq.Insert("sessions").
		Columns("id", "participant_a", "participant_b", "profile_a", "profile_b", "committed_at").
		Values(
			sess.SessionID,
			sess.ParticipantA.ParticipantID,
			sess.ParticipantB.ParticipantID,
			a, b,
			sess.CommittedAt.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("building session insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: inserting session: %w", storage.ErrPersist, err)
	}
	return nil
}

// RecentSessions returns up to limit sessions, newest first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]model.Session, error) {
	query, args, err := psq.Select(sessionColumns...).
		From("sessions").
		OrderBy("committed_at DESC").
		Limit(uint64(storage.ClampLimit(limit))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building sessions query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Session
	for rows.Next() {
		var (
			sess model.Session
			a, b []byte
		)
		if err := rows.Scan(&sess.SessionID, &a, &b, &sess.CommittedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		if sess.ParticipantA, err = decodeProfile(a); err != nil {
			return nil, err
		}
		if sess.ParticipantB, err = decodeProfile(b); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return out, nil
}

// CountSessions returns the number of stored sessions.
func (s *Store) CountSessions(ctx context.Context) (int, error) {
	query, args, err := psq.Select("COUNT(*)").From("sessions").ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count query: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return n, nil
}

func decodeProfile(b []byte) (model.ProfileSnapshot, error) {
	var r storage.ProfileRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return model.ProfileSnapshot{}, fmt.Errorf("decoding profile: %w", err)
	}
	return r.Snapshot(), nil
}

func decodeLevels(b []byte, dst *map[string]int) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}
