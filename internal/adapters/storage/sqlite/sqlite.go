// Package sqlite stores profiles and sessions in an embedded SQLite file
// through gorm.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/okian/pairup/internal/adapters/storage"
	"github.com/okian/pairup/internal/domain/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultPath is used when no file is configured.
const DefaultPath = "pairup.sqlite3"

// Profile is the profiles table.
type Profile struct {
	ID        string `gorm:"primaryKey;type:varchar(64)"`
	Username  string
	Cohort    string `gorm:"index:idx_profile_cohort"`
	Data      string // JSON encoded storage.ProfileRecord
	UpdatedAt time.Time
}

// Session is the sessions table.
type Session struct {
	ID           string    `gorm:"primaryKey;type:varchar(64)"`
	ParticipantA string    `gorm:"index:idx_session_a"`
	ParticipantB string    `gorm:"index:idx_session_b"`
	ProfileA     string    // JSON encoded storage.ProfileRecord
	ProfileB     string    // JSON encoded storage.ProfileRecord
	CommittedAt  time.Time `gorm:"index:idx_session_committed"`
}

// Store implements storage.Store on SQLite.
type Store struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// Open opens (creating if needed) the database at path and migrates the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY under load.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Profile{}, &Session{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &Store{db: db, sqlDB: sqlDB}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// GetProfile returns the stored profile or storage.ErrNotFound.
func (s *Store) GetProfile(ctx context.Context, participantID string) (model.ProfileSnapshot, error) {
	var row Profile
	err := s.db.WithContext(ctx).Where("id = ?", participantID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ProfileSnapshot{}, fmt.Errorf("profile %q: %w", participantID, storage.ErrNotFound)
	}
	if err != nil {
		return model.ProfileSnapshot{}, fmt.Errorf("querying profile: %w", err)
	}
	return decodeProfile(row.Data)
}

// UpsertProfile inserts or replaces a profile.
func (s *Store) UpsertProfile(ctx context.Context, p model.ProfileSnapshot) error {
	if !p.Valid() {
		return fmt.Errorf("%w: empty participant id", storage.ErrPersist)
	}
	p = p.Normalize()
	data, err := json.Marshal(storage.NewProfileRecord(p))
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}

	row := Profile{ID: p.ParticipantID, Username: p.DisplayName, Cohort: p.Cohort, Data: string(data)}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "cohort", "data", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
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

	row := Session{
		ID:           sess.SessionID,
		ParticipantA: sess.ParticipantA.ParticipantID,
		ParticipantB: sess.ParticipantB.ParticipantID,
		ProfileA:     string(a),
		ProfileB:     string(b),
		CommittedAt:  sess.CommittedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("%w: inserting session: %w", storage.ErrPersist, err)
	}
	return nil
}

// RecentSessions returns up to limit sessions, newest first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]model.Session, error) {
	var rows []Session
	err := s.db.WithContext(ctx).
		Order("committed_at DESC").
		Limit(storage.ClampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}

	out := make([]model.Session, 0, len(rows))
	for _, r := range rows {
		a, err := decodeProfile(r.ProfileA)
		if err != nil {
			return nil, err
		}
		b, err := decodeProfile(r.ProfileB)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Session{
			SessionID:    r.ID,
			ParticipantA: a,
			ParticipantB: b,
			CommittedAt:  r.CommittedAt,
		})
	}
	return out, nil
}

// CountSessions returns the number of stored sessions.
func (s *Store) CountSessions(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Session{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return int(n), nil
}

func decodeProfile(data string) (model.ProfileSnapshot, error) {
	var r storage.ProfileRecord
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return model.ProfileSnapshot{}, fmt.Errorf("decoding profile: %w", err)
	}
	return r.Snapshot(), nil
}
