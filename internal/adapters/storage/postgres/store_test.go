package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/okian/pairup/internal/adapters/storage"
	"github.com/okian/pairup/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ storage.Store = (*Store)(nil)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := New(db)
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

func TestGetProfile_Found(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows(profileColumns).
		AddRow("u1", "Alice", "{cooking,go}", "{weekends}", "{guitar}", "{}", "elder", []byte(`{"guitar":7}`), []byte(`{"guitar":3}`))
	mock.ExpectQuery(`SELECT id, username, skills, availability, teaches, learns, cohort, proficiency, experience FROM profiles WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(rows)

	p, err := s.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.DisplayName)
	assert.Equal(t, []string{"cooking", "go"}, p.Skills.Sorted())
	assert.True(t, p.Availability.Has("weekends"))
	assert.True(t, p.Teaches.Has("guitar"))
	assert.Equal(t, 0, p.Learns.Len())
	assert.Equal(t, "elder", p.Cohort)
	assert.Equal(t, 7, p.Proficiency.Of("guitar"))
	assert.Equal(t, 3, p.Experience.Of("guitar"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProfile_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT .+ FROM profiles").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetProfile(context.Background(), "ghost")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProfile_DBError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT .+ FROM profiles").
		WillReturnError(errors.New("connection refused"))

	_, err := s.GetProfile(context.Background(), "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "querying profile")
	assert.False(t, errors.Is(err, storage.ErrNotFound))
}

func TestUpsertProfile(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO profiles \(id,username,skills,availability,teaches,learns,cohort,proficiency,experience,updated_at\) VALUES .+ ON CONFLICT \(id\) DO UPDATE SET`).
		WithArgs("u1", "Alice", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "",
			[]byte(`{"go":4}`), []byte(`{}`), fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpsertProfile(context.Background(), model.ProfileSnapshot{
		ParticipantID: "u1",
		DisplayName:   "Alice",
		Skills:        model.NewSkillSet("go"),
		Proficiency:   model.NewLevels(map[string]int{"go": 4}),
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertProfile_Invalid(t *testing.T) {
	s, mock := newMockStore(t)

	err := s.UpsertProfile(context.Background(), model.ProfileSnapshot{})
	assert.True(t, errors.Is(err, storage.ErrPersist))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSession(t *testing.T) {
	s, mock := newMockStore(t)
	sess := model.Session{
		SessionID:    "sess_1",
		ParticipantA: model.ProfileSnapshot{ParticipantID: "a", Skills: model.NewSkillSet("cooking")},
		ParticipantB: model.ProfileSnapshot{ParticipantID: "b"},
		CommittedAt:  fixedNow,
	}
	a, err := json.Marshal(storage.NewProfileRecord(sess.ParticipantA))
	require.NoError(t, err)
	b, err := json.Marshal(storage.NewProfileRecord(sess.ParticipantB))
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("sess_1", "a", "b", a, b, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, s.SaveSession(context.Background(), sess))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSession_DBError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO sessions").
		WillReturnError(errors.New("duplicate key value violates unique constraint"))

	err := s.SaveSession(context.Background(), model.Session{SessionID: "sess_1", CommittedAt: fixedNow})
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrPersist))
	assert.Contains(t, err.Error(), "inserting session")
}

func TestRecentSessions(t *testing.T) {
	s, mock := newMockStore(t)

	pa, _ := json.Marshal(storage.ProfileRecord{ID: "a", Skills: []string{"go"}})
	pb, _ := json.Marshal(storage.ProfileRecord{ID: "b"})
	rows := sqlmock.NewRows(sessionColumns).
		AddRow("sess_2", pa, pb, fixedNow.Add(time.Minute)).
		AddRow("sess_1", pb, pa, fixedNow)
	mock.ExpectQuery(`SELECT id, profile_a, profile_b, committed_at FROM sessions ORDER BY committed_at DESC LIMIT 50`).
		WillReturnRows(rows)

	got, err := s.RecentSessions(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "sess_2", got[0].SessionID)
	assert.Equal(t, "a", got[0].ParticipantA.ParticipantID)
	assert.True(t, got[0].ParticipantA.Skills.Has("go"))
	assert.Equal(t, "a", got[1].ParticipantB.ParticipantID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentSessions_BadPayload(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows(sessionColumns).AddRow("sess_1", []byte("not json"), []byte("{}"), fixedNow)
	mock.ExpectQuery("SELECT .+ FROM sessions").WillReturnRows(rows)

	_, err := s.RecentSessions(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding profile")
}

func TestCountSessions(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sessions`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := s.CountSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClose(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectClose()
	assert.NoError(t, s.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
