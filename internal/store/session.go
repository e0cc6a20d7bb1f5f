package store

import (
	"database/sql"
	"errors"
	"time"
)

// Session records one run of the process.
type Session struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
	Confirmed int        `json:"confirmed"`
}

// SessionRepository records process runs.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Start inserts a new session.
func (r *SessionRepository) Start(id string, at time.Time) error {
	_, err := r.db.Exec(
		"INSERT INTO sessions (id, started_at) VALUES (?, ?)",
		id, at.UTC(),
	)
	return err
}

// AddConfirmed increments the confirmed-word counter of a session.
func (r *SessionRepository) AddConfirmed(id string) error {
	res, err := r.db.Exec("UPDATE sessions SET confirmed = confirmed + 1 WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// End marks a session finished.
func (r *SessionRepository) End(id string, at time.Time) error {
	res, err := r.db.Exec("UPDATE sessions SET ended_at = ? WHERE id = ?", at.UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Get retrieves a session by ID.
func (r *SessionRepository) Get(id string) (*Session, error) {
	row := r.db.QueryRow(
		"SELECT id, started_at, ended_at, confirmed FROM sessions WHERE id = ?",
		id,
	)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// Recent returns up to limit sessions, most recently started first.
func (r *SessionRepository) Recent(limit int) ([]*Session, error) {
	rows, err := r.db.Query(
		"SELECT id, started_at, ended_at, confirmed FROM sessions ORDER BY started_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		s     Session
		ended sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.StartedAt, &ended, &s.Confirmed); err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		s.EndedAt = &t
	}
	return &s, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
