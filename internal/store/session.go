package store

import (
	"database/sql"
	"errors"
	"time"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// SessionRecord is the persisted summary of one client session.
type SessionRecord struct {
	ID         string     `json:"id"`
	RemoteAddr string     `json:"remote_addr"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Frames     int64      `json:"frames"`
	Detections int64      `json:"detections"`
	Pinches    int64      `json:"pinches"`
	Smoothing  bool       `json:"smoothing"`
	Reason     string     `json:"reason"`
	Error      string     `json:"error,omitempty"`
}

// SessionRepository provides access to session history.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a session at its start.
func (r *SessionRepository) Create(rec *SessionRecord) error {
	_, err := r.db.Exec(
		`INSERT INTO sessions (id, remote_addr, started_at, smoothing)
		 VALUES (?, ?, ?, ?)`,
		rec.ID, rec.RemoteAddr, rec.StartedAt.UnixMilli(), boolToInt(rec.Smoothing),
	)
	return err
}

// Finish stores the final counters and termination reason of a session.
func (r *SessionRepository) Finish(rec *SessionRecord) error {
	endedAt := time.Now()
	if rec.EndedAt != nil {
		endedAt = *rec.EndedAt
	}

	result, err := r.db.Exec(
		`UPDATE sessions
		 SET ended_at = ?, frames = ?, detections = ?, pinches = ?, smoothing = ?, reason = ?, error = ?
		 WHERE id = ?`,
		endedAt.UnixMilli(), rec.Frames, rec.Detections, rec.Pinches, boolToInt(rec.Smoothing),
		rec.Reason, rec.Error, rec.ID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	rec.EndedAt = &endedAt
	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*SessionRecord, error) {
	row := r.db.QueryRow(
		`SELECT id, remote_addr, started_at, ended_at, frames, detections, pinches, smoothing, reason, error
		 FROM sessions WHERE id = ?`,
		id,
	)

	rec, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// List returns finished sessions, most recent first. A limit of zero or less
// uses DefaultListLimit.
func (r *SessionRepository) List(limit int) ([]*SessionRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.db.Query(
		`SELECT id, remote_addr, started_at, ended_at, frames, detections, pinches, smoothing, reason, error
		 FROM sessions WHERE ended_at IS NOT NULL
		 ORDER BY started_at DESC, id
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Delete removes a session record.
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(s scanner) (*SessionRecord, error) {
	rec := &SessionRecord{}
	var startedAt int64
	var endedAt sql.NullInt64
	var smoothing int

	err := s.Scan(&rec.ID, &rec.RemoteAddr, &startedAt, &endedAt,
		&rec.Frames, &rec.Detections, &rec.Pinches, &smoothing, &rec.Reason, &rec.Error)
	if err != nil {
		return nil, err
	}

	rec.StartedAt = time.UnixMilli(startedAt)
	if endedAt.Valid {
		t := time.UnixMilli(endedAt.Int64)
		rec.EndedAt = &t
	}
	rec.Smoothing = smoothing != 0
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
