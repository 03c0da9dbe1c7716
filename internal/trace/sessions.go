package trace

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// CreateSession starts a new running session for source.
func (s *Store) CreateSession(ctx context.Context, source string) (*Session, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	sess := &Session{
		ID:        generateID(),
		Source:    source,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	s.logger.Debug("creating session", slog.String("id", sess.ID), slog.String("source", source))

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, source, status, started_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.Source, string(sess.Status), formatTime(sess.StartedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// CompleteSession marks a session finished with status.
func (s *Store) CompleteSession(ctx context.Context, id string, status Status, errMsg string) error {
	if s.db == nil {
		return ErrNotOpen
	}

	var errVal sql.NullString
	if errMsg != "" {
		errVal = sql.NullString{String: errMsg, Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(status), formatTime(time.Now()), errVal, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

const sessionColumns = `s.id, s.source, s.status, s.started_at, s.completed_at, s.error,
	(SELECT COUNT(*) FROM events e WHERE e.session_id = s.id)`

// GetSession retrieves a session by ID. A unique ID prefix is accepted.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions s WHERE s.id = ? OR s.id LIKE ? ORDER BY s.id = ? DESC LIMIT 2`,
		id, id+"%", id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions, err := scanSessions(rows)
	if err != nil {
		return nil, err
	}
	switch {
	case len(sessions) == 0:
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	case len(sessions) > 1 && sessions[0].ID != id:
		return nil, fmt.Errorf("session prefix %q is ambiguous", id)
	}
	return sessions[0], nil
}

// ListSessions returns the most recent sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions s ORDER BY s.started_at DESC, s.rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanSessions(rows)
}

func scanSessions(rows *sql.Rows) ([]*Session, error) {
	var sessions []*Session
	for rows.Next() {
		var (
			sess        Session
			status      string
			startedAt   string
			completedAt sql.NullString
			errMsg      sql.NullString
		)
		if err := rows.Scan(&sess.ID, &sess.Source, &status, &startedAt, &completedAt, &errMsg, &sess.Events); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		sess.Status = Status(status)
		t, err := parseTime(startedAt)
		if err != nil {
			return nil, err
		}
		sess.StartedAt = t
		if completedAt.Valid {
			t, err := parseTime(completedAt.String)
			if err != nil {
				return nil, err
			}
			sess.CompletedAt = &t
		}
		if errMsg.Valid {
			sess.Error = errMsg.String
		}
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	return sessions, nil
}
