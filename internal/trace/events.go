package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/leapstack-labs/ownsim/pkg/ownership"
)

// EventRecord is a stored tracker event. Values are kept in their debug
// rendering.
type EventRecord struct {
	Seq      int
	Op       string
	Name     string
	Depth    int
	Value    string
	Code     string
	Message  string
	Released []string
}

// Failed reports whether the operation returned an error.
func (r EventRecord) Failed() bool {
	return r.Code != ""
}

// NewEventRecord converts a tracker event. Seq is assigned on insert.
func NewEventRecord(ev ownership.Event) EventRecord {
	rec := EventRecord{
		Op:       string(ev.Op),
		Name:     ev.Name,
		Depth:    ev.Depth,
		Released: make([]string, 0, len(ev.Released)),
	}
	if ev.Value.Type != "" {
		rec.Value = ev.Value.String()
	}
	if ev.Err != nil {
		rec.Code = ownership.Code(ev.Err)
		rec.Message = ev.Err.Error()
	}
	for _, r := range ev.Released {
		rec.Released = append(rec.Released, r.Name)
	}
	return rec
}

// RecordEvents appends records to a session in one transaction. Sequence
// numbers continue from the last stored event of the session.
func (s *Store) RecordEvents(ctx context.Context, sessionID string, records []EventRecord) (err error) {
	if s.db == nil {
		return ErrNotOpen
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var last int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM events WHERE session_id = ?`, sessionID,
	).Scan(&last); err != nil {
		return fmt.Errorf("failed to read last sequence: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (session_id, seq, op, name, depth, value, code, message, released)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, rec := range records {
		released, err := json.Marshal(rec.Released)
		if err != nil {
			return fmt.Errorf("failed to encode released names: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			sessionID, last+i+1, rec.Op, rec.Name, rec.Depth, rec.Value, rec.Code, rec.Message, string(released),
		); err != nil {
			return fmt.Errorf("failed to insert event %d: %w", last+i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}
	s.logger.Debug("recorded events", "session", sessionID, "count", len(records))
	return nil
}

// GetEvents returns the events of a session in sequence order.
func (s *Store) GetEvents(ctx context.Context, sessionID string) ([]EventRecord, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, op, name, depth, value, code, message, released
		 FROM events WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]EventRecord, error) {
	var records []EventRecord
	for rows.Next() {
		var (
			rec      EventRecord
			released string
		)
		if err := rows.Scan(&rec.Seq, &rec.Op, &rec.Name, &rec.Depth, &rec.Value, &rec.Code, &rec.Message, &released); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(released), &rec.Released); err != nil {
			return nil, fmt.Errorf("event %d: invalid released names: %w", rec.Seq, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return records, nil
}
