package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pacerhq/pacer/internal/core"
	"github.com/pacerhq/pacer/internal/core/pace"
)

// JournalEntry is a recorded firing.
type JournalEntry struct {
	ID     int64       `json:"id"`
	Firing core.Firing `json:"firing"`
}

// JournalQuery selects journal entries. Limit applies to listing only.
type JournalQuery struct {
	All       bool
	Gate      string
	KeyPrefix string
	Limit     int
}

func (q JournalQuery) Validate() error {
	if q.Limit < 0 {
		return errors.New("limit must not be negative")
	}
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Gate) != "" {
		return nil
	}
	if strings.TrimSpace(q.KeyPrefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --gate, or --prefix")
}

func (q JournalQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}

	var (
		conds []string
		args  []any
	)
	if gate := strings.TrimSpace(q.Gate); gate != "" {
		conds = append(conds, "gate = ?")
		args = append(args, gate)
	}
	if prefix := strings.TrimSpace(q.KeyPrefix); prefix != "" {
		conds = append(conds, `event_key LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(prefix)+"%")
	}
	return "WHERE " + strings.Join(conds, " AND "), args, nil
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}

// RecordFiring appends a firing to the journal.
func (s *Store) RecordFiring(ctx context.Context, f core.Firing) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var payload sql.NullString
	if len(f.Event.Payload) > 0 {
		payload = sql.NullString{String: string(f.Event.Payload), Valid: true}
	}
	var requestID sql.NullString
	if f.Event.RequestID != "" {
		requestID = sql.NullString{String: f.Event.RequestID, Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO firings (event_id, gate, event_key, kind, payload, received_at, fired_at, request_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, f.Event.ID, f.Event.Gate, f.Event.Key, string(f.Kind), payload,
		f.Event.ReceivedAt.UnixMilli(), f.FiredAt.UnixMilli(), requestID)
	if err != nil {
		return fmt.Errorf("record firing: %w", err)
	}
	return nil
}

// ListFirings returns matching firings, newest first.
func (s *Store) ListFirings(ctx context.Context, q JournalQuery) ([]JournalEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}
	limit := ""
	if q.Limit > 0 {
		limit = "LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, event_id, gate, event_key, kind, payload, received_at, fired_at, request_id
		FROM firings
		%s
		ORDER BY fired_at DESC, id DESC
		%s
	`, where, limit), args...)
	if err != nil {
		return nil, fmt.Errorf("list firings: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []JournalEntry{}
	for rows.Next() {
		var (
			id         int64
			eventID    string
			gate       string
			key        string
			kind       string
			payload    sql.NullString
			receivedAt int64
			firedAt    int64
			requestID  sql.NullString
		)
		if err := rows.Scan(&id, &eventID, &gate, &key, &kind, &payload, &receivedAt, &firedAt, &requestID); err != nil {
			return nil, fmt.Errorf("scan firings: %w", err)
		}

		ev := core.Event{
			ID:         eventID,
			Gate:       gate,
			Key:        key,
			ReceivedAt: time.UnixMilli(receivedAt).UTC(),
			RequestID:  requestID.String,
		}
		if payload.Valid {
			ev.Payload = json.RawMessage(payload.String)
		}

		entries = append(entries, JournalEntry{
			ID: id,
			Firing: core.Firing{
				Event:   ev,
				Kind:    pace.Kind(kind),
				FiredAt: time.UnixMilli(firedAt).UTC(),
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list firings: %w", err)
	}

	return entries, nil
}

func (s *Store) CountFirings(ctx context.Context, q JournalQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM firings
		%s
	`, where), args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count firings: %w", err)
	}
	return count, nil
}

func (s *Store) ResetFirings(ctx context.Context, q JournalQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM firings
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset firings: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset firings: %w", err)
	}
	return affected, nil
}
