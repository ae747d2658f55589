package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const recordingColumns = `id, user_id, duration_seconds, style, transcript, enhanced, created_at`

// CreateRecording inserts a processed recording.
func (s *Store) CreateRecording(ctx context.Context, r *Recording) error {
	if r == nil {
		return fmt.Errorf("recording is nil")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.timestamp()
	}
	if r.ID == "" {
		r.ID = NewID(r.CreatedAt)
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO recordings (`+recordingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.DurationSeconds, r.Style, r.Transcript, r.Enhanced, r.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create recording: %w", err)
	}
	return nil
}

// GetRecording retrieves a recording by ID.
func (s *Store) GetRecording(ctx context.Context, id string) (*Recording, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id)
	return scanRecording(row)
}

// ListRecordings returns a user's recordings, newest first.
func (s *Store) ListRecordings(ctx context.Context, userID int64, limit int) ([]*Recording, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.QueryContext(ctx, `SELECT `+recordingColumns+`
		FROM recordings WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var recs []*Recording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// DeleteRecording removes a recording owned by userID.
func (s *Store) DeleteRecording(ctx context.Context, userID int64, id string) (bool, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM recordings WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete recording: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func scanRecording(s scanner) (*Recording, error) {
	var r Recording
	var createdAt int64
	err := s.Scan(&r.ID, &r.UserID, &r.DurationSeconds, &r.Style, &r.Transcript, &r.Enhanced, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan recording: %w", err)
	}
	r.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &r, nil
}
