package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/craftai-co-in/superflow/internal/plans"
)

const usageColumns = `id, user_id, duration_seconds, minutes_charged, minutes_remaining,
		COALESCE(request_id, ''), COALESCE(order_id, ''), created_at`

// NewID returns a new lexicographically sortable identifier.
func NewID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// AppendUsage appends a usage record. A repeated (user, request id) pair
// yields ErrConflict.
func (s *Store) AppendUsage(ctx context.Context, r *UsageRecord) error {
	if r == nil {
		return fmt.Errorf("usage record is nil")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.timestamp()
	}
	if r.ID == "" {
		r.ID = NewID(r.CreatedAt)
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO usage_records (
			id, user_id, duration_seconds, minutes_charged, minutes_remaining,
			request_id, order_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.DurationSeconds, r.MinutesCharged, int64(r.MinutesRemaining),
		nullableString(r.RequestID), nullableString(r.OrderID), r.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("append usage: %w", ErrConflict)
		}
		return fmt.Errorf("append usage: %w", err)
	}
	return nil
}

// GetUsageByRequestID finds the usage record a client request id produced.
func (s *Store) GetUsageByRequestID(ctx context.Context, userID int64, requestID string) (*UsageRecord, error) {
	if requestID == "" {
		return nil, nil
	}
	row := s.q.QueryRowContext(ctx, `SELECT `+usageColumns+`
		FROM usage_records WHERE user_id = ? AND request_id = ?`, userID, requestID)
	return scanUsage(row)
}

// ListUsage returns a user's usage records, newest first.
func (s *Store) ListUsage(ctx context.Context, userID int64, limit int) ([]*UsageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.QueryContext(ctx, `SELECT `+usageColumns+`
		FROM usage_records WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}
	defer rows.Close()

	var records []*UsageRecord
	for rows.Next() {
		r, err := scanUsage(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ListUsageByOrder returns activation audit entries written for an order.
func (s *Store) ListUsageByOrder(ctx context.Context, orderID string) ([]*UsageRecord, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+usageColumns+`
		FROM usage_records WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list usage by order: %w", err)
	}
	defer rows.Close()

	var records []*UsageRecord
	for rows.Next() {
		r, err := scanUsage(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func scanUsage(s scanner) (*UsageRecord, error) {
	var r UsageRecord
	var remaining, createdAt int64
	var requestID, orderID sql.NullString

	err := s.Scan(
		&r.ID, &r.UserID, &r.DurationSeconds, &r.MinutesCharged, &remaining,
		&requestID, &orderID, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan usage record: %w", err)
	}
	r.RequestID = requestID.String
	r.OrderID = orderID.String
	r.MinutesRemaining = plans.Minutes(remaining)
	r.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &r, nil
}
