package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateSession stores a login session.
func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	if sess == nil {
		return fmt.Errorf("session is nil")
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = s.timestamp()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO sessions (token_hash, user_id, expires_at, created_at, user_agent, ip)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sess.TokenHash, sess.UserID, sess.ExpiresAt.Unix(), sess.CreatedAt.Unix(), sess.UserAgent, sess.IP,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession returns the session for a token hash, or nil, nil.
func (s *Store) GetSession(ctx context.Context, tokenHash string) (*Session, error) {
	var sess Session
	var expiresAt, createdAt int64
	err := s.q.QueryRowContext(ctx, `
		SELECT token_hash, user_id, expires_at, created_at, user_agent, ip
		FROM sessions WHERE token_hash = ?`, tokenHash,
	).Scan(&sess.TokenHash, &sess.UserID, &expiresAt, &createdAt, &sess.UserAgent, &sess.IP)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	sess.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &sess, nil
}

// DeleteSession removes one session.
func (s *Store) DeleteSession(ctx context.Context, tokenHash string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, tokenHash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions that expired at or before now.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
