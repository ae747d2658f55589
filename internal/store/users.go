package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/craftai-co-in/superflow/internal/plans"
)

const userColumns = `id, email, password_hash, COALESCE(google_subject, ''), plan_type,
		minutes_remaining, plan_expires_at, is_premium, created_at, updated_at`

// CreateUser inserts a new user. Zero plan fields default to the free tier.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	if u == nil {
		return fmt.Errorf("user is nil")
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.PlanType == "" {
		u.PlanType = plans.PlanFree
		u.MinutesRemaining = plans.FreeMinutes
	}
	u.IsPremium = u.PlanType != plans.PlanFree
	now := s.timestamp()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO users (
			email, password_hash, google_subject, plan_type,
			minutes_remaining, plan_expires_at, is_premium, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Email, u.PasswordHash, nullableString(u.GoogleSubject), string(u.PlanType),
		int64(u.MinutesRemaining), nullableTimeUnix(u.PlanExpiresAt), boolToInt(u.IsPremium),
		u.CreatedAt.Unix(), u.UpdatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create user %q: %w", u.Email, ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create user: last insert id: %w", err)
	}
	u.ID = id
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by (case-insensitive) email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// GetUserByGoogleSubject retrieves a user by Google account subject.
func (s *Store) GetUserByGoogleSubject(ctx context.Context, subject string) (*User, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, nil
	}
	row := s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE google_subject = ?`, subject)
	return scanUser(row)
}

// LinkGoogleSubject attaches a Google account subject to an existing user.
func (s *Store) LinkGoogleSubject(ctx context.Context, userID int64, subject string) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE users SET google_subject = ?, updated_at = ? WHERE id = ?`,
		nullableString(subject), s.timestamp().Unix(), userID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("link google subject: %w", ErrConflict)
		}
		return fmt.Errorf("link google subject: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("user %d not found", userID)
	}
	return nil
}

// SetPlan overwrites the plan triple of a user. IsPremium is derived from the
// plan type. Returns nil, nil when the user does not exist.
func (s *Store) SetPlan(ctx context.Context, userID int64, planType plans.PlanType, minutes plans.Minutes, expiresAt *time.Time) (*User, error) {
	row := s.q.QueryRowContext(ctx, `
		UPDATE users SET
			plan_type = ?, minutes_remaining = ?, plan_expires_at = ?, is_premium = ?, updated_at = ?
		WHERE id = ?
		RETURNING `+userColumns,
		string(planType), int64(minutes), nullableTimeUnix(expiresAt),
		boolToInt(planType != plans.PlanFree), s.timestamp().Unix(), userID,
	)
	return scanUser(row)
}

// DeductMinutes atomically subtracts minutes from a user's balance, flooring
// at zero. Unlimited balances are left untouched. found is false when the
// user does not exist.
func (s *Store) DeductMinutes(ctx context.Context, userID int64, minutes int64) (remaining plans.Minutes, found bool, err error) {
	if minutes < 0 {
		return 0, false, fmt.Errorf("deduct minutes: negative amount %d", minutes)
	}
	var balance int64
	err = s.q.QueryRowContext(ctx, `
		UPDATE users SET
			minutes_remaining = CASE
				WHEN minutes_remaining < 0 THEN minutes_remaining
				ELSE MAX(0, minutes_remaining - ?)
			END,
			updated_at = ?
		WHERE id = ?
		RETURNING minutes_remaining`,
		minutes, s.timestamp().Unix(), userID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("deduct minutes: %w", err)
	}
	return plans.Minutes(balance), true, nil
}

// DowngradeIfExpired resets a user to the free tier only if the row is still
// premium and its expiry is at or before now. Exactly one concurrent caller
// observes true.
func (s *Store) DowngradeIfExpired(ctx context.Context, userID int64, now time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE users SET
			plan_type = ?, minutes_remaining = ?, plan_expires_at = NULL, is_premium = 0, updated_at = ?
		WHERE id = ? AND is_premium = 1 AND plan_expires_at IS NOT NULL AND plan_expires_at <= ?`,
		string(plans.PlanFree), int64(plans.FreeMinutes), s.timestamp().Unix(), userID, now.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("downgrade user %d: %w", userID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("downgrade user %d: rows affected: %w", userID, err)
	}
	return affected > 0, nil
}

// ListExpiredPremiumUserIDs returns premium users whose expiry is at or before now.
func (s *Store) ListExpiredPremiumUserIDs(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id FROM users
		WHERE is_premium = 1 AND plan_expires_at IS NOT NULL AND plan_expires_at <= ?
		ORDER BY plan_expires_at`, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("list expired users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired user: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListUsers returns the most recently created users, newest first.
func (s *Store) ListUsers(ctx context.Context, limit int) ([]*User, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.q.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountUsersByPlan returns a map of plan type -> user count.
func (s *Store) CountUsersByPlan(ctx context.Context) (map[plans.PlanType]int, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT plan_type, COUNT(*) FROM users GROUP BY plan_type`)
	if err != nil {
		return nil, fmt.Errorf("count users by plan: %w", err)
	}
	defer rows.Close()

	counts := make(map[plans.PlanType]int)
	for rows.Next() {
		var planType string
		var count int
		if err := rows.Scan(&planType, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[plans.PlanType(planType)] = count
	}
	return counts, rows.Err()
}

// DeleteUser removes a user with their recordings and sessions. Orders and
// usage records are kept as the audit trail. Returns false when no such user.
func (s *Store) DeleteUser(ctx context.Context, userID int64) (bool, error) {
	var deleted bool
	err := s.WithTx(ctx, func(tx *Store) error {
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM recordings WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("delete recordings: %w", err)
		}
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("delete sessions: %w", err)
		}
		res, err := tx.q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		affected, _ := res.RowsAffected()
		deleted = affected > 0
		return nil
	})
	return deleted, err
}

func scanUser(s scanner) (*User, error) {
	var u User
	var planType string
	var minutes, createdAt, updatedAt int64
	var expiresAt sql.NullInt64
	var googleSubject sql.NullString
	var premium int

	err := s.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &googleSubject, &planType,
		&minutes, &expiresAt, &premium, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	u.GoogleSubject = googleSubject.String
	u.PlanType = plans.PlanType(planType)
	u.MinutesRemaining = plans.Minutes(minutes)
	u.PlanExpiresAt = timeFromNullable(expiresAt)
	u.IsPremium = premium != 0
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	u.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &u, nil
}
