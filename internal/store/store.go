package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrConflict is returned when an insert violates a uniqueness constraint.
var ErrConflict = errors.New("store: record already exists")

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store provides CRUD operations for users, payment orders, usage records,
// recordings and sessions backed by SQLite.
//
// A Store returned by WithTx is bound to a transaction; its methods must not be
// used after the callback returns.
type Store struct {
	db  *sql.DB
	q   dbtx
	now func() time.Time
}

// Open opens (or creates) the database in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	dbPath := filepath.Join(dir, "superflow.db")
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			"foreign_keys(1)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, q: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		email             TEXT NOT NULL UNIQUE,
		password_hash     TEXT NOT NULL DEFAULT '',
		google_subject    TEXT,
		plan_type         TEXT NOT NULL DEFAULT 'free',
		minutes_remaining INTEGER NOT NULL DEFAULT 30,
		plan_expires_at   INTEGER,
		is_premium        INTEGER NOT NULL DEFAULT 0,
		created_at        INTEGER NOT NULL,
		updated_at        INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_google_subject ON users(google_subject) WHERE google_subject IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_users_plan_expiry ON users(is_premium, plan_expires_at);

	CREATE TABLE IF NOT EXISTS payment_orders (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id           TEXT NOT NULL UNIQUE,
		user_id            INTEGER NOT NULL,
		plan_type          TEXT NOT NULL,
		amount             INTEGER NOT NULL,
		status             TEXT NOT NULL DEFAULT 'created',
		payment_session_id TEXT NOT NULL DEFAULT '',
		gateway_order_id   TEXT NOT NULL DEFAULT '',
		paid_at            INTEGER,
		created_at         INTEGER NOT NULL,
		updated_at         INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_payment_orders_user ON payment_orders(user_id, created_at);

	CREATE TABLE IF NOT EXISTS usage_records (
		id                TEXT PRIMARY KEY,
		user_id           INTEGER NOT NULL,
		duration_seconds  INTEGER NOT NULL,
		minutes_charged   INTEGER NOT NULL,
		minutes_remaining INTEGER NOT NULL,
		request_id        TEXT,
		order_id          TEXT,
		created_at        INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_usage_records_request ON usage_records(user_id, request_id) WHERE request_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_usage_records_user ON usage_records(user_id, created_at);

	CREATE TABLE IF NOT EXISTS recordings (
		id               TEXT PRIMARY KEY,
		user_id          INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		duration_seconds INTEGER NOT NULL,
		style            TEXT NOT NULL DEFAULT '',
		transcript       TEXT NOT NULL DEFAULT '',
		enhanced         TEXT NOT NULL DEFAULT '',
		created_at       INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_recordings_user ON recordings(user_id, created_at);

	CREATE TABLE IF NOT EXISTS sessions (
		token_hash TEXT PRIMARY KEY,
		user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		expires_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		user_agent TEXT NOT NULL DEFAULT '',
		ip         TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init store schema: %w", err)
	}
	return nil
}

// SetClock overrides the clock used for created_at/updated_at stamps.
func (s *Store) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
}

// WithTx runs fn inside a transaction. fn receives a Store bound to the
// transaction; returning an error rolls it back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.db == nil {
		// Already inside a transaction.
		return fn(s)
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txStore := &Store{q: sqlTx, now: s.now}
	if err := fn(txStore); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Ping checks database connectivity (used for readiness probes).
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullableTimeUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timeFromNullable(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	ts := time.Unix(v.Int64, 0).UTC()
	return &ts
}

func nullableString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
