package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/taskmarket/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id INTEGER PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);

	CREATE TABLE IF NOT EXISTS professions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);
	CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		profession_id INTEGER NOT NULL REFERENCES professions(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		UNIQUE(profession_id, name)
	);
	CREATE TABLE IF NOT EXISTS languages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS executor_profiles (
		user_id INTEGER PRIMARY KEY REFERENCES users(user_id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		photo_path TEXT NOT NULL DEFAULT '',
		age INTEGER NOT NULL,
		profession_id INTEGER NOT NULL REFERENCES professions(id),
		description TEXT NOT NULL,
		rate TEXT NOT NULL,
		experience TEXT NOT NULL,
		contacts TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		verified INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS executor_jobs (
		user_id INTEGER NOT NULL REFERENCES executor_profiles(user_id) ON DELETE CASCADE,
		job_id INTEGER NOT NULL REFERENCES jobs(id),
		position INTEGER NOT NULL,
		PRIMARY KEY (user_id, job_id)
	);
	CREATE TABLE IF NOT EXISTS executor_links (
		user_id INTEGER NOT NULL REFERENCES executor_profiles(user_id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		PRIMARY KEY (user_id, position)
	);

	CREATE TABLE IF NOT EXISTS client_profiles (
		user_id INTEGER PRIMARY KEY REFERENCES users(user_id) ON DELETE CASCADE,
		client_type TEXT NOT NULL,
		company_name TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		contacts TEXT NOT NULL DEFAULT '',
		verified INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS client_languages (
		user_id INTEGER NOT NULL REFERENCES client_profiles(user_id) ON DELETE CASCADE,
		language_id INTEGER NOT NULL REFERENCES languages(id),
		position INTEGER NOT NULL,
		PRIMARY KEY (user_id, language_id)
	);

	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id INTEGER NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		budget INTEGER NOT NULL,
		deadline_days INTEGER NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_client ON orders(client_id);
	CREATE TABLE IF NOT EXISTS order_jobs (
		order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		job_id INTEGER NOT NULL REFERENCES jobs(id),
		position INTEGER NOT NULL,
		PRIMARY KEY (order_id, job_id)
	);
	CREATE TABLE IF NOT EXISTS order_files (
		order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		path TEXT NOT NULL,
		PRIMARY KEY (order_id, position)
	);

	CREATE TABLE IF NOT EXISTS reviews (
		id TEXT PRIMARY KEY,
		subject_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		fields_json TEXT NOT NULL DEFAULT '[]',
		payload_json TEXT NOT NULL DEFAULT '{}',
		card_text TEXT NOT NULL,
		reasons_json TEXT NOT NULL DEFAULT '[]',
		card_chat_id INTEGER NOT NULL,
		card_message_id INTEGER NOT NULL,
		moderator_id INTEGER,
		created_at INTEGER NOT NULL,
		decided_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_reviews_subject_status ON reviews(subject_id, status);

	CREATE TABLE IF NOT EXISTS blocks (
		user_id INTEGER PRIMARY KEY,
		expires_at INTEGER NOT NULL,
		reasons_json TEXT NOT NULL DEFAULT '[]',
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_blocks_expires ON blocks(expires_at);

	CREATE TABLE IF NOT EXISTS decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		review_id TEXT NOT NULL,
		subject_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		decision TEXT NOT NULL,
		reasons_json TEXT NOT NULL DEFAULT '[]',
		moderator_id INTEGER NOT NULL,
		decided_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_decided ON decisions(decided_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

const (
	maxRetries = 3
	baseDelay  = 100 * time.Millisecond
)

// retry runs fn, retrying SQLITE_BUSY failures with exponential backoff.
func retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			break
		}
		delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
		slog.Debug("SQLite busy, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

// inTx runs fn in a transaction, committing on success. Busy conflicts retry
// the whole transaction.
func (s *SQLiteStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	err := retry(ctx, op, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Warn("Rollback failed", "op", op, "error", rbErr)
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "query", what, "error", err)
	}
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalJSON(raw string, v any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

func nullUnix(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

func fromNullUnix(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
