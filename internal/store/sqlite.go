// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides usage and subscription persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL lets usage reads proceed while a record is being appended
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS usage_records (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			action     TEXT NOT NULL,
			cost       REAL NOT NULL DEFAULT 0,
			tokens     INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_usage_user_created
			ON usage_records(user_id, created_at);

		CREATE INDEX IF NOT EXISTS idx_usage_action
			ON usage_records(action);

		CREATE TABLE IF NOT EXISTS subscriptions (
			user_id    TEXT PRIMARY KEY,
			tier       TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			CHECK (tier IN ('basic', 'pro', 'enterprise'))
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// Early databases recorded cost only; tokens arrived with prompt accounting.
	var exists int
	err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info('usage_records') WHERE name = 'tokens'`).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec(`ALTER TABLE usage_records ADD COLUMN tokens INTEGER NOT NULL DEFAULT 0`); err != nil {
			return fmt.Errorf("adding tokens column to usage_records: %w", err)
		}
		s.logger.Info("applied migration", "column", "tokens", "table", "usage_records")
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking usage_records columns: %w", err)
	}
	return nil
}

// Ping verifies the database connection is alive
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// GetSubscription returns the user's subscription.
// Returns ErrNotFound if the user has none.
func (s *SQLiteStore) GetSubscription(ctx context.Context, userID string) (*Subscription, error) {
	query := `SELECT user_id, tier, updated_at FROM subscriptions WHERE user_id = ?`

	var sub Subscription
	var updatedAtStr string
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&sub.UserID, &sub.Tier, &updatedAtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying subscription: %w", err)
	}

	sub.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &sub, nil
}

// SetSubscription creates or replaces a user's subscription tier.
func (s *SQLiteStore) SetSubscription(ctx context.Context, sub *Subscription) error {
	if !ValidTier(sub.Tier) {
		return fmt.Errorf("%w: %q", ErrInvalidTier, sub.Tier)
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now()
	}

	query := `
		INSERT INTO subscriptions (user_id, tier, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET tier = excluded.tier, updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, sub.UserID, sub.Tier, sub.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting subscription: %w", err)
	}

	s.logger.Debug("set subscription", "user_id", sub.UserID, "tier", sub.Tier)
	return nil
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)
