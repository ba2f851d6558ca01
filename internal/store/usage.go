// ABOUTME: SQLite implementation for usage record tracking
// ABOUTME: Appends billing records and answers monthly counts and aggregate statistics

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SaveUsage appends a usage record. ID and CreatedAt are filled in when empty.
func (s *SQLiteStore) SaveUsage(ctx context.Context, record *UsageRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO usage_records (id, user_id, action, cost, tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.UserID,
		record.Action,
		record.Cost,
		record.Tokens,
		record.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting usage: %w", err)
	}

	s.logger.Debug("saved usage record",
		"id", record.ID,
		"user_id", record.UserID,
		"action", record.Action,
		"cost", record.Cost,
		"tokens", record.Tokens,
	)
	return nil
}

// CountUsageSince counts a user's usage records created at or after since.
func (s *SQLiteStore) CountUsageSince(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM usage_records WHERE user_id = ? AND created_at >= ?`

	var count int
	err := s.db.QueryRowContext(ctx, query, userID, since.UTC().Format(time.RFC3339)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting usage: %w", err)
	}
	return count, nil
}

// ListUsage returns a user's most recent usage records, newest first.
func (s *SQLiteStore) ListUsage(ctx context.Context, userID string, limit int) ([]*UsageRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, user_id, action, cost, tokens, created_at
		FROM usage_records
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*UsageRecord
	for rows.Next() {
		record, err := scanUsage(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage rows: %w", err)
	}

	return records, nil
}

// GetUsageStats returns aggregated usage statistics with optional filters.
func (s *SQLiteStore) GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error) {
	where := " WHERE 1=1"
	args := []any{}

	if filter.UserID != nil {
		where += " AND user_id = ?"
		args = append(args, *filter.UserID)
	}
	if filter.Action != nil {
		where += " AND action = ?"
		args = append(args, *filter.Action)
	}
	if filter.Since != nil {
		where += " AND created_at >= ?"
		args = append(args, filter.Since.UTC().Format(time.RFC3339))
	}
	if filter.Until != nil {
		where += " AND created_at < ?"
		args = append(args, filter.Until.UTC().Format(time.RFC3339))
	}

	totals := `
		SELECT
			COUNT(*) as request_count,
			COALESCE(SUM(cost), 0) as total_cost,
			COALESCE(SUM(tokens), 0) as total_tokens
		FROM usage_records` + where

	stats := UsageStats{ByAction: make(map[string]int64)}
	err := s.db.QueryRowContext(ctx, totals, args...).Scan(
		&stats.RequestCount,
		&stats.TotalCost,
		&stats.TotalTokens,
	)
	if err != nil {
		return nil, fmt.Errorf("querying usage stats: %w", err)
	}

	byAction := `SELECT action, COUNT(*) FROM usage_records` + where + ` GROUP BY action`
	rows, err := s.db.QueryContext(ctx, byAction, args...)
	if err != nil {
		return nil, fmt.Errorf("querying usage by action: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var action string
		var count int64
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("scanning usage by action: %w", err)
		}
		stats.ByAction[action] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage by action: %w", err)
	}

	return &stats, nil
}

// scanUsage scans a single usage row into a UsageRecord struct.
func scanUsage(rows *sql.Rows) (*UsageRecord, error) {
	var record UsageRecord
	var createdAtStr string

	err := rows.Scan(
		&record.ID,
		&record.UserID,
		&record.Action,
		&record.Cost,
		&record.Tokens,
		&createdAtStr,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning usage row: %w", err)
	}

	record.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &record, nil
}

// Ensure SQLiteStore implements UsageStore interface.
var _ UsageStore = (*SQLiteStore)(nil)
