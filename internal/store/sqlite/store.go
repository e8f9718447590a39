package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store persists the last watermark handled per user. Notifications
// themselves are never stored; a disconnected client recovers through a
// later full sync, not replay.
type Store struct {
	db *sql.DB
}

// Open opens or creates the watermark database.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveWatermark records the latest watermark handled for a user. Stale
// writes are ignored; the watermark only ever moves forward.
func (s *Store) SaveWatermark(ctx context.Context, userID string, historyID uint64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watermarks (user_id, history_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			history_id = excluded.history_id,
			updated_at = excluded.updated_at
		WHERE excluded.history_id > watermarks.history_id
	`, userID, historyID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save watermark: %w", err)
	}
	return nil
}

// LoadWatermark returns the last recorded watermark for a user, or zero
// when none has been recorded.
func (s *Store) LoadWatermark(ctx context.Context, userID string) (uint64, error) {
	var historyID uint64
	err := s.db.QueryRowContext(ctx, `
		SELECT history_id FROM watermarks WHERE user_id = ?
	`, userID).Scan(&historyID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load watermark: %w", err)
	}
	return historyID, nil
}
