// Package store provides the SQLite storage layer for Vitalog.
//
// All activity data lives in a single SQLite database file: finalized
// activity records with full provenance (original utterance, interpretation
// method, confidence, clarification flag) plus a review queue of
// low-confidence entries awaiting user attention.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vitalog/vitalog/internal/parse"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.vitalog/vitalog.db"

// ActivityRecord is a finalized, persisted activity entry. Provenance
// fields explain why the record was trusted: which stage produced it, at
// what confidence, and whether the user confirmed it interactively.
type ActivityRecord struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	Kind        parse.Kind   `json:"kind"`
	Fields      parse.Fields `json:"fields"`
	Confidence  float64      `json:"confidence"`
	Method      parse.Method `json:"method"`
	Clarified   bool         `json:"clarified"`    // user answered at least one clarifying question
	NeedsReview bool         `json:"needs_review"` // stored as a best-effort guess, awaiting review
	RawText     string       `json:"raw_text"`
	CapturedAt  time.Time    `json:"captured_at"`
	CreatedAt   time.Time    `json:"created_at"`
}

// StoreStats holds observability statistics about the store.
type StoreStats struct {
	RecordCount      int64                `json:"record_count"`
	NeedsReviewCount int64                `json:"needs_review_count"`
	ByKind           map[parse.Kind]int64 `json:"by_kind"`
	DBSizeBytes      int64                `json:"db_size_bytes"`
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath string
}

// Store defines the persistence boundary the pipeline emits into. The
// pipeline never retries storage failures; retry and idempotency policy
// belong to implementations or their callers.
type Store interface {
	SaveRecord(ctx context.Context, r *ActivityRecord) (string, error)
	GetRecord(ctx context.Context, id string) (*ActivityRecord, error)
	QueryRecent(ctx context.Context, userID string, limit int) ([]*ActivityRecord, error)
	ListNeedsReview(ctx context.Context, userID string, limit int) ([]*ActivityRecord, error)
	MarkReviewed(ctx context.Context, id string) error
	Stats(ctx context.Context) (*StoreStats, error)
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}

	// Create parent directory for non-memory databases
	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// WAL for concurrent readers, busy timeout for writer contention.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: cfg.DBPath}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// migrate creates all tables if they don't exist. Idempotent.
func (s *SQLiteStore) migrate() error {
	ddl := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		fields TEXT NOT NULL DEFAULT '{}',
		confidence REAL NOT NULL,
		method TEXT NOT NULL,
		clarified INTEGER NOT NULL DEFAULT 0,
		needs_review INTEGER NOT NULL DEFAULT 0,
		raw_text TEXT NOT NULL,
		captured_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_user_captured
		ON records(user_id, captured_at DESC);

	CREATE INDEX IF NOT EXISTS idx_records_review
		ON records(user_id, needs_review, captured_at DESC);
	`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
