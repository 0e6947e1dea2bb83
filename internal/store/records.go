package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/vitalog/vitalog/internal/parse"
)

// SaveRecord inserts a finalized activity record and returns its id.
// A missing id is assigned; a missing captured-at falls back to now.
func (s *SQLiteStore) SaveRecord(ctx context.Context, r *ActivityRecord) (string, error) {
	if r == nil {
		return "", fmt.Errorf("record is nil")
	}
	if r.UserID == "" {
		return "", fmt.Errorf("record has no user id")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	if r.CapturedAt.IsZero() {
		r.CapturedAt = now
	}
	r.CreatedAt = now

	fieldsJSON, err := json.Marshal(r.Fields)
	if err != nil {
		return "", fmt.Errorf("encoding fields: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (id, user_id, kind, fields, confidence, method, clarified, needs_review, raw_text, captured_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, string(r.Kind), string(fieldsJSON), r.Confidence,
		string(r.Method), boolToInt(r.Clarified), boolToInt(r.NeedsReview),
		r.RawText, r.CapturedAt, r.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("inserting record: %w", err)
	}
	return r.ID, nil
}

// GetRecord retrieves a record by id. Returns nil, nil when absent.
func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*ActivityRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, kind, fields, confidence, method, clarified, needs_review, raw_text, captured_at, created_at
		 FROM records WHERE id = ?`, id)

	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting record %s: %w", id, err)
	}
	return r, nil
}

// QueryRecent returns the user's most recent records, newest first.
func (s *SQLiteStore) QueryRecent(ctx context.Context, userID string, limit int) ([]*ActivityRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, kind, fields, confidence, method, clarified, needs_review, raw_text, captured_at, created_at
		 FROM records WHERE user_id = ?
		 ORDER BY captured_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListNeedsReview returns low-confidence records awaiting review, newest
// first.
func (s *SQLiteStore) ListNeedsReview(ctx context.Context, userID string, limit int) ([]*ActivityRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, kind, fields, confidence, method, clarified, needs_review, raw_text, captured_at, created_at
		 FROM records WHERE user_id = ? AND needs_review = 1
		 ORDER BY captured_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying review queue: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// MarkReviewed clears the needs-review flag on a record.
func (s *SQLiteStore) MarkReviewed(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE records SET needs_review = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("marking record reviewed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("record %s not found", id)
	}
	return nil
}

// Stats returns counts for observability.
func (s *SQLiteStore) Stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{ByKind: map[parse.Kind]int64{}}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records`).Scan(&stats.RecordCount); err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE needs_review = 1`).Scan(&stats.NeedsReviewCount); err != nil {
		return nil, fmt.Errorf("counting review queue: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM records GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("counting by kind: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scanning kind count: %w", err)
		}
		stats.ByKind[parse.Kind(kind)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if s.dbPath != ":memory:" {
		if info, err := os.Stat(s.dbPath); err == nil {
			stats.DBSizeBytes = info.Size()
		}
	}
	return stats, nil
}

// scanner abstracts sql.Row and sql.Rows for record scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*ActivityRecord, error) {
	r := &ActivityRecord{}
	var kind, method, fieldsJSON string
	var clarified, needsReview int

	err := row.Scan(&r.ID, &r.UserID, &kind, &fieldsJSON, &r.Confidence,
		&method, &clarified, &needsReview, &r.RawText, &r.CapturedAt, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	r.Kind = parse.Kind(kind)
	r.Method = parse.Method(method)
	r.Clarified = clarified != 0
	r.NeedsReview = needsReview != 0

	r.Fields = parse.Fields{}
	if err := json.Unmarshal([]byte(fieldsJSON), &r.Fields); err != nil {
		return nil, fmt.Errorf("decoding fields: %w", err)
	}
	return r, nil
}

func collectRecords(rows *sql.Rows) ([]*ActivityRecord, error) {
	var records []*ActivityRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
