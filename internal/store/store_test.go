package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/vitalog/vitalog/internal/parse"
)

// newTestStore creates an in-memory store for testing.
func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewStore(StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(userID string) *ActivityRecord {
	return &ActivityRecord{
		UserID:     userID,
		Kind:       parse.KindWeight,
		Fields:     parse.Fields{parse.FieldValue: 175.0, parse.FieldUnit: "lbs"},
		Confidence: 0.92,
		Method:     parse.MethodPattern,
		RawText:    "weight 175",
	}
}

func TestNewStore(t *testing.T) {
	s, err := NewStore(StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer s.Close()

	ss := s.(*SQLiteStore)
	var name string
	err = ss.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='records'",
	).Scan(&name)
	if err != nil {
		t.Errorf("records table not found: %v", err)
	}
}

func TestSaveAndGetRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := sampleRecord("u1")
	id, err := s.SaveRecord(ctx, r)
	if err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated id")
	}

	got, err := s.GetRecord(ctx, id)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if got == nil {
		t.Fatal("record not found after save")
	}
	if got.Kind != parse.KindWeight {
		t.Errorf("kind = %v, want weight", got.Kind)
	}
	if v, _ := got.Fields.Number(parse.FieldValue); v != 175 {
		t.Errorf("value = %v, want 175 (fields must survive the JSON round trip)", v)
	}
	if got.RawText != "weight 175" {
		t.Errorf("raw text = %q, provenance must be stamped", got.RawText)
	}
	if got.Method != parse.MethodPattern {
		t.Errorf("method = %v, want pattern", got.Method)
	}
	if got.CapturedAt.IsZero() || got.CreatedAt.IsZero() {
		t.Error("timestamps not assigned")
	}
}

func TestGetRecordMissing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetRecord(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing record, got %+v", got)
	}
}

func TestSaveRecordRequiresUser(t *testing.T) {
	s := newTestStore(t)
	r := sampleRecord("")
	if _, err := s.SaveRecord(context.Background(), r); err == nil {
		t.Fatal("expected error for record without user id")
	}
}

func TestQueryRecentOrderAndScope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		r := sampleRecord("u1")
		r.RawText = fmt.Sprintf("weight %d", 170+i)
		r.CapturedAt = base.Add(time.Duration(i) * time.Minute)
		if _, err := s.SaveRecord(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	// Another user's record must not leak into u1's results.
	other := sampleRecord("u2")
	other.CapturedAt = base.Add(time.Hour)
	if _, err := s.SaveRecord(ctx, other); err != nil {
		t.Fatal(err)
	}

	records, err := s.QueryRecent(ctx, "u1", 3)
	if err != nil {
		t.Fatalf("QueryRecent failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[0].RawText != "weight 174" {
		t.Errorf("newest first: got %q", records[0].RawText)
	}
	for _, r := range records {
		if r.UserID != "u1" {
			t.Errorf("record from wrong user: %s", r.UserID)
		}
	}
}

func TestReviewQueue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	flagged := &ActivityRecord{
		UserID:      "u1",
		Kind:        parse.KindUnknown,
		Fields:      parse.Fields{},
		Confidence:  0,
		Method:      parse.MethodClassifier,
		NeedsReview: true,
		RawText:     "asdfghjkl qwerty",
	}
	id, err := s.SaveRecord(ctx, flagged)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveRecord(ctx, sampleRecord("u1")); err != nil {
		t.Fatal(err)
	}

	queue, err := s.ListNeedsReview(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("ListNeedsReview failed: %v", err)
	}
	if len(queue) != 1 || queue[0].ID != id {
		t.Fatalf("review queue = %+v, want just the flagged record", queue)
	}
	// Raw text must be intact: low-confidence input is never discarded.
	if queue[0].RawText != "asdfghjkl qwerty" {
		t.Errorf("raw text = %q", queue[0].RawText)
	}

	if err := s.MarkReviewed(ctx, id); err != nil {
		t.Fatalf("MarkReviewed failed: %v", err)
	}
	queue, err = s.ListNeedsReview(ctx, "u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(queue) != 0 {
		t.Errorf("review queue not drained: %+v", queue)
	}

	if err := s.MarkReviewed(ctx, "no-such-id"); err == nil {
		t.Error("expected error for unknown record id")
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.SaveRecord(ctx, sampleRecord("u1")); err != nil {
		t.Fatal(err)
	}
	flagged := sampleRecord("u1")
	flagged.Kind = parse.KindMood
	flagged.NeedsReview = true
	if _, err := s.SaveRecord(ctx, flagged); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.RecordCount != 2 {
		t.Errorf("RecordCount = %d, want 2", stats.RecordCount)
	}
	if stats.NeedsReviewCount != 1 {
		t.Errorf("NeedsReviewCount = %d, want 1", stats.NeedsReviewCount)
	}
	if stats.ByKind[parse.KindWeight] != 1 || stats.ByKind[parse.KindMood] != 1 {
		t.Errorf("ByKind = %v", stats.ByKind)
	}
}
