package pipeline

import (
	"context"
	"fmt"

	"github.com/vitalog/vitalog/internal/parse"
	"github.com/vitalog/vitalog/internal/store"
)

// EmitOpts carries the storage flags decided upstream of emission.
type EmitOpts struct {
	Clarified   bool // the user answered at least one clarifying question
	NeedsReview bool // stored as a best-effort guess for later review
}

// Emitter assembles finalized results into activity records and hands them
// to the persistence collaborator. Storage failures propagate unchanged:
// retry policy is the store's concern, not the parser's.
type Emitter struct {
	store store.Store
}

// NewEmitter creates an emitter over the given store.
func NewEmitter(s store.Store) *Emitter {
	return &Emitter{store: s}
}

// Emit builds the record — stamping provenance so downstream consumers can
// audit why it was trusted — and saves it.
func (e *Emitter) Emit(ctx context.Context, in Input, result *parse.Result, opts EmitOpts) (*store.ActivityRecord, error) {
	if result == nil {
		return nil, fmt.Errorf("result is nil")
	}

	record := &store.ActivityRecord{
		UserID:      in.UserID,
		Kind:        result.Kind,
		Fields:      result.Fields.Clone(),
		Confidence:  result.Confidence,
		Method:      result.Method,
		Clarified:   opts.Clarified,
		NeedsReview: opts.NeedsReview,
		RawText:     in.Text,
		CapturedAt:  in.CapturedAt,
	}

	if _, err := e.store.SaveRecord(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// EmitOutcome stores a non-clarify outcome directly: committed records as
// trusted entries, flagged ones into the review queue. Clarify outcomes
// have no record yet — their session must reach a terminal state first.
func (e *Emitter) EmitOutcome(ctx context.Context, in Input, out *Outcome) (*store.ActivityRecord, error) {
	switch out.Action {
	case ActionCommit:
		return e.Emit(ctx, in, out.Result, EmitOpts{})
	case ActionStoreWithFlag:
		return e.Emit(ctx, in, out.Result, EmitOpts{NeedsReview: true})
	case ActionClarify:
		return nil, fmt.Errorf("clarify outcome has no record to emit yet")
	}
	return nil, fmt.Errorf("unknown action %q", out.Action)
}
