// Package pipeline wires the interpretation stages together: normalize →
// pattern matchers → fallback classifier → sport disambiguation →
// confidence gate → (commit | clarification) → record emission.
//
// Each invocation is independent and safely parallelizable; the only
// mutable state is the per-submission clarification session, which is owned
// by the caller until it reaches a terminal state.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/vitalog/vitalog/internal/clarify"
	"github.com/vitalog/vitalog/internal/classify"
	"github.com/vitalog/vitalog/internal/parse"
)

// Input is one user submission: the raw utterance plus capture metadata.
type Input struct {
	Text       string
	UserID     string
	CapturedAt time.Time
}

// Outcome is the pipeline's verdict for one submission. Session is non-nil
// exactly when Action is ActionClarify; the caller drives it to a terminal
// state and then finalizes. Until then nothing is stored.
type Outcome struct {
	Action  Action
	Result  *parse.Result
	Session *clarify.Session
}

// Options configures a Pipeline.
type Options struct {
	Thresholds Thresholds
	SessionTTL time.Duration // idle TTL for clarification sessions
}

// Pipeline orchestrates the interpretation stages. Construct once, use from
// any number of goroutines.
type Pipeline struct {
	classifier classify.Classifier
	thresholds Thresholds
	sessionTTL time.Duration
}

// New creates a pipeline. classifier may be nil, in which case unmatched
// utterances go straight to the unknown bucket.
func New(classifier classify.Classifier, opts Options) *Pipeline {
	t := opts.Thresholds
	if !t.Valid() {
		t = DefaultThresholds()
	}
	return &Pipeline{
		classifier: classifier,
		thresholds: t,
		sessionTTL: opts.SessionTTL,
	}
}

// Thresholds returns the gate configuration in use.
func (p *Pipeline) Thresholds() Thresholds { return p.thresholds }

// Interpret runs one submission through the full pipeline and returns the
// gated outcome. It never returns an error: malformed input and classifier
// failures are ordinary low-confidence outcomes, and every utterance ends
// in some action.
func (p *Pipeline) Interpret(ctx context.Context, in Input, pctx classify.Context) *Outcome {
	normalized := parse.Normalize(in.Text)

	// Empty or whitespace-only input: nothing to match, nothing to
	// clarify. Stored flagged so the submission still leaves a trace.
	if normalized == "" {
		return &Outcome{
			Action: ActionStoreWithFlag,
			Result: parse.Unknown(in.Text),
		}
	}

	var result *parse.Result
	var questions []clarify.Question

	if result = parse.FirstMatch(normalized); result == nil {
		if p.classifier == nil {
			result = parse.Unknown(in.Text)
		} else {
			cls := p.classifier.Classify(ctx, normalized, pctx)
			result = cls.Result
			questions = cls.Questions
		}
	}

	// Provenance carries the user's words verbatim, not the normalized
	// form the matchers saw.
	result = result.WithFields(result.Fields)
	result.RawText = in.Text

	result = parse.DisambiguateSport(result)

	if !result.Complete() && len(questions) == 0 {
		questions = missingFieldQuestions(result)
	}

	action := p.thresholds.Decide(result.Confidence, result.Complete(), len(questions) > 0)

	out := &Outcome{Action: action, Result: result}
	if action == ActionClarify {
		session, err := clarify.NewSession(result, questions, p.sessionTTL)
		if err != nil {
			// Unreachable while Decide requires questions for Clarify;
			// degrade to flagged storage rather than dropping the entry.
			out.Action = ActionStoreWithFlag
			return out
		}
		out.Session = session
	}
	return out
}

// FinalizeSession folds a terminal clarification session into a finalized
// result and the storage flags it carries: completed sessions are
// confirmed records, skipped ones keep their original confidence and go to
// the review queue. A completed session whose fields still fail the kind's
// schema is flagged for review as well.
func (p *Pipeline) FinalizeSession(session *clarify.Session) (*parse.Result, EmitOpts, error) {
	final, err := session.Finalize(p.thresholds.ConfirmedCeiling)
	if err != nil {
		return nil, EmitOpts{}, fmt.Errorf("finalizing clarification: %w", err)
	}
	if session.Skipped() {
		return final, EmitOpts{NeedsReview: true}, nil
	}
	opts := EmitOpts{Clarified: true}
	if !final.Complete() {
		// A confirmed record that still fails the field schema (answers
		// never covered every required field) goes to the review queue
		// instead of being stored as trusted.
		opts.NeedsReview = true
	}
	return final, opts, nil
}

// missingFieldQuestions generates typed questions for a known kind whose
// required fields are underspecified and for which the classifier offered
// none of its own.
func missingFieldQuestions(r *parse.Result) []clarify.Question {
	var qs []clarify.Question
	need := func(key string) bool {
		_, hasNum := r.Fields.Number(key)
		_, hasText := r.Fields.Text(key)
		_, hasList := r.Fields.List(key)
		return !hasNum && !hasText && !hasList
	}

	switch r.Kind {
	case parse.KindWeight:
		if need(parse.FieldValue) {
			qs = append(qs, clarify.Question{
				ID: parse.FieldValue, Prompt: "What was the reading?",
				AnswerType: clarify.AnswerNumber,
			})
		}
		if need(parse.FieldUnit) {
			qs = append(qs, clarify.Question{
				ID: parse.FieldUnit, Prompt: "Pounds or kilograms?",
				AnswerType: clarify.AnswerSelect, Options: []string{"lbs", "kg"},
			})
		}
	case parse.KindSleep:
		if need(parse.FieldHours) {
			qs = append(qs, clarify.Question{
				ID: parse.FieldHours, Prompt: "How many hours did you sleep?",
				AnswerType: clarify.AnswerNumber,
			})
		}
	case parse.KindWater:
		if need(parse.FieldAmount) {
			qs = append(qs, clarify.Question{
				ID: parse.FieldAmount, Prompt: "How much water?",
				AnswerType: clarify.AnswerNumber,
			})
		}
		if need(parse.FieldUnit) {
			qs = append(qs, clarify.Question{
				ID: parse.FieldUnit, Prompt: "What unit?",
				AnswerType: clarify.AnswerSelect, Options: []string{"oz", "ml", "cups", "liters"},
			})
		}
	case parse.KindEnergy:
		if need(parse.FieldLevel) {
			qs = append(qs, clarify.Question{
				ID: parse.FieldLevel, Prompt: "Energy level, 0-10?",
				AnswerType: clarify.AnswerNumber,
			})
		}
	case parse.KindFood:
		if need(parse.FieldMeal) {
			qs = append(qs, clarify.Question{
				ID: parse.FieldMeal, Prompt: "Which meal was this?",
				AnswerType: clarify.AnswerSelect,
				Options:    []string{"breakfast", "lunch", "dinner", "snack"},
			})
		}
		if need(parse.FieldItems) {
			qs = append(qs, clarify.Question{
				ID: parse.FieldItems, Prompt: "What did you eat?",
				AnswerType: clarify.AnswerList,
			})
		}
	case parse.KindWorkout:
		if need(parse.FieldActivity) {
			qs = append(qs, clarify.Question{
				ID: parse.FieldActivity, Prompt: "What activity was it?",
				AnswerType: clarify.AnswerText,
			})
		}
	case parse.KindMood:
		if need(parse.FieldMood) {
			qs = append(qs, clarify.Question{
				ID: parse.FieldMood, Prompt: "How are you feeling?",
				AnswerType: clarify.AnswerText,
			})
		}
	}
	return qs
}
