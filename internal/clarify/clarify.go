// Package clarify implements the follow-up question flow for ambiguous
// activity interpretations.
//
// A Session walks the user through an ordered list of questions one at a
// time, validates each typed answer, and folds the collected answers back
// into a finalized parse result. Nothing is emitted downstream until the
// session reaches a terminal state: completing raises confidence to the
// confirmed ceiling, skipping passes the original low-confidence fields
// through unchanged and flags them for review.
package clarify

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vitalog/vitalog/internal/parse"
)

// AnswerType constrains what a question accepts.
type AnswerType string

const (
	AnswerSelect  AnswerType = "select"
	AnswerNumber  AnswerType = "number"
	AnswerText    AnswerType = "text"
	AnswerBoolean AnswerType = "boolean"
	// AnswerList splits free text on commas and "and" into a []string,
	// for fields whose schema value is a list rather than a scalar.
	AnswerList AnswerType = "list"
)

// Question is a single follow-up prompt. ID doubles as the field key the
// answer fills in the finalized result.
type Question struct {
	ID         string     `json:"id"`
	Prompt     string     `json:"prompt"`
	AnswerType AnswerType `json:"answer_type"`
	Options    []string   `json:"options,omitempty"` // for AnswerSelect
}

// State is the session lifecycle position.
type State string

const (
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateSkipped   State = "skipped"
)

// DefaultIdleTTL is how long a session survives without activity. The
// upstream flow has no defined expiry, so abandonment falls to us: an
// expired session refuses further input and finalizes nothing, keeping the
// at-most-one-emission guarantee.
const DefaultIdleTTL = 10 * time.Minute

var (
	// ErrInvalidAnswer means the answer failed type validation. The session
	// stays on the same question; re-prompt.
	ErrInvalidAnswer = errors.New("answer does not match question type")

	// ErrSessionExpired means the idle TTL elapsed. The session is dead;
	// nothing will be stored for it.
	ErrSessionExpired = errors.New("clarification session expired")

	// ErrSessionClosed means the session already reached a terminal state.
	ErrSessionClosed = errors.New("clarification session already closed")

	// ErrSessionActive means Finalize was called before a terminal state.
	ErrSessionActive = errors.New("clarification session still active")
)

// Session is the mutable, transient state machine for one ambiguous result.
// It is scoped to a single pipeline invocation and never shared across
// concurrent submissions.
type Session struct {
	id        string
	original  *parse.Result
	questions []Question
	index     int
	answers   map[string]any
	state     State
	idleTTL   time.Duration
	lastSeen  time.Time
	now       func() time.Time // injectable clock for tests
}

// NewSession creates an active session over the given questions.
func NewSession(original *parse.Result, questions []Question, idleTTL time.Duration) (*Session, error) {
	if original == nil {
		return nil, fmt.Errorf("original result is required")
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("at least one question is required")
	}
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	s := &Session{
		id:        uuid.NewString(),
		original:  original,
		questions: questions,
		answers:   make(map[string]any, len(questions)),
		state:     StateActive,
		idleTTL:   idleTTL,
		now:       time.Now,
	}
	s.lastSeen = s.now()
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Original returns the pre-clarification result the session was opened for.
func (s *Session) Original() *parse.Result { return s.original }

// Expired reports whether the idle TTL has elapsed.
func (s *Session) Expired() bool {
	return s.state == StateActive && s.now().Sub(s.lastSeen) > s.idleTTL
}

// Current returns the question awaiting an answer. ok is false once the
// session has left the active state.
func (s *Session) Current() (Question, bool) {
	if s.state != StateActive || s.index >= len(s.questions) {
		return Question{}, false
	}
	return s.questions[s.index], true
}

// Progress returns the zero-based question index and the total count.
func (s *Session) Progress() (int, int) {
	return s.index, len(s.questions)
}

// Answer validates and records an answer for the current question, then
// advances. An invalid answer leaves the session on the same question with
// no state change.
func (s *Session) Answer(raw string) error {
	if err := s.checkActive(); err != nil {
		return err
	}

	q := s.questions[s.index]
	value, err := parseAnswer(q, raw)
	if err != nil {
		return err
	}

	s.answers[q.ID] = value
	s.lastSeen = s.now()
	s.index++
	if s.index >= len(s.questions) {
		s.state = StateCompleted
	}
	return nil
}

// Back steps to the previous question. Previously collected answers are
// retained; re-answering overwrites.
func (s *Session) Back() error {
	if err := s.checkActive(); err != nil {
		return err
	}
	if s.index > 0 {
		s.index--
	}
	s.lastSeen = s.now()
	return nil
}

// Skip abandons the remaining questions. The original fields survive
// unmodified; the finalized result is flagged for low-confidence storage.
func (s *Session) Skip() error {
	if err := s.checkActive(); err != nil {
		return err
	}
	s.state = StateSkipped
	return nil
}

func (s *Session) checkActive() error {
	if s.state != StateActive {
		return ErrSessionClosed
	}
	if s.Expired() {
		return ErrSessionExpired
	}
	return nil
}

// Finalize folds the session back into a new parse result.
//
// Completed: all collected answers are merged into the fields and the
// confidence is raised to confirmedCeiling — the user explicitly confirmed
// the interpretation. Skipped: the original fields and confidence pass
// through exactly. Either way the input result is never mutated.
func (s *Session) Finalize(confirmedCeiling float64) (*parse.Result, error) {
	switch s.state {
	case StateActive:
		if s.Expired() {
			return nil, ErrSessionExpired
		}
		return nil, ErrSessionActive
	case StateSkipped:
		return s.original.WithFields(s.original.Fields), nil
	case StateCompleted:
		merged := s.original.Fields.Clone()
		for key, value := range s.answers {
			// items is list-typed in the field schema; a free-text answer
			// for it merges as the split list, never a scalar string.
			if key == parse.FieldItems {
				if text, ok := value.(string); ok {
					value = splitListAnswer(text)
				}
			}
			merged[key] = value
		}
		out := s.original.WithFields(merged)
		out.Confidence = confirmedCeiling
		return out, nil
	}
	return nil, fmt.Errorf("unknown session state %q", s.state)
}

// Skipped reports whether the session ended by explicit skip.
func (s *Session) Skipped() bool { return s.state == StateSkipped }

// parseAnswer validates raw input against the question's answer type and
// returns the typed value to merge into the fields.
func parseAnswer(q Question, raw string) (any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty answer for %s question", ErrInvalidAnswer, q.AnswerType)
	}

	switch q.AnswerType {
	case AnswerNumber:
		v, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidAnswer, trimmed)
		}
		return v, nil

	case AnswerBoolean:
		switch strings.ToLower(trimmed) {
		case "yes", "y", "true":
			return true, nil
		case "no", "n", "false":
			return false, nil
		}
		return nil, fmt.Errorf("%w: %q is not yes/no", ErrInvalidAnswer, trimmed)

	case AnswerSelect:
		for _, opt := range q.Options {
			if strings.EqualFold(opt, trimmed) {
				return opt, nil
			}
		}
		return nil, fmt.Errorf("%w: %q is not one of %v", ErrInvalidAnswer, trimmed, q.Options)

	case AnswerText:
		return trimmed, nil

	case AnswerList:
		items := splitListAnswer(trimmed)
		if len(items) == 0 {
			return nil, fmt.Errorf("%w: %q names no items", ErrInvalidAnswer, trimmed)
		}
		return items, nil
	}

	return nil, fmt.Errorf("%w: unknown answer type %q", ErrInvalidAnswer, q.AnswerType)
}

// splitListAnswer breaks "pasta, bread and salad" into its named items.
func splitListAnswer(raw string) []string {
	var items []string
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' })
	for _, part := range parts {
		for _, piece := range strings.Split(part, " and ") {
			if item := strings.TrimSpace(piece); item != "" {
				items = append(items, item)
			}
		}
	}
	return items
}
