package pipeline

// Action is the confidence gate's verdict for one interpretation.
type Action string

const (
	// ActionCommit auto-logs the record with no user interaction.
	ActionCommit Action = "commit"
	// ActionClarify routes the result into a clarification session.
	ActionClarify Action = "clarify"
	// ActionStoreWithFlag persists the result as a low-confidence,
	// needs-review record. Nothing the user says is ever discarded.
	ActionStoreWithFlag Action = "store_with_flag"
)

// Thresholds are the confidence cut points. They are configuration, not
// constants baked into call sites: product tuning of the friction/quality
// trade-off is expected.
type Thresholds struct {
	// CommitFloor is the minimum confidence for silent auto-commit.
	CommitFloor float64 `yaml:"commit_floor"`
	// ClarifyFloor is the minimum confidence worth asking questions about;
	// below it the entry is stored flagged without bothering the user.
	ClarifyFloor float64 `yaml:"clarify_floor"`
	// ConfirmedCeiling is the confidence assigned after the user answers
	// every clarifying question.
	ConfirmedCeiling float64 `yaml:"confirmed_ceiling"`
}

// DefaultThresholds returns the reference cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CommitFloor:      0.80,
		ClarifyFloor:     0.50,
		ConfirmedCeiling: 0.95,
	}
}

// Valid reports whether the thresholds are ordered sensibly.
func (t Thresholds) Valid() bool {
	return t.ClarifyFloor >= 0 && t.ClarifyFloor < t.CommitFloor &&
		t.CommitFloor <= t.ConfirmedCeiling && t.ConfirmedCeiling <= 1
}

// Decide maps a result's confidence and completeness to an action. Pure
// function; no I/O.
//
// Below the clarify floor the verdict is StoreWithFlag unconditionally —
// a barely-understood entry gains nothing from a barrage of questions.
// Above the commit floor with complete fields, Commit. Everything between,
// and anything incomplete, clarifies when there is at least one question
// to ask and otherwise falls through to StoreWithFlag.
func (t Thresholds) Decide(confidence float64, complete, hasQuestions bool) Action {
	if confidence < t.ClarifyFloor {
		return ActionStoreWithFlag
	}
	if confidence >= t.CommitFloor && complete {
		return ActionCommit
	}
	if hasQuestions {
		return ActionClarify
	}
	return ActionStoreWithFlag
}
