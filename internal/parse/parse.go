// Package parse provides deterministic, rule-based interpretation of
// free-text activity log entries for Vitalog.
//
// The parsing pipeline turns an utterance like "ran 5k in 25 minutes" into a
// structured result without requiring an LLM or external API:
// - Weight, sleep, water, and energy readings ("weight 175", "slept 7 hours")
// - Meals with recognized food items ("had eggs and toast for breakfast")
// - Workouts with distance and duration ("cycled 20 km in 45 mins")
// - Mood check-ins ("feeling great today")
//
// Each result links back to the original utterance for full traceability.
package parse

import (
	"strings"
)

// Kind is the closed set of loggable activity categories.
type Kind string

const (
	KindWeight  Kind = "weight"
	KindSleep   Kind = "sleep"
	KindWater   Kind = "water"
	KindEnergy  Kind = "energy"
	KindFood    Kind = "food"
	KindWorkout Kind = "workout"
	KindMood    Kind = "mood"
	KindUnknown Kind = "unknown"
)

// ValidKind reports whether s names a known activity kind.
func ValidKind(s string) bool {
	switch Kind(s) {
	case KindWeight, KindSleep, KindWater, KindEnergy,
		KindFood, KindWorkout, KindMood, KindUnknown:
		return true
	}
	return false
}

// Method records which stage of the pipeline produced a result.
type Method string

const (
	// MethodPattern marks results from the deterministic matchers.
	MethodPattern Method = "pattern"
	// MethodClassifier marks results from the probabilistic fallback.
	MethodClassifier Method = "classifier"
)

// Field keys used across kinds. Each kind defines its own required set;
// see Complete.
const (
	FieldValue           = "value"            // weight: numeric reading
	FieldUnit            = "unit"             // weight/water: normalized unit
	FieldHours           = "hours"            // sleep: duration in hours
	FieldAmount          = "amount"           // water: numeric amount
	FieldLevel           = "level"            // energy: integer 0-10
	FieldMeal            = "meal"             // food: breakfast/lunch/dinner/snack
	FieldItems           = "items"            // food: []string of recognized items
	FieldActivity        = "activity"         // workout: activity name
	FieldDistance        = "distance"         // workout: numeric distance
	FieldDistanceUnit    = "distance_unit"    // workout: km/miles/m
	FieldDurationMinutes = "duration_minutes" // workout: minutes
	FieldMood            = "mood"             // mood: vocabulary word
	FieldNotes           = "notes"            // mood: verbatim text
	FieldSpecific        = "specific"         // workout: bool, specific activity named
)

// Fields is a kind-dependent mapping from field name to typed value.
// Values are numbers (float64), strings, bools, or []string lists.
type Fields map[string]any

// Clone returns a deep copy. List values are copied, not shared.
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	out := make(Fields, len(f))
	for k, v := range f {
		if list, ok := v.([]string); ok {
			out[k] = append([]string(nil), list...)
			continue
		}
		out[k] = v
	}
	return out
}

// Number returns the named field as a float64, accepting any numeric type
// that survives a JSON round-trip.
func (f Fields) Number(key string) (float64, bool) {
	switch v := f[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Text returns the named field as a non-empty string.
func (f Fields) Text(key string) (string, bool) {
	s, ok := f[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// List returns the named field as a string list.
func (f Fields) List(key string) ([]string, bool) {
	switch v := f[key].(type) {
	case []string:
		return v, len(v) > 0
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, len(out) > 0
	default:
		return nil, false
	}
}

// Complete reports whether the fields satisfy the required schema for the
// given kind. Optional fields (workout distance, duration) never block
// completeness; partially clarified results fail this check until merged.
func (f Fields) Complete(kind Kind) bool {
	switch kind {
	case KindWeight:
		_, hasValue := f.Number(FieldValue)
		_, hasUnit := f.Text(FieldUnit)
		return hasValue && hasUnit
	case KindSleep:
		_, ok := f.Number(FieldHours)
		return ok
	case KindWater:
		_, hasAmount := f.Number(FieldAmount)
		_, hasUnit := f.Text(FieldUnit)
		return hasAmount && hasUnit
	case KindEnergy:
		_, ok := f.Number(FieldLevel)
		return ok
	case KindFood:
		_, hasMeal := f.Text(FieldMeal)
		_, hasItems := f.List(FieldItems)
		return hasMeal && hasItems
	case KindWorkout:
		_, ok := f.Text(FieldActivity)
		return ok
	case KindMood:
		_, ok := f.Text(FieldMood)
		return ok
	case KindUnknown:
		// Unknown has no schema; it is stored as raw text only.
		return false
	}
	return false
}

// Result is a single interpretation of one utterance. Results are immutable
// by convention: derive changed copies via WithFields and WithConfidence so
// the original survives as an audit trail.
type Result struct {
	Kind       Kind
	Fields     Fields
	Confidence float64
	RawText    string
	Method     Method
}

// Complete reports whether the result's fields satisfy its kind's schema.
func (r *Result) Complete() bool {
	return r.Fields.Complete(r.Kind)
}

// WithFields returns a copy of r carrying the given fields.
func (r *Result) WithFields(fields Fields) *Result {
	out := *r
	out.Fields = fields.Clone()
	return &out
}

// WithConfidence returns a copy of r carrying the given confidence.
func (r *Result) WithConfidence(confidence float64) *Result {
	out := *r
	out.Fields = r.Fields.Clone()
	out.Confidence = confidence
	return &out
}

// Unknown builds the terminal "could not interpret" result for raw.
func Unknown(raw string) *Result {
	return &Result{
		Kind:       KindUnknown,
		Fields:     Fields{},
		Confidence: 0,
		RawText:    raw,
		Method:     MethodClassifier,
	}
}

// Normalize lowercases, trims, and collapses internal whitespace runs to
// single spaces. Total over any string; empty input normalizes to itself.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
