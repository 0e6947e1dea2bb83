package parse

import "testing"

func TestDisambiguateSportRecoversSpecificName(t *testing.T) {
	// Classifier tagged only the generic category; the heuristic pass must
	// recover "tennis" from the original text.
	r := &Result{
		Kind:       KindWorkout,
		Fields:     Fields{FieldActivity: "sport", FieldDurationMinutes: 120.0},
		Confidence: 0.70,
		RawText:    "played tennis for 2 hours",
		Method:     MethodClassifier,
	}

	out := DisambiguateSport(r)
	if a, _ := out.Fields.Text(FieldActivity); a != "tennis" {
		t.Errorf("activity = %q, want tennis", a)
	}
	if specific, _ := out.Fields[FieldSpecific].(bool); !specific {
		t.Error("specific flag should be true after recovery")
	}
	// Unrelated fields survive the rewrite.
	if m, _ := out.Fields.Number(FieldDurationMinutes); m != 120 {
		t.Errorf("duration = %v, want 120", m)
	}
}

// TestDisambiguateSportNeverDegradesSpecific pins the regression the flag
// exists for: a specific name must never be replaced with a generic label.
func TestDisambiguateSportNeverDegradesSpecific(t *testing.T) {
	names := []string{"tennis", "bench press", "running", "yoga"}
	for _, name := range names {
		r := &Result{
			Kind:       KindWorkout,
			Fields:     Fields{FieldActivity: name},
			Confidence: 0.88,
			RawText:    "did some exercise: " + name,
			Method:     MethodPattern,
		}
		out := DisambiguateSport(r)
		if a, _ := out.Fields.Text(FieldActivity); a != name {
			t.Errorf("specific activity %q degraded to %q", name, a)
		}
		if specific, _ := out.Fields[FieldSpecific].(bool); !specific {
			t.Errorf("specific flag false for %q", name)
		}
	}
}

func TestDisambiguateSportGenericWithNoRecovery(t *testing.T) {
	r := &Result{
		Kind:       KindWorkout,
		Fields:     Fields{FieldActivity: "exercise"},
		Confidence: 0.65,
		RawText:    "did some exercise this morning",
		Method:     MethodClassifier,
	}
	out := DisambiguateSport(r)
	if a, _ := out.Fields.Text(FieldActivity); a != "exercise" {
		t.Errorf("activity = %q, want the original generic label kept", a)
	}
	if specific, ok := out.Fields[FieldSpecific].(bool); !ok || specific {
		t.Error("specific flag should be false when nothing was recovered")
	}
}

func TestDisambiguateSportLeavesOtherKindsAlone(t *testing.T) {
	r := &Result{
		Kind:       KindFood,
		Fields:     Fields{FieldMeal: "lunch", FieldItems: []string{"salad"}},
		Confidence: 0.85,
		RawText:    "salad for lunch",
		Method:     MethodPattern,
	}
	out := DisambiguateSport(r)
	if _, ok := out.Fields[FieldSpecific]; ok {
		t.Error("non-workout results must pass through untouched")
	}
}

func TestDisambiguateSportDoesNotMutateInput(t *testing.T) {
	r := &Result{
		Kind:       KindWorkout,
		Fields:     Fields{FieldActivity: "sport"},
		Confidence: 0.70,
		RawText:    "played squash at lunch",
		Method:     MethodClassifier,
	}
	_ = DisambiguateSport(r)
	if a, _ := r.Fields.Text(FieldActivity); a != "sport" {
		t.Errorf("input result mutated: activity = %q", a)
	}
	if _, ok := r.Fields[FieldSpecific]; ok {
		t.Error("input result mutated: specific flag set")
	}
}

func TestFindSportName(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"played tennis for 2 hours", "tennis"},
		{"did bench press and squats", "bench press"},
		{"went climbing with sam", "climbing"},
		{"just a regular day", ""},
	}
	for _, tt := range tests {
		if got := FindSportName(tt.text); got != tt.want {
			t.Errorf("FindSportName(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
