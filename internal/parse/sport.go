package parse

import "strings"

// genericActivityLabels are category words that carry no storage value on
// their own. A workout result whose activity is one of these gets a second
// heuristic pass before it is accepted as generic.
var genericActivityLabels = map[string]bool{
	"sport":    true,
	"sports":   true,
	"exercise": true,
	"cardio":   true,
	"workout":  true,
	"training": true,
}

// sportKeywords is the heuristic recovery vocabulary: common sport and
// exercise names searched for in the original utterance when only a generic
// category was identified. Multi-word entries first so "bench press" wins
// over any single-word fragment.
var sportKeywords = []string{
	"bench press", "ice skating", "rock climbing", "table tennis",
	"tennis", "basketball", "soccer", "football", "volleyball", "baseball",
	"badminton", "squash", "golf", "hockey", "rugby", "cricket",
	"swimming", "rowing", "boxing", "climbing", "skiing", "snowboarding",
	"surfing", "skating", "pilates", "yoga", "crossfit", "spinning",
	"deadlift", "squats", "pullups", "pushups",
}

// DisambiguateSport refines a workout-kind result: it decides whether a
// specific activity name was identified versus a bare category label, and
// records the outcome on the FieldSpecific flag.
//
// When only the generic category is present, one additional keyword pass
// runs over the original text before giving up. A specific name, once
// present, is never replaced with a generic label — losing "tennis" to
// "sport" at this stage was a real regression and is pinned by tests.
//
// Non-workout results pass through untouched.
func DisambiguateSport(r *Result) *Result {
	if r == nil || r.Kind != KindWorkout {
		return r
	}

	activity, _ := r.Fields.Text(FieldActivity)
	if activity != "" && !genericActivityLabels[strings.ToLower(activity)] {
		out := r.WithFields(r.Fields)
		out.Fields[FieldSpecific] = true
		return out
	}

	// Generic category only: try to recover a specific name from the text.
	if name := FindSportName(Normalize(r.RawText)); name != "" {
		out := r.WithFields(r.Fields)
		out.Fields[FieldActivity] = name
		out.Fields[FieldSpecific] = true
		return out
	}

	out := r.WithFields(r.Fields)
	out.Fields[FieldSpecific] = false
	return out
}

// FindSportName returns the first sport keyword present in normalized text,
// or "" when none match.
func FindSportName(text string) string {
	for _, kw := range sportKeywords {
		if indexOfWord(text, kw) >= 0 {
			return kw
		}
	}
	return ""
}
