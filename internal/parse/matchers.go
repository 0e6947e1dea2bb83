package parse

import (
	"regexp"
	"strconv"
	"strings"
)

// Matcher is a deterministic extractor for one activity kind. TryMatch
// receives normalized text and returns nil when the matcher's anchor
// condition is not satisfied. A matcher never errors: malformed text after a
// present anchor yields best-effort fields or nil, never a panic.
type Matcher interface {
	Name() string
	TryMatch(text string) *Result
}

// Fixed confidences per matcher. Deterministic lexical matches are treated
// as near-certain, distinct from probabilistic fallback results.
// Numeric-anchored matchers score higher than keyword-anchored ones because
// a number plus unit is less ambiguous than a keyword hit.
const (
	EnergyConfidence  = 0.95
	SleepConfidence   = 0.93
	WeightConfidence  = 0.92
	WaterConfidence   = 0.90
	WorkoutConfidence = 0.88
	FoodConfidence    = 0.85
	MoodConfidence    = 0.82
)

// Matchers returns the pattern matchers in priority order. First match wins.
//
// The order is load-bearing: a bare number must not be misread as weight
// when it is actually "energy 7/10", so numeric matchers with explicit
// anchors run before the permissive weight matcher, and keyword-anchored
// matchers run last. Adding a matcher requires a conscious ordering
// decision here; the order is pinned by TestMatcherPriorityOrder.
func Matchers() []Matcher {
	return []Matcher{
		energyMatcher{},
		sleepMatcher{},
		waterMatcher{},
		weightMatcher{},
		foodMatcher{},
		workoutMatcher{},
		moodMatcher{},
	}
}

// FirstMatch runs the matchers in priority order against normalized text and
// returns the first hit, or nil when no anchor condition is satisfied.
func FirstMatch(text string) *Result {
	for _, m := range Matchers() {
		if r := m.TryMatch(text); r != nil {
			return r
		}
	}
	return nil
}

// --- Energy ---

// energyRE anchors on the literal word "energy" followed by an integer.
// An optional "/10" suffix is accepted and ignored.
var energyRE = regexp.MustCompile(`\benergy\b\s*(?:is|at|level)?\s*(\d+)\s*(?:/\s*10)?`)

type energyMatcher struct{}

func (energyMatcher) Name() string { return "energy" }

func (energyMatcher) TryMatch(text string) *Result {
	m := energyRE.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	level, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &Result{
		Kind:       KindEnergy,
		Fields:     Fields{FieldLevel: level},
		Confidence: EnergyConfidence,
		RawText:    text,
		Method:     MethodPattern,
	}
}

// --- Sleep ---

// sleepRE anchors on "slept"/"sleep" followed by a numeric value. The unit
// word is optional and implicitly hours.
var sleepRE = regexp.MustCompile(`\b(?:slept|sleep)\b\s*(?:for)?\s*(\d+(?:\.\d+)?)\s*(?:hours|hour|hrs|hr)?`)

type sleepMatcher struct{}

func (sleepMatcher) Name() string { return "sleep" }

func (sleepMatcher) TryMatch(text string) *Result {
	m := sleepRE.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	hours, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &Result{
		Kind:       KindSleep,
		Fields:     Fields{FieldHours: hours},
		Confidence: SleepConfidence,
		RawText:    text,
		Method:     MethodPattern,
	}
}

// --- Water ---

// waterAmountRE matches a numeric amount plus a recognized liquid unit.
// The literal word "water" must also appear in the text so unrelated
// quantities ("ran 2 miles") are never claimed as hydration.
var (
	waterAmountRE = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(oz|ounces|ounce|ml|milliliters|cups|cup|liters|liter|litres|litre|l)\b`)
	waterWordRE   = regexp.MustCompile(`\bwater\b`)
)

type waterMatcher struct{}

func (waterMatcher) Name() string { return "water" }

func (waterMatcher) TryMatch(text string) *Result {
	if !waterWordRE.MatchString(text) {
		return nil
	}
	m := waterAmountRE.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	amount, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &Result{
		Kind:       KindWater,
		Fields:     Fields{FieldAmount: amount, FieldUnit: normalizeWaterUnit(m[2])},
		Confidence: WaterConfidence,
		RawText:    text,
		Method:     MethodPattern,
	}
}

// normalizeWaterUnit maps a raw unit token to {liters, cups, ml, oz} by
// substring priority: liter/l first, then cup, then ml, defaulting to oz.
func normalizeWaterUnit(unit string) string {
	switch {
	case strings.Contains(unit, "liter") || strings.Contains(unit, "litre") || unit == "l":
		return "liters"
	case strings.Contains(unit, "cup"):
		return "cups"
	case strings.Contains(unit, "ml") || strings.Contains(unit, "milliliter"):
		return "ml"
	default:
		return "oz"
	}
}

// --- Weight ---

// weightRE matches the whole utterance: an optional leading "weight", a
// numeric value, and an optional unit token. The whole-string anchor keeps
// a bare number from matching inside longer utterances that belong to other
// matchers.
var weightRE = regexp.MustCompile(`^(?:weight\s+)?(\d+(?:\.\d+)?)\s*([a-z]+)?$`)

type weightMatcher struct{}

func (weightMatcher) Name() string { return "weight" }

func (weightMatcher) TryMatch(text string) *Result {
	m := weightRE.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	// Unit token containing "k" (kg, kilos, kilograms) means kilograms;
	// anything else, including no token at all, means pounds.
	unit := "lbs"
	if strings.Contains(m[2], "k") {
		unit = "kg"
	}
	return &Result{
		Kind:       KindWeight,
		Fields:     Fields{FieldValue: value, FieldUnit: unit},
		Confidence: WeightConfidence,
		RawText:    text,
		Method:     MethodPattern,
	}
}

// --- Food ---

// mealKeywords anchor the food matcher. The meal type is the keyword that
// appears earliest in the text.
var mealKeywords = []string{"breakfast", "lunch", "dinner", "snack"}

// foodVocabulary is the fixed list of recognized food words. Words outside
// this list are dropped (see the generic placeholder below).
var foodVocabulary = []string{
	"eggs", "toast", "bacon", "oatmeal", "cereal", "pancakes", "waffles",
	"yogurt", "granola", "banana", "apple", "orange", "berries", "smoothie",
	"coffee", "tea", "juice",
	"sandwich", "salad", "soup", "wrap", "burrito", "sushi",
	"chicken", "beef", "steak", "fish", "salmon", "tuna", "pork", "tofu",
	"rice", "pasta", "noodles", "potatoes", "fries", "bread",
	"pizza", "burger", "tacos", "curry", "stir fry",
	"cheese", "hummus", "nuts", "almonds", "peanut butter",
	"chips", "cookies", "chocolate", "ice cream", "protein bar", "protein shake",
	"vegetables", "broccoli", "spinach", "carrots", "avocado",
}

type foodMatcher struct{}

func (foodMatcher) Name() string { return "food" }

func (foodMatcher) TryMatch(text string) *Result {
	meal := ""
	mealIdx := -1
	for _, kw := range mealKeywords {
		if idx := indexOfWord(text, kw); idx >= 0 && (mealIdx < 0 || idx < mealIdx) {
			meal = kw
			mealIdx = idx
		}
	}
	if meal == "" {
		return nil
	}

	items := ExtractFoodItems(text)
	if len(items) == 0 {
		// Keyword present but nothing in the vocabulary matched. Emit a
		// single generic placeholder rather than an empty list.
		items = []string{"unspecified food"}
	}

	return &Result{
		Kind:       KindFood,
		Fields:     Fields{FieldMeal: meal, FieldItems: items},
		Confidence: FoodConfidence,
		RawText:    text,
		Method:     MethodPattern,
	}
}

// ExtractFoodItems membership-tests the food vocabulary against the text,
// returning matches in vocabulary order. Multi-word entries ("peanut
// butter") match as phrases.
func ExtractFoodItems(text string) []string {
	var items []string
	for _, item := range foodVocabulary {
		if indexOfWord(text, item) >= 0 {
			items = append(items, item)
		}
	}
	return items
}

// indexOfWord returns the byte index of the first word-boundary occurrence
// of word in text, or -1.
func indexOfWord(text, word string) int {
	for start := 0; start < len(text); {
		idx := strings.Index(text[start:], word)
		if idx < 0 {
			return -1
		}
		idx += start
		end := idx + len(word)
		beforeOK := idx == 0 || !isWordByte(text[idx-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return idx
		}
		start = idx + 1
	}
	return -1
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// --- Workout ---

// workoutVerbs maps each recognized verb to its activity name. "played" and
// the bare "workout"/"exercised" anchors map to the generic "sport" bucket;
// the disambiguator attempts to recover a specific name afterwards.
var workoutVerbs = []struct {
	verb     string
	activity string
}{
	{"running", "running"},
	{"ran", "running"},
	{"run", "running"},
	{"jogged", "running"},
	{"jogging", "running"},
	{"walked", "walking"},
	{"walking", "walking"},
	{"hiked", "hiking"},
	{"hiking", "hiking"},
	{"cycled", "cycling"},
	{"cycling", "cycling"},
	{"biked", "cycling"},
	{"biking", "cycling"},
	{"swam", "swimming"},
	{"swimming", "swimming"},
	{"lifted", "lifting"},
	{"lifting", "lifting"},
	{"played", "sport"},
	{"exercised", "sport"},
	{"workout", "sport"},
}

var (
	// distanceRE extracts number+unit with k/km/mi/miles/m/meters tokens.
	distanceRE = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(km|k|mi|miles|mile|meters|m)\b`)
	// durationRE extracts number+unit with minute/hour tokens.
	durationRE = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(minutes|mins|min|hours|hour|hrs|hr)\b`)
)

type workoutMatcher struct{}

func (workoutMatcher) Name() string { return "workout" }

func (workoutMatcher) TryMatch(text string) *Result {
	activity := ""
	for _, wv := range workoutVerbs {
		// Word-boundary semantics: "ran" must not match inside "orange".
		if indexOfWord(text, wv.verb) >= 0 {
			activity = wv.activity
			break
		}
	}
	if activity == "" {
		return nil
	}

	fields := Fields{FieldActivity: activity}

	// Duration first so "25 minutes" is not consumed as a distance by the
	// bare "m" token in distanceRE.
	durStart := -1
	if m := durationRE.FindStringSubmatchIndex(text); m != nil {
		durStart = m[0]
		sub := durationRE.FindStringSubmatch(text)
		if minutes, err := strconv.ParseFloat(sub[1], 64); err == nil {
			if strings.HasPrefix(sub[2], "h") {
				minutes *= 60
			}
			fields[FieldDurationMinutes] = minutes
		}
	}

	for _, m := range distanceRE.FindAllStringSubmatchIndex(text, -1) {
		if m[0] == durStart {
			continue
		}
		value := text[m[2]:m[4]]
		unit := text[m[4]:m[5]]
		if dist, err := strconv.ParseFloat(value, 64); err == nil {
			fields[FieldDistance] = dist
			fields[FieldDistanceUnit] = normalizeDistanceUnit(unit)
			break
		}
	}

	return &Result{
		Kind:       KindWorkout,
		Fields:     fields,
		Confidence: WorkoutConfidence,
		RawText:    text,
		Method:     MethodPattern,
	}
}

// normalizeDistanceUnit maps a raw distance token to {km, miles, m}.
func normalizeDistanceUnit(unit string) string {
	switch unit {
	case "k", "km":
		return "km"
	case "mi", "mile", "miles":
		return "miles"
	default:
		return "m"
	}
}

// --- Mood ---

// moodVocabulary is the small fixed list of recognized mood words.
var moodVocabulary = []string{"great", "good", "bad", "terrible", "tired"}

var feelingRE = regexp.MustCompile(`\b(?:feeling|feel|felt)\b`)

type moodMatcher struct{}

func (moodMatcher) Name() string { return "mood" }

func (moodMatcher) TryMatch(text string) *Result {
	if !feelingRE.MatchString(text) {
		return nil
	}
	mood := "okay"
	for _, word := range moodVocabulary {
		if indexOfWord(text, word) >= 0 {
			mood = word
			break
		}
	}
	return &Result{
		Kind: KindMood,
		// The full text rides along as notes; mood words alone lose too
		// much ("feeling tired after the deadline crunch").
		Fields:     Fields{FieldMood: mood, FieldNotes: text},
		Confidence: MoodConfidence,
		RawText:    text,
		Method:     MethodPattern,
	}
}
