// Package classify provides the LLM-backed fallback for utterances no
// pattern matcher claims.
//
// The classifier is a black box behind a hard boundary: it always produces
// exactly one result, including the explicit "unknown" outcome, and any
// timeout, transport, or parse failure is absorbed into unknown/0.0 rather
// than surfacing as an error. Nothing downstream of this package ever sees
// a classifier exception.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/vitalog/vitalog/internal/clarify"
	"github.com/vitalog/vitalog/internal/llm"
	"github.com/vitalog/vitalog/internal/parse"
)

const (
	// DefaultTimeout bounds a single classification call. Expiry is a
	// normal unknown result, not a failure.
	DefaultTimeout = 8 * time.Second

	// DefaultCacheTTL is how long a classification is reused for an
	// identical utterance from the same user.
	DefaultCacheTTL = 5 * time.Minute
)

const systemPrompt = `You are an activity log interpreter for a personal wellness tracker. The user typed or dictated a short free-text entry. Classify it into exactly one activity kind and extract structured fields.

KINDS AND FIELDS:
- weight: {"value": number, "unit": "lbs"|"kg"}
- sleep: {"hours": number}
- water: {"amount": number, "unit": "oz"|"ml"|"cups"|"liters"}
- energy: {"level": number 0-10}
- food: {"meal": "breakfast"|"lunch"|"dinner"|"snack", "items": [strings]}
- workout: {"activity": string, "distance": number?, "distance_unit": "km"|"miles"|"m"?, "duration_minutes": number?}
- mood: {"mood": string, "notes": string}
- unknown: {} (use when the entry is not a loggable activity)

RULES:
- Pick ONE kind. Use "unknown" with low confidence when nothing fits.
- Extract only what the text states; never invent values.
- For workouts, prefer the specific sport or exercise name over a category
  word like "sport" or "cardio".
- Confidence 0.0-1.0 reflects how sure you are of BOTH kind and fields.
- When confidence is moderate (0.5-0.8) or a required field is missing,
  include clarifying questions the app can ask, e.g. which meal, what sport.
  Each question's "id" is the field it fills; "answer_type" is one of
  "select", "number", "text", "boolean", or "list" (use "list" for "items").

Return ONLY a JSON object:
{
  "kind": "food",
  "confidence": 0.7,
  "fields": {"meal": "lunch", "items": ["salad"]},
  "questions": [
    {"id": "meal", "prompt": "Which meal was this?", "answer_type": "select", "options": ["breakfast", "lunch", "dinner", "snack"]}
  ]
}`

// Context is the explicit, tagged prior-context structure handed to the
// classifier. Everything in it is optional; a zero Context is valid.
type Context struct {
	Profile    Profile
	RecentLogs []RecentLog
	Patterns   []string // e.g. "usually logs a run on weekday mornings"
}

// Profile carries the slice of user profile the classifier may condition on.
type Profile struct {
	UserID     string
	WeightUnit string // preferred unit, "lbs" or "kg"
}

// RecentLog is one prior entry offered to the classifier as context.
type RecentLog struct {
	Kind     parse.Kind
	RawText  string
	LoggedAt time.Time
}

// Classification is the classifier's complete output: the result plus any
// clarifying questions for moderate-confidence interpretations.
type Classification struct {
	Result    *parse.Result
	Questions []clarify.Question
}

// Classifier turns an unmatched utterance into a classification.
// Implementations absorb their own failures; Classify never returns nil.
type Classifier interface {
	Classify(ctx context.Context, normalized string, pctx Context) *Classification
}

// Opts configures the LLM classifier.
type Opts struct {
	Timeout  time.Duration  // per-call budget (default: DefaultTimeout)
	Cache    *gocache.Cache // optional bounded TTL dedup cache, caller-owned
	CacheTTL time.Duration  // TTL for cache entries (default: DefaultCacheTTL)
}

// NewCache builds a dedup cache suitable for Opts.Cache. It is passed into
// the classifier by reference — there is deliberately no package-level
// singleton.
func NewCache(ttl time.Duration) *gocache.Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return gocache.New(ttl, 2*ttl)
}

// LLMClassifier implements Classifier over an llm.Provider.
type LLMClassifier struct {
	provider llm.Provider
	opts     Opts
}

// NewLLMClassifier creates a classifier backed by the given provider.
func NewLLMClassifier(provider llm.Provider, opts Opts) *LLMClassifier {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	return &LLMClassifier{provider: provider, opts: opts}
}

// Classify sends the utterance to the model and parses the structured
// response. All failure modes collapse to unknown/0.0.
func (c *LLMClassifier) Classify(ctx context.Context, normalized string, pctx Context) *Classification {
	if c.provider == nil || strings.TrimSpace(normalized) == "" {
		return unknownClassification(normalized)
	}

	cacheKey := pctx.Profile.UserID + "|" + normalized
	if c.opts.Cache != nil {
		if cached, ok := c.opts.Cache.Get(cacheKey); ok {
			if cls, ok := cached.(*Classification); ok {
				return cloneClassification(cls)
			}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	response, err := c.provider.Complete(callCtx, llm.Request{
		System:      systemPrompt,
		Prompt:      buildPrompt(normalized, pctx),
		Temperature: 0.1,
		MaxTokens:   1024,
	})
	if err != nil {
		// Timeout or transport failure: a normal unknown outcome.
		return unknownClassification(normalized)
	}

	cls, err := parseResponse(response, normalized)
	if err != nil {
		return unknownClassification(normalized)
	}

	if c.opts.Cache != nil {
		c.opts.Cache.Set(cacheKey, cloneClassification(cls), c.opts.CacheTTL)
	}
	return cls
}

// buildPrompt constructs the user message with the utterance and any prior
// context worth conditioning on.
func buildPrompt(normalized string, pctx Context) string {
	var sb strings.Builder
	sb.WriteString("ENTRY: ")
	sb.WriteString(normalized)
	sb.WriteString("\n")

	if pctx.Profile.WeightUnit != "" {
		fmt.Fprintf(&sb, "PREFERRED WEIGHT UNIT: %s\n", pctx.Profile.WeightUnit)
	}
	if len(pctx.RecentLogs) > 0 {
		sb.WriteString("RECENT ENTRIES:\n")
		for _, log := range pctx.RecentLogs {
			fmt.Fprintf(&sb, "- [%s] %s\n", log.Kind, log.RawText)
		}
	}
	if len(pctx.Patterns) > 0 {
		sb.WriteString("KNOWN HABITS:\n")
		for _, p := range pctx.Patterns {
			fmt.Fprintf(&sb, "- %s\n", p)
		}
	}

	sb.WriteString("\nClassify the entry. Return JSON only.")
	return sb.String()
}

// classifyResponse is the JSON the LLM returns.
type classifyResponse struct {
	Kind       string             `json:"kind"`
	Confidence float64            `json:"confidence"`
	Fields     map[string]any     `json:"fields"`
	Questions  []clarify.Question `json:"questions"`
}

// parseResponse parses the LLM's JSON (with markdown stripping) and
// validates it into a Classification.
func parseResponse(raw, normalized string) (*Classification, error) {
	cleaned := stripFences(raw)

	var resp classifyResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, fmt.Errorf("invalid JSON from LLM: %w", err)
	}

	kind := strings.ToLower(strings.TrimSpace(resp.Kind))
	if !parse.ValidKind(kind) {
		return nil, fmt.Errorf("invalid kind %q from LLM", resp.Kind)
	}

	confidence := resp.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	fields := parse.Fields{}
	for k, v := range resp.Fields {
		fields[k] = v
	}

	result := &parse.Result{
		Kind:       parse.Kind(kind),
		Fields:     fields,
		Confidence: confidence,
		RawText:    normalized,
		Method:     parse.MethodClassifier,
	}

	questions := make([]clarify.Question, 0, len(resp.Questions))
	for _, q := range resp.Questions {
		if q.ID == "" || q.Prompt == "" {
			continue
		}
		if !validAnswerType(q.AnswerType) {
			q.AnswerType = clarify.AnswerText
		}
		questions = append(questions, q)
	}

	return &Classification{Result: result, Questions: questions}, nil
}

func validAnswerType(t clarify.AnswerType) bool {
	switch t {
	case clarify.AnswerSelect, clarify.AnswerNumber, clarify.AnswerText, clarify.AnswerBoolean, clarify.AnswerList:
		return true
	}
	return false
}

// stripFences removes a surrounding markdown code fence, which several
// models emit despite the JSON-only instruction.
func stripFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}

	lines := strings.Split(cleaned, "\n")
	start, end := 0, len(lines)
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if start == 0 {
				start = i + 1
			} else {
				end = i
				break
			}
		}
	}
	if start > 0 && end > start {
		cleaned = strings.Join(lines[start:end], "\n")
	}
	return strings.TrimSpace(cleaned)
}

func unknownClassification(normalized string) *Classification {
	return &Classification{Result: parse.Unknown(normalized)}
}

func cloneClassification(cls *Classification) *Classification {
	out := &Classification{
		Result:    cls.Result.WithFields(cls.Result.Fields),
		Questions: append([]clarify.Question(nil), cls.Questions...),
	}
	return out
}
