package classify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vitalog/vitalog/internal/clarify"
	"github.com/vitalog/vitalog/internal/llm"
	"github.com/vitalog/vitalog/internal/parse"
)

// mockProvider implements llm.Provider for classifier tests.
type mockProvider struct {
	response   string
	err        error
	delay      time.Duration
	calls      int
	lastPrompt string
}

func (m *mockProvider) Complete(ctx context.Context, req llm.Request) (string, error) {
	m.calls++
	m.lastPrompt = req.Prompt
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockProvider) Name() string { return "mock/classifier" }

func TestClassifyParsesStructuredResponse(t *testing.T) {
	provider := &mockProvider{response: `{
		"kind": "food",
		"confidence": 0.72,
		"fields": {"meal": "lunch", "items": ["salad", "chicken"]},
		"questions": [
			{"id": "meal", "prompt": "Which meal was this?", "answer_type": "select", "options": ["breakfast", "lunch", "dinner", "snack"]}
		]
	}`}

	c := NewLLMClassifier(provider, Opts{})
	cls := c.Classify(context.Background(), "big bowl of greens around noon", Context{})

	if cls.Result.Kind != parse.KindFood {
		t.Fatalf("kind = %v, want food", cls.Result.Kind)
	}
	if cls.Result.Confidence != 0.72 {
		t.Errorf("confidence = %v, want 0.72", cls.Result.Confidence)
	}
	if cls.Result.Method != parse.MethodClassifier {
		t.Errorf("method = %v, want classifier", cls.Result.Method)
	}
	if meal, _ := cls.Result.Fields.Text(parse.FieldMeal); meal != "lunch" {
		t.Errorf("meal = %q, want lunch", meal)
	}
	items, _ := cls.Result.Fields.List(parse.FieldItems)
	if len(items) != 2 {
		t.Errorf("items = %v, want 2 entries", items)
	}
	if len(cls.Questions) != 1 || cls.Questions[0].AnswerType != clarify.AnswerSelect {
		t.Errorf("questions = %+v, want one select question", cls.Questions)
	}
}

func TestClassifyStripsMarkdownFences(t *testing.T) {
	provider := &mockProvider{response: "```json\n{\"kind\": \"mood\", \"confidence\": 0.8, \"fields\": {\"mood\": \"good\", \"notes\": \"pretty solid day\"}}\n```"}

	c := NewLLMClassifier(provider, Opts{})
	cls := c.Classify(context.Background(), "pretty solid day", Context{})

	if cls.Result.Kind != parse.KindMood {
		t.Fatalf("kind = %v, want mood", cls.Result.Kind)
	}
}

// TestClassifyAbsorbsFailures: timeout, transport errors, and garbage
// responses all collapse to unknown/0.0 — never an error.
func TestClassifyAbsorbsFailures(t *testing.T) {
	tests := []struct {
		name     string
		provider *mockProvider
		opts     Opts
	}{
		{"transport error", &mockProvider{err: errors.New("connection refused")}, Opts{}},
		{"timeout", &mockProvider{delay: time.Second, response: "{}"}, Opts{Timeout: 20 * time.Millisecond}},
		{"garbage response", &mockProvider{response: "I think this is probably food?"}, Opts{}},
		{"invalid kind", &mockProvider{response: `{"kind": "sandwich", "confidence": 0.9}`}, Opts{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewLLMClassifier(tt.provider, tt.opts)
			cls := c.Classify(context.Background(), "asdfghjkl qwerty", Context{})
			if cls == nil {
				t.Fatal("Classify must never return nil")
			}
			if cls.Result.Kind != parse.KindUnknown {
				t.Errorf("kind = %v, want unknown", cls.Result.Kind)
			}
			if cls.Result.Confidence != 0 {
				t.Errorf("confidence = %v, want 0", cls.Result.Confidence)
			}
			if cls.Result.RawText != "asdfghjkl qwerty" {
				t.Errorf("raw text lost: %q", cls.Result.RawText)
			}
		})
	}
}

func TestClassifyClampsConfidence(t *testing.T) {
	provider := &mockProvider{response: `{"kind": "sleep", "confidence": 1.7, "fields": {"hours": 8}}`}
	c := NewLLMClassifier(provider, Opts{})
	cls := c.Classify(context.Background(), "decent night", Context{})
	if cls.Result.Confidence != 1.0 {
		t.Errorf("confidence = %v, want clamped to 1.0", cls.Result.Confidence)
	}
}

func TestClassifyDedupCache(t *testing.T) {
	provider := &mockProvider{response: `{"kind": "mood", "confidence": 0.85, "fields": {"mood": "good", "notes": "x"}}`}
	c := NewLLMClassifier(provider, Opts{Cache: NewCache(time.Minute)})

	pctx := Context{Profile: Profile{UserID: "u1"}}
	first := c.Classify(context.Background(), "same entry", pctx)
	second := c.Classify(context.Background(), "same entry", pctx)

	if provider.calls != 1 {
		t.Errorf("provider called %d times, want 1 (cache hit)", provider.calls)
	}
	if first.Result.Kind != second.Result.Kind {
		t.Errorf("cached result differs")
	}

	// Cached copies must not share mutable fields.
	second.Result.Fields[parse.FieldMood] = "terrible"
	third := c.Classify(context.Background(), "same entry", pctx)
	if mood, _ := third.Result.Fields.Text(parse.FieldMood); mood != "good" {
		t.Errorf("cache entry was mutated through a returned copy: %q", mood)
	}

	// Different user, same text: separate cache key.
	c.Classify(context.Background(), "same entry", Context{Profile: Profile{UserID: "u2"}})
	if provider.calls != 2 {
		t.Errorf("provider called %d times, want 2 (per-user keying)", provider.calls)
	}
}

func TestBuildPromptIncludesContext(t *testing.T) {
	provider := &mockProvider{response: `{"kind": "unknown", "confidence": 0.1}`}
	c := NewLLMClassifier(provider, Opts{})

	c.Classify(context.Background(), "usual thing", Context{
		Profile: Profile{UserID: "u1", WeightUnit: "kg"},
		RecentLogs: []RecentLog{
			{Kind: parse.KindWorkout, RawText: "ran 5k", LoggedAt: time.Now()},
		},
		Patterns: []string{"runs weekday mornings"},
	})

	for _, want := range []string{"usual thing", "kg", "ran 5k", "runs weekday mornings"} {
		if !strings.Contains(provider.lastPrompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, provider.lastPrompt)
		}
	}
}

func TestClassifyEmptyInput(t *testing.T) {
	provider := &mockProvider{response: `{"kind": "food", "confidence": 0.9}`}
	c := NewLLMClassifier(provider, Opts{})

	cls := c.Classify(context.Background(), "   ", Context{})
	if cls.Result.Kind != parse.KindUnknown {
		t.Errorf("kind = %v, want unknown for empty input", cls.Result.Kind)
	}
	if provider.calls != 0 {
		t.Errorf("provider should not be called for empty input")
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced no lang", "```\n{\"a\":1}\n```", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripFences(tt.input); got != tt.want {
				t.Errorf("stripFences = %q, want %q", got, tt.want)
			}
		})
	}
}
