// Package llm adapts hosted language models to the one shape the fallback
// classifier needs: a system-primed completion that must come back as JSON.
// Every provider runs in JSON mode unconditionally; there is no free-form
// path. Providers speak their REST APIs over net/http directly.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// Request is a single structured completion.
type Request struct {
	System      string  // system prompt priming the model
	Prompt      string  // user content
	Temperature float64 // 0 = deterministic
	MaxTokens   int     // 0 leaves the provider default
}

// Provider issues completion requests against one hosted model.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	// Name is the provider/model label for logs, e.g. "google/gemini-2.5-flash".
	Name() string
}

// Config selects and configures a provider. An empty APIKey falls back to
// the provider's environment variables inside NewProvider.
type Config struct {
	Provider string // "google", "openrouter"
	Model    string // e.g., "gemini-2.5-flash", "openai/gpt-4o-mini"
	APIKey   string
	BaseURL  string // test servers override this
}

// NewProvider builds the provider named by cfg, filling in model and
// endpoint defaults.
func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "google":
		key := apiKey(cfg.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
		if key == "" {
			return nil, errors.New("google provider requires GEMINI_API_KEY or GOOGLE_API_KEY env var")
		}
		return &googleProvider{
			apiKey:  key,
			model:   fallback(cfg.Model, "gemini-2.5-flash"),
			baseURL: fallback(cfg.BaseURL, "https://generativelanguage.googleapis.com/v1beta"),
		}, nil

	case "openrouter":
		key := apiKey(cfg.APIKey, "OPENROUTER_API_KEY")
		if key == "" {
			return nil, errors.New("openrouter provider requires OPENROUTER_API_KEY env var")
		}
		return &openrouterProvider{
			apiKey:  key,
			model:   fallback(cfg.Model, "openai/gpt-4o-mini"),
			baseURL: fallback(cfg.BaseURL, "https://openrouter.ai/api/v1"),
		}, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (supported: google, openrouter)", cfg.Provider)
	}
}

// ParseLLMFlag parses a --llm flag value into a Config.
// Format: "provider/model" e.g., "google/gemini-2.5-flash",
// "openrouter/openai/gpt-4o-mini".
func ParseLLMFlag(flag string) (Config, error) {
	if flag == "" {
		return Config{Provider: "google", Model: "gemini-2.5-flash"}, nil
	}

	parts := strings.SplitN(flag, "/", 2)
	if len(parts) < 2 {
		return Config{}, fmt.Errorf("invalid --llm format %q: expected provider/model (e.g., google/gemini-2.5-flash)", flag)
	}

	provider := strings.ToLower(parts[0])
	model := parts[1]

	switch provider {
	case "google", "openrouter":
		return Config{Provider: provider, Model: model}, nil
	default:
		return Config{}, fmt.Errorf("unknown provider %q in --llm flag (supported: google, openrouter)", provider)
	}
}

// apiKey returns the explicit key, or the first of the named environment
// variables that is set.
func apiKey(explicit string, envVars ...string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range envVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// postJSON marshals payload, POSTs it with the given headers, and returns
// the response body. A non-200 status surfaces as an error carrying the
// body, which is where both providers put their failure detail.
func postJSON(ctx context.Context, client *http.Client, url string, header map[string]string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, respBody)
	}
	return respBody, nil
}
