package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// openrouterProvider targets OpenRouter's OpenAI-compatible chat endpoint.
// JSON output is requested through response_format json_object.
type openrouterProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  http.Client
}

type orRequest struct {
	Model          string        `json:"model"`
	Messages       []orMessage   `json:"messages"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat orResponseFmt `json:"response_format"`
}

type orMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type orResponseFmt struct {
	Type string `json:"type"`
}

type orResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *orError `json:"error,omitempty"`
}

type orError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func (o *openrouterProvider) Name() string {
	return "openrouter/" + o.model
}

func (o *openrouterProvider) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]orMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, orMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, orMessage{Role: "user", Content: req.Prompt})

	payload := orRequest{
		Model:          o.model,
		Messages:       messages,
		MaxTokens:      req.MaxTokens,
		Temperature:    req.Temperature,
		ResponseFormat: orResponseFmt{Type: "json_object"},
	}

	headers := map[string]string{
		"Authorization": "Bearer " + o.apiKey,
		"X-Title":       "Vitalog",
	}
	respBody, err := postJSON(ctx, &o.client, o.baseURL+"/chat/completions", headers, payload)
	if err != nil {
		return "", fmt.Errorf("openrouter API: %w", err)
	}

	var orResp orResponse
	if err := json.Unmarshal(respBody, &orResp); err != nil {
		return "", fmt.Errorf("parsing openrouter response: %w", err)
	}
	if orResp.Error != nil {
		return "", fmt.Errorf("openrouter API error: %s", orResp.Error.Message)
	}
	if len(orResp.Choices) == 0 {
		return "", fmt.Errorf("empty response from openrouter API")
	}
	return strings.TrimSpace(orResp.Choices[0].Message.Content), nil
}
