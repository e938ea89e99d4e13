package litellm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ChatMessage is one turn in a chat completion conversation.
type ChatMessage struct {
	Role    string `json:"role"` // system | user | assistant
	Content string `json:"content"`
}

// ChatCompletionRequest is an OpenAI-compatible chat completion request.
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`

	// JSONMode asks the gateway for a json_object response format.
	JSONMode bool `json:"-"`
}

// ChatCompletionResponse is the parsed result of a chat completion.
type ChatCompletionResponse struct {
	Content   string
	Model     string
	TokensIn  int
	TokensOut int
}

type wireRequest struct {
	Model          string        `json:"model"`
	Messages       []ChatMessage `json:"messages"`
	Temperature    float64       `json:"temperature,omitempty"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

// ChatCompletion runs one chat completion through the gateway.
func (c *Client) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	wire := wireRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		wire.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal chat completion: %w", err)
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/v1/chat/completions", body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &GatewayError{Kind: ErrInvalidResponse, Message: "unparseable completion: " + err.Error()}
	}
	if len(result.Choices) == 0 {
		return nil, &GatewayError{Kind: ErrInvalidResponse, Message: "completion has no choices"}
	}

	return &ChatCompletionResponse{
		Content:   result.Choices[0].Message.Content,
		Model:     result.Model,
		TokensIn:  result.Usage.PromptTokens,
		TokensOut: result.Usage.CompletionTokens,
	}, nil
}

// Structured runs a JSON-mode completion and unmarshals the model output
// into out. Fenced or prose-wrapped JSON is tolerated; a response with no
// JSON object at all is an invalid_response.
func (c *Client) Structured(ctx context.Context, req ChatCompletionRequest, out any) error {
	req.JSONMode = true

	resp, err := c.ChatCompletion(ctx, req)
	if err != nil {
		return err
	}

	raw := extractJSON(resp.Content)
	if raw == "" {
		return &GatewayError{Kind: ErrInvalidResponse, Message: "no JSON object in completion"}
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return &GatewayError{Kind: ErrInvalidResponse, Message: "malformed JSON in completion: " + err.Error()}
	}
	return nil
}

// extractJSON pulls the first JSON object out of model output, stripping
// markdown fences when present.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}
