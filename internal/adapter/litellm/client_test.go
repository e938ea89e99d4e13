package litellm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opencouncil/councild/internal/config"
	"github.com/opencouncil/councild/internal/resilience"
)

func newTestClient(url string) *Client {
	return NewClient(config.Gateway{URL: url, MasterKey: "sk-test", Timeout: 5 * time.Second})
}

func completionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("expected bearer auth, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		resp := `{"model":"openai/gpt-4o-mini","choices":[{"message":{"content":` +
			marshalString(content) + `}}],"usage":{"prompt_tokens":100,"completion_tokens":50}}`
		_, _ = w.Write([]byte(resp))
	}))
}

func marshalString(s string) string {
	out := `"`
	for _, r := range s {
		switch r {
		case '"':
			out += `\"`
		case '\\':
			out += `\\`
		case '\n':
			out += `\n`
		default:
			out += string(r)
		}
	}
	return out + `"`
}

func TestChatCompletion(t *testing.T) {
	srv := completionServer(t, "hello from the council")
	defer srv.Close()

	c := newTestClient(srv.URL)
	resp, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{
		Model:    "openai/gpt-4o-mini",
		Messages: []ChatMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.Content != "hello from the council" {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if resp.TokensIn != 100 || resp.TokensOut != 50 {
		t.Errorf("unexpected usage %d/%d", resp.TokensIn, resp.TokensOut)
	}
}

func TestChatCompletionNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{Model: "m"})
	if KindOf(err) != ErrInvalidResponse {
		t.Fatalf("expected invalid_response, got %v", err)
	}
}

func TestChatCompletionRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{Model: "m"})
	if KindOf(err) != ErrRateLimited {
		t.Fatalf("expected rate_limited, got %v", err)
	}
	if !Retryable(err) {
		t.Error("rate_limited should be retryable")
	}
}

func TestStructured(t *testing.T) {
	srv := completionServer(t, "```json\n{\"score\": 0.72, \"recommendation\": \"approve\"}\n```")
	defer srv.Close()

	c := newTestClient(srv.URL)
	var out struct {
		Score          float64 `json:"score"`
		Recommendation string  `json:"recommendation"`
	}
	err := c.Structured(context.Background(), ChatCompletionRequest{Model: "m"}, &out)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Score != 0.72 {
		t.Errorf("expected score 0.72, got %v", out.Score)
	}
	if out.Recommendation != "approve" {
		t.Errorf("expected approve, got %q", out.Recommendation)
	}
}

func TestStructuredNoJSON(t *testing.T) {
	srv := completionServer(t, "I cannot answer in JSON today.")
	defer srv.Close()

	c := newTestClient(srv.URL)
	var out map[string]any
	err := c.Structured(context.Background(), ChatCompletionRequest{Model: "m"}, &out)
	if KindOf(err) != ErrInvalidResponse {
		t.Fatalf("expected invalid_response, got %v", err)
	}
}

func TestBreakerRejectsWhenOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.SetBreaker(resilience.NewBreaker(2, time.Minute))

	for i := 0; i < 2; i++ {
		_, _ = c.ChatCompletion(context.Background(), ChatCompletionRequest{Model: "m"})
	}

	_, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{Model: "m"})
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose wrapped", `Here you go: {"a":1} hope that helps`, `{"a":1}`},
		{"no json", "nothing here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.in); got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
