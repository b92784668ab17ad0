package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewClientUnknownProvider(t *testing.T) {
	if _, err := NewClient(Options{Provider: "anthropic-mainframe"}); err == nil {
		t.Fatal("want error for unknown provider")
	}
}

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Stream {
			t.Error("streaming should be disabled")
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model":             req.Model,
			"message":           map[string]string{"role": "assistant", "content": "[]"},
			"done":              true,
			"prompt_eval_count": 120,
			"eval_count":        8,
		})
	}))
	defer srv.Close()

	client := NewOllamaClient(Options{Model: "qwen2.5-coder:7b", BaseURL: srv.URL})
	gen, err := client.Generate(context.Background(), "you are a reviewer", "analyze this")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.Text != "[]" {
		t.Errorf("text = %q", gen.Text)
	}
	if gen.PromptTokens != 120 || gen.CompletionTokens != 8 || gen.TokensUsed != 128 {
		t.Errorf("token counts = %d/%d/%d", gen.PromptTokens, gen.CompletionTokens, gen.TokensUsed)
	}
	if gen.Latency <= 0 {
		t.Error("latency should be positive")
	}
}

func TestOllamaGenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewOllamaClient(Options{Model: "missing", BaseURL: srv.URL})
	if _, err := client.Generate(context.Background(), "", "hi"); err == nil {
		t.Fatal("want error on non-200 response")
	}
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model": "gpt-4o-mini",
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": "[]"},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{
				"prompt_tokens":     200,
				"completion_tokens": 4,
				"total_tokens":      204,
			},
		})
	}))
	defer srv.Close()

	// Extra path segments must normalize away.
	client, err := NewOpenAIClient(Options{Model: "gpt-4o-mini", APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}
	gen, err := client.Generate(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.TokensUsed != 204 {
		t.Errorf("tokens = %d, want 204", gen.TokensUsed)
	}
	if gen.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", gen.Model)
	}
}

func TestOpenAIBaseURLNormalization(t *testing.T) {
	for _, base := range []string{
		"https://api.openai.com",
		"https://api.openai.com/",
		"https://api.openai.com/v1",
		"https://api.openai.com/v1/chat/completions",
	} {
		client, err := NewOpenAIClient(Options{BaseURL: base})
		if err != nil {
			t.Fatalf("NewOpenAIClient(%q): %v", base, err)
		}
		if client.baseURL != "https://api.openai.com/v1/chat/completions" {
			t.Errorf("base %q normalized to %q", base, client.baseURL)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := estimateTokens(strings.Repeat("a", 40)); got != 10 {
		t.Errorf("estimateTokens(40 chars) = %d, want 10", got)
	}
	if got := estimateTokens(""); got != 0 {
		t.Errorf("estimateTokens(empty) = %d, want 0", got)
	}
}
