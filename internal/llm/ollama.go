package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"defectlab/internal/logging"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaClient talks to a local Ollama server via its native chat API.
type OllamaClient struct {
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// NewOllamaClient creates an Ollama client. The base URL comes from
// opts.BaseURL, then OLLAMA_HOST, then the local default.
func NewOllamaClient(opts Options) *OllamaClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_HOST")
	}
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	return &OllamaClient{
		model:       opts.Model,
		baseURL:     baseURL,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		httpClient:  &http.Client{Timeout: opts.Timeout},
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error,omitempty"`
}

// Generate sends a chat request and returns the completion.
func (c *OllamaClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (Generation, error) {
	messages := make([]ollamaMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: userPrompt})

	payload, err := json.Marshal(ollamaRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Options:  ollamaOptions{Temperature: c.temperature, NumPredict: c.maxTokens},
	})
	if err != nil {
		return Generation{}, fmt.Errorf("marshaling request: %w", err)
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return Generation{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Generation{}, fmt.Errorf("sending request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Generation{}, fmt.Errorf("reading response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return Generation{}, fmt.Errorf("ollama error (status %d): %s", httpResp.StatusCode, string(respBody))
	}

	var result ollamaResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return Generation{}, fmt.Errorf("parsing response: %w", err)
	}
	if result.Error != "" {
		return Generation{}, fmt.Errorf("ollama error: %s", result.Error)
	}

	latency := time.Since(start).Seconds()

	promptTokens := result.PromptEvalCount
	completionTokens := result.EvalCount
	if promptTokens == 0 {
		promptTokens = estimateTokens(systemPrompt) + estimateTokens(userPrompt)
	}
	if completionTokens == 0 {
		completionTokens = estimateTokens(result.Message.Content)
	}

	logging.APIDebug("ollama %s: %d+%d tokens in %.2fs", c.model, promptTokens, completionTokens, latency)

	return Generation{
		Text:             result.Message.Content,
		TokensUsed:       promptTokens + completionTokens,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		Latency:          latency,
		Model:            c.model,
	}, nil
}
