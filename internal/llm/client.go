// Package llm provides clients for the text-completion backends the
// analysis techniques run against: Ollama (default), OpenAI-compatible
// servers, and Gemini. It also parses structured issues out of the noisy
// JSON the models return.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Client is the minimal completion capability techniques consume.
type Client interface {
	// Generate sends system and user prompts and returns the completion
	// with token and latency accounting. systemPrompt may be empty.
	Generate(ctx context.Context, systemPrompt, userPrompt string) (Generation, error)
}

// Generation is one completion with its accounting.
type Generation struct {
	Text             string
	TokensUsed       int
	PromptTokens     int
	CompletionTokens int
	Latency          float64 // seconds
	Model            string
}

// Options configures a client independent of any provider.
type Options struct {
	Provider    string // "ollama", "openai", "gemini"
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Defaults applied when an option is left zero.
const (
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 2000
	DefaultTimeout     = 300 * time.Second
)

func (o *Options) applyDefaults() {
	if o.Temperature == 0 {
		o.Temperature = DefaultTemperature
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
}

// NewClient creates a client for the configured provider.
func NewClient(opts Options) (Client, error) {
	opts.applyDefaults()
	switch strings.ToLower(opts.Provider) {
	case "", "ollama":
		return NewOllamaClient(opts), nil
	case "openai":
		return NewOpenAIClient(opts)
	case "gemini":
		return NewGeminiClient(context.Background(), opts)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", opts.Provider)
	}
}

// estimateTokens approximates a token count from text length. One token
// is roughly four characters; used when the server reports no usage.
func estimateTokens(text string) int {
	return len(text) / 4
}
