package llm

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"defectlab/internal/logging"
)

// GeminiClient generates completions through Google's Gemini API.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewGeminiClient creates a Gemini client. An API key is required.
func NewGeminiClient(ctx context.Context, opts Options) (*GeminiClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: opts.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	return &GeminiClient{
		client:      client,
		model:       model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}, nil
}

// Generate sends the prompts and returns the completion.
func (c *GeminiClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (Generation, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(c.temperature)),
		MaxOutputTokens: int32(c.maxTokens),
	}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	start := time.Now()
	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(userPrompt), config)
	if err != nil {
		return Generation{}, fmt.Errorf("gemini generate failed: %w", err)
	}
	latency := time.Since(start).Seconds()

	text := result.Text()
	if text == "" {
		return Generation{}, fmt.Errorf("empty gemini response")
	}

	promptTokens := estimateTokens(systemPrompt) + estimateTokens(userPrompt)
	completionTokens := estimateTokens(text)
	if result.UsageMetadata != nil {
		promptTokens = int(result.UsageMetadata.PromptTokenCount)
		completionTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}

	logging.APIDebug("gemini %s: %d+%d tokens in %.2fs", c.model, promptTokens, completionTokens, latency)

	return Generation{
		Text:             text,
		TokensUsed:       promptTokens + completionTokens,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		Latency:          latency,
		Model:            c.model,
	}, nil
}
