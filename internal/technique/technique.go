// Package technique implements the prompting strategies under study.
// Each technique wraps the same LLM client with a different prompt
// construction: zero-shot baseline, few-shot examples, chain-of-thought
// reasoning, multi-pass self-critique, and a hybrid composition.
package technique

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"defectlab/internal/llm"
	"defectlab/internal/logging"
	"defectlab/internal/model"
)

// ErrUnknownTechnique is returned when a technique name is not registered.
var ErrUnknownTechnique = errors.New("unknown technique")

// Technique analyzes code with a particular prompting strategy.
type Technique interface {
	Name() string
	Analyze(ctx context.Context, req model.AnalysisRequest) (model.AnalysisResult, error)
}

// Config carries technique tuning knobs. Zero values select defaults.
type Config struct {
	SystemPrompt        string
	Examples            []Example
	ConfidenceThreshold float64
	FocusCategories     []model.Category
}

type factory func(client llm.Client, cfg Config) Technique

var registry = map[string]factory{
	"zero_shot":        func(c llm.Client, cfg Config) Technique { return NewZeroShot(c, cfg) },
	"few_shot":         func(c llm.Client, cfg Config) Technique { return NewFewShot(c, cfg) },
	"chain_of_thought": func(c llm.Client, cfg Config) Technique { return NewChainOfThought(c, cfg) },
	"multi_pass":       func(c llm.Client, cfg Config) Technique { return NewMultiPass(c, cfg) },
	"hybrid":           func(c llm.Client, cfg Config) Technique { return NewHybrid(c, cfg) },
}

// New creates a technique by name.
func New(name string, client llm.Client, cfg Config) (Technique, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownTechnique, name, Available())
	}
	return f(client, cfg), nil
}

// Available returns the registered technique names, sorted.
func Available() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// singlePass runs one generate call and parses the response. A response
// with no JSON array yields an empty issue list rather than an error so a
// chatty model does not sink the whole chunk.
func singlePass(ctx context.Context, client llm.Client, name, systemPrompt, userPrompt string, req model.AnalysisRequest) (model.AnalysisResult, error) {
	gen, err := client.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		return model.AnalysisResult{}, fmt.Errorf("%s generation failed: %w", name, err)
	}

	result := model.NewResult()
	result.RawResponse = gen.Text
	result.Metadata["technique"] = name
	result.Metadata["model"] = gen.Model
	result.Metadata["tokens_used"] = gen.TokensUsed
	result.Metadata["prompt_tokens"] = gen.PromptTokens
	result.Metadata["completion_tokens"] = gen.CompletionTokens
	result.Metadata["latency"] = gen.Latency
	if req.FilePath != "" {
		result.Metadata["file_path"] = req.FilePath
	}

	issues, err := llm.ParseIssues(gen.Text)
	if err != nil {
		logging.AnalyzerDebug("%s: unparseable response: %v", name, err)
		result.Metadata["parse_error"] = err.Error()
		return result, nil
	}
	result.Issues = issues
	return result, nil
}
