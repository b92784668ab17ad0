package technique

import (
	"context"
	"fmt"
	"strings"

	"defectlab/internal/llm"
	"defectlab/internal/model"
)

// ChainOfThought asks the model to reason step by step inside <thinking>
// tags before emitting the JSON answer. The reasoning is captured in
// result metadata for later inspection.
type ChainOfThought struct {
	client llm.Client
	cfg    Config
}

func NewChainOfThought(client llm.Client, cfg Config) *ChainOfThought {
	return &ChainOfThought{client: client, cfg: cfg}
}

func (t *ChainOfThought) Name() string { return "chain_of_thought" }

func (t *ChainOfThought) Analyze(ctx context.Context, req model.AnalysisRequest) (model.AnalysisResult, error) {
	userPrompt := fmt.Sprintf(`Analyze this code using step-by-step reasoning:

%s

For each potential issue, think through:
1. What is this code doing?
2. What could go wrong?
3. Under what conditions would this fail?
4. What category does this belong to?
5. How severe is it?

First, show your reasoning in <thinking>...</thinking> tags.
Then, provide your final answer as a JSON array of issues.

Example format:
<thinking>
Looking at line 4, the loop condition uses <= against the container size.
Tracing the last iteration, the index equals size, which reads one past
the end. That makes the result wrong whenever the container is non-empty,
so this is a logic-errors issue with high severity.
</thinking>

[{"category": "logic-errors", "severity": "high", ...}]

Now analyze the code above:`, codeBlock(req.Language, req.Code))

	result, err := singlePass(ctx, t.client, t.Name(), systemPromptOrDefault(t.cfg), withRequestContext(req, userPrompt), req)
	if err != nil {
		return result, err
	}
	if thinking := extractThinking(result.RawResponse); thinking != "" {
		result.Metadata["chain_of_thought_reasoning"] = thinking
	}
	return result, nil
}

func extractThinking(response string) string {
	start := strings.Index(response, "<thinking>")
	end := strings.Index(response, "</thinking>")
	if start < 0 || end < start {
		return ""
	}
	return strings.TrimSpace(response[start+len("<thinking>") : end])
}
