package technique

import (
	"context"
	"fmt"

	"defectlab/internal/llm"
	"defectlab/internal/model"
)

// ZeroShot is the baseline: system prompt plus the bare code, no examples.
// Every other technique is measured against this one.
type ZeroShot struct {
	client llm.Client
	cfg    Config
}

func NewZeroShot(client llm.Client, cfg Config) *ZeroShot {
	return &ZeroShot{client: client, cfg: cfg}
}

func (t *ZeroShot) Name() string { return "zero_shot" }

func (t *ZeroShot) Analyze(ctx context.Context, req model.AnalysisRequest) (model.AnalysisResult, error) {
	userPrompt := fmt.Sprintf(`Analyze this code for issues:

%s

Respond with a JSON array of issues found. If no issues, respond with [].`, codeBlock(req.Language, req.Code))

	return singlePass(ctx, t.client, t.Name(), systemPromptOrDefault(t.cfg), withRequestContext(req, userPrompt), req)
}
