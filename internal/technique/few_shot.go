package technique

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"defectlab/internal/llm"
	"defectlab/internal/model"
)

// Example is an annotated code sample shown to the model before the
// target code. Examples with no issues teach the model what clean code
// looks like, which matters as much as the positive cases.
type Example struct {
	ID          string        `json:"id"`
	Description string        `json:"description,omitempty"`
	Code        string        `json:"code"`
	Issues      []model.Issue `json:"issues"`
}

// FewShot prepends annotated examples to the prompt.
type FewShot struct {
	client llm.Client
	cfg    Config
}

func NewFewShot(client llm.Client, cfg Config) *FewShot {
	return &FewShot{client: client, cfg: cfg}
}

// Name includes the example count so few_shot_3 and few_shot_5 runs are
// distinguishable in results.
func (t *FewShot) Name() string {
	return fmt.Sprintf("few_shot_%d", len(t.cfg.Examples))
}

func (t *FewShot) Analyze(ctx context.Context, req model.AnalysisRequest) (model.AnalysisResult, error) {
	result, err := singlePass(ctx, t.client, t.Name(), systemPromptOrDefault(t.cfg), t.buildPrompt(req), req)
	if err != nil {
		return result, err
	}
	result.Metadata["num_examples"] = len(t.cfg.Examples)
	return result, nil
}

func (t *FewShot) buildPrompt(req model.AnalysisRequest) string {
	if len(t.cfg.Examples) == 0 {
		return withRequestContext(req, fmt.Sprintf("Analyze this code:\n\n%s", codeBlock(req.Language, req.Code)))
	}

	var b strings.Builder
	b.WriteString("Here are some examples:\n\n")
	for i, ex := range t.cfg.Examples {
		id := ex.ID
		if id == "" {
			id = fmt.Sprintf("example_%d", i+1)
		}
		fmt.Fprintf(&b, "Example %d (%s):\n", i+1, id)
		if ex.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", ex.Description)
		}
		b.WriteString(codeBlock(req.Language, ex.Code))
		b.WriteString("\n\n")

		if len(ex.Issues) == 0 {
			b.WriteString("Issues found: [] (clean code)\n\n")
		} else {
			encoded, err := json.MarshalIndent(ex.Issues, "", "  ")
			if err != nil {
				encoded = []byte("[]")
			}
			fmt.Fprintf(&b, "Issues found:\n%s\n\n", encoded)
		}
		b.WriteString("---\n\n")
	}

	fmt.Fprintf(&b, `Now analyze this target code:

%s

Respond with a JSON array of issues found. If no issues, respond with [].`, codeBlock(req.Language, req.Code))
	return withRequestContext(req, b.String())
}
