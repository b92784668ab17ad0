package technique

import (
	"fmt"

	"defectlab/internal/model"
)

// DefaultSystemPrompt instructs the model to report only semantic defects,
// the kind that require understanding what the code is meant to do.
const DefaultSystemPrompt = `You are an expert code reviewer focused on semantic defects. Analyze code for issues in these categories:

**Categories:**
- logic-errors: off-by-one errors, inverted conditions, wrong operators, incorrect loop bounds
- api-misuse: calling functions with wrong arguments, ignoring error returns, violating API contracts
- semantic-inconsistency: code whose behavior contradicts its name, comments, or surrounding logic
- edge-case-handling: missing checks for empty input, boundary values, overflow, or unusual states
- code-intent-mismatch: code that compiles and runs but does not do what it was clearly intended to do

**Severity Levels:**
- critical: produces wrong results or crashes in normal operation
- high: wrong results under common conditions
- medium: wrong results under uncommon but plausible conditions
- low: minor inconsistency unlikely to cause visible failures

**Response Format:**
Respond with a JSON array of issues. Each issue must have:
- category: one of the above categories
- severity: critical, high, medium, or low
- line: line number where the issue occurs (1-indexed)
- description: brief description (10-50 words)
- reasoning: detailed explanation of why this is an issue (20-100 words)

If no issues are found, respond with an empty array: []

**Important:**
Do NOT report style, formatting, or issues a compiler or linter would catch. Focus on defects that require understanding the code's intent.`

func systemPromptOrDefault(cfg Config) string {
	if cfg.SystemPrompt != "" {
		return cfg.SystemPrompt
	}
	return DefaultSystemPrompt
}

func codeBlock(language, code string) string {
	if language == "" {
		language = "cpp"
	}
	return fmt.Sprintf("```%s\n%s\n```", language, code)
}

// withRequestContext prepends request context (static pre-filter findings
// and the like) to a user prompt. Chunk context travels inside req.Code,
// so this only fires for context set by the caller.
func withRequestContext(req model.AnalysisRequest, prompt string) string {
	if req.Context == "" {
		return prompt
	}
	return req.Context + "\n\n" + prompt
}
