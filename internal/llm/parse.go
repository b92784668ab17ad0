package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"defectlab/internal/logging"
	"defectlab/internal/model"
)

// rawIssue mirrors the JSON shape models are asked to produce. Line is a
// float64 because models sometimes emit it as a JSON number with a fraction.
type rawIssue struct {
	Category     string   `json:"category"`
	Severity     string   `json:"severity"`
	Line         float64  `json:"line"`
	Description  string   `json:"description"`
	Reasoning    string   `json:"reasoning"`
	SuggestedFix string   `json:"suggested_fix"`
	Confidence   *float64 `json:"confidence"`
}

// ExtractJSONArray pulls the first JSON array out of a model response,
// tolerating prose and markdown fences around it.
func ExtractJSONArray(text string) (string, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON array found in response")
	}
	return text[start : end+1], nil
}

// ParseIssues extracts and validates issues from a raw model response.
// Malformed entries are dropped individually so one bad issue does not
// discard the rest. A response with no array at all is an error; an empty
// or fully-invalid array yields an empty slice.
func ParseIssues(response string) ([]model.Issue, error) {
	arr, err := ExtractJSONArray(response)
	if err != nil {
		return nil, err
	}

	var raws []rawIssue
	if err := json.Unmarshal([]byte(arr), &raws); err != nil {
		return nil, fmt.Errorf("failed to parse issue array: %w", err)
	}

	issues := make([]model.Issue, 0, len(raws))
	for i, r := range raws {
		cat, err := model.NormalizeCategory(r.Category)
		if err != nil {
			logging.APIDebug("dropping issue %d: %v", i, err)
			continue
		}

		sev := model.Severity(strings.ToLower(strings.TrimSpace(r.Severity)))
		if sev == "" {
			sev = model.SeverityMedium
		}

		issue := model.Issue{
			Category:     cat,
			Severity:     sev,
			Line:         int(r.Line),
			Description:  strings.TrimSpace(r.Description),
			Reasoning:    strings.TrimSpace(r.Reasoning),
			SuggestedFix: strings.TrimSpace(r.SuggestedFix),
			Confidence:   r.Confidence,
		}
		if err := issue.Validate(); err != nil {
			logging.APIDebug("dropping issue %d: %v", i, err)
			continue
		}
		issues = append(issues, issue)
	}
	return issues, nil
}
