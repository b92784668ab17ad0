// Package model defines the value types shared by the chunking and
// analysis pipeline: detected issues, analysis requests, and analysis
// results with their open metadata bags.
package model

import (
	"errors"
	"fmt"
)

var (
	// ErrBadCategory is returned when a raw category string cannot be
	// normalized into the allowed set.
	ErrBadCategory = errors.New("category not normalizable")
)

// Severity represents how serious a detected issue is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ValidSeverity reports whether s is one of the allowed severity levels.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// SeverityRank returns a numeric rank for sorting (higher = more severe).
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Issue is a single defect reported by LLM analysis. Line numbers are
// 1-indexed and, once the pipeline completes, file-absolute.
type Issue struct {
	Category     Category `json:"category"`
	Severity     Severity `json:"severity"`
	Line         int      `json:"line"`
	Description  string   `json:"description"`
	Reasoning    string   `json:"reasoning"`
	SuggestedFix string   `json:"suggested_fix,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"`
}

// Minimum text lengths an issue must carry to be worth keeping. Anything
// shorter is LLM filler ("bad code", "fix this") with no review value.
const (
	MinDescriptionLen = 10
	MinReasoningLen   = 20
)

// Validate checks the producer-side contract for a constructed Issue.
func (i Issue) Validate() error {
	if !AllowedCategories[i.Category] {
		return fmt.Errorf("%w: %q", ErrBadCategory, i.Category)
	}
	if !ValidSeverity(i.Severity) {
		return fmt.Errorf("invalid severity %q", i.Severity)
	}
	if i.Line < 1 {
		return fmt.Errorf("line must be >= 1, got %d", i.Line)
	}
	if len(i.Description) < MinDescriptionLen {
		return fmt.Errorf("description too short (%d chars, need %d)", len(i.Description), MinDescriptionLen)
	}
	if len(i.Reasoning) < MinReasoningLen {
		return fmt.Errorf("reasoning too short (%d chars, need %d)", len(i.Reasoning), MinReasoningLen)
	}
	if i.Confidence != nil && (*i.Confidence < 0.0 || *i.Confidence > 1.0) {
		return fmt.Errorf("confidence out of range: %f", *i.Confidence)
	}
	return nil
}

// AnalysisRequest bundles the text sent to an analysis backend.
type AnalysisRequest struct {
	Code     string `json:"code"`
	FilePath string `json:"file_path"`
	Language string `json:"language"`
	Context  string `json:"context,omitempty"`
}

// AnalysisResult is the outcome of analyzing one chunk or one whole file.
//
// Metadata is an open string-keyed bag. Producers guarantee a minimal key
// set: the LLM layer always sets "tokens_used" and "latency" (and "error"
// on failure); the chunk analyzer adds "chunk_id", "chunk_start",
// "chunk_end"; the merger adds the aggregate keys documented in the merge
// package.
type AnalysisResult struct {
	Issues      []Issue        `json:"issues"`
	Metadata    map[string]any `json:"metadata"`
	RawResponse string         `json:"raw_response,omitempty"`
}

// NewResult returns an empty result with an initialized metadata map.
func NewResult() AnalysisResult {
	return AnalysisResult{Metadata: make(map[string]any)}
}

// IssueCount returns the total number of issues detected.
func (r AnalysisResult) IssueCount() int { return len(r.Issues) }

// CriticalCount returns the number of critical severity issues.
func (r AnalysisResult) CriticalCount() int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical {
			n++
		}
	}
	return n
}

// Failed reports whether the result carries an error marker.
func (r AnalysisResult) Failed() bool {
	_, ok := r.Metadata["error"]
	return ok
}

// MetaInt reads an integer metadata value, tolerating the numeric types
// that survive a JSON round trip. Missing or non-numeric values read as 0.
func (r AnalysisResult) MetaInt(key string) int {
	switch v := r.Metadata[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// MetaFloat reads a float metadata value with the same tolerance as MetaInt.
func (r AnalysisResult) MetaFloat(key string) float64 {
	switch v := r.Metadata[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// MetaString reads a string metadata value, or "" when absent.
func (r AnalysisResult) MetaString(key string) string {
	if v, ok := r.Metadata[key].(string); ok {
		return v
	}
	return ""
}
