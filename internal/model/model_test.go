package model

import (
	"errors"
	"testing"
)

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		raw     string
		want    Category
		wantErr bool
	}{
		// Identity
		{"logic-errors", CategoryLogicErrors, false},
		{"api-misuse", CategoryAPIMisuse, false},
		{"semantic-inconsistency", CategorySemanticInconsistency, false},
		{"edge-case-handling", CategoryEdgeCaseHandling, false},
		{"code-intent-mismatch", CategoryCodeIntentMismatch, false},

		// Common aliases
		{"code-quality", CategoryEdgeCaseHandling, false},
		{"logic-error", CategoryLogicErrors, false},
		{"resource-leak", CategoryAPIMisuse, false},
		{"misleading-name", CategorySemanticInconsistency, false},
		{"requirement-mismatch", CategoryCodeIntentMismatch, false},

		// Case, whitespace, separators
		{"  Logic-Error  ", CategoryLogicErrors, false},
		{"logic_error", CategoryLogicErrors, false},
		{"DIVISION_BY_ZERO", CategoryEdgeCaseHandling, false},

		// Keyword fallback
		{"boolean-condition-flipped", CategoryLogicErrors, false},
		{"possible-memory-leak-in-dtor", CategoryAPIMisuse, false},
		{"null-pointer-deref", CategoryEdgeCaseHandling, false},
		{"quality-concern", CategoryEdgeCaseHandling, false},

		// Rejected
		{"totally-unknown-xyz", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := NormalizeCategory(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("NormalizeCategory(%q) = %q, want error", tt.raw, got)
			} else if !errors.Is(err, ErrBadCategory) {
				t.Errorf("NormalizeCategory(%q) error = %v, want ErrBadCategory", tt.raw, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeCategory(%q) unexpected error: %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeCategory(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestIssueValidate(t *testing.T) {
	valid := Issue{
		Category:    CategoryLogicErrors,
		Severity:    SeverityHigh,
		Line:        10,
		Description: "off-by-one in loop bound",
		Reasoning:   "the loop uses <= where < is required, reading past the end",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid issue rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Issue)
	}{
		{"bad category", func(i *Issue) { i.Category = "style" }},
		{"bad severity", func(i *Issue) { i.Severity = "severe" }},
		{"zero line", func(i *Issue) { i.Line = 0 }},
		{"negative line", func(i *Issue) { i.Line = -3 }},
		{"short description", func(i *Issue) { i.Description = "bad" }},
		{"short reasoning", func(i *Issue) { i.Reasoning = "wrong" }},
		{"confidence too high", func(i *Issue) { c := 1.5; i.Confidence = &c }},
		{"confidence negative", func(i *Issue) { c := -0.1; i.Confidence = &c }},
	}

	for _, tt := range tests {
		issue := valid
		tt.mutate(&issue)
		if err := issue.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}

	// Confidence at the boundaries is allowed
	for _, c := range []float64{0.0, 1.0} {
		issue := valid
		conf := c
		issue.Confidence = &conf
		if err := issue.Validate(); err != nil {
			t.Errorf("confidence %v rejected: %v", c, err)
		}
	}
}

func TestResultMetaAccessors(t *testing.T) {
	r := NewResult()
	r.Metadata["tokens_used"] = 120
	r.Metadata["latency"] = 1.5
	r.Metadata["chunk_id"] = "big.cpp:main:1-40"

	if got := r.MetaInt("tokens_used"); got != 120 {
		t.Errorf("MetaInt(tokens_used) = %d, want 120", got)
	}
	if got := r.MetaFloat("latency"); got != 1.5 {
		t.Errorf("MetaFloat(latency) = %v, want 1.5", got)
	}
	if got := r.MetaString("chunk_id"); got != "big.cpp:main:1-40" {
		t.Errorf("MetaString(chunk_id) = %q", got)
	}

	// JSON round trips turn ints into float64; both directions must read
	r.Metadata["tokens_used"] = float64(99)
	if got := r.MetaInt("tokens_used"); got != 99 {
		t.Errorf("MetaInt(float64) = %d, want 99", got)
	}
	if got := r.MetaInt("missing"); got != 0 {
		t.Errorf("MetaInt(missing) = %d, want 0", got)
	}
	if r.Failed() {
		t.Error("Failed() = true without error key")
	}
	r.Metadata["error"] = "connection refused"
	if !r.Failed() {
		t.Error("Failed() = false with error key")
	}
}

func TestCriticalCount(t *testing.T) {
	r := AnalysisResult{Issues: []Issue{
		{Severity: SeverityCritical},
		{Severity: SeverityLow},
		{Severity: SeverityCritical},
	}}
	if got := r.CriticalCount(); got != 2 {
		t.Errorf("CriticalCount() = %d, want 2", got)
	}
	if got := r.IssueCount(); got != 3 {
		t.Errorf("IssueCount() = %d, want 3", got)
	}
}
