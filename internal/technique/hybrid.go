package technique

import (
	"context"
	"fmt"
	"strings"

	"defectlab/internal/llm"
	"defectlab/internal/logging"
	"defectlab/internal/model"
	"defectlab/internal/technique/staticfilter"
)

// defaultFocusCategories are the ones where forcing explicit reasoning
// measurably helps over example-driven prompting.
var defaultFocusCategories = []model.Category{
	model.CategorySemanticInconsistency,
	model.CategoryCodeIntentMismatch,
}

// Hybrid composes the other techniques:
//
//	Pass 1: few-shot for broad coverage
//	Pass 2: chain-of-thought focused on the categories it is strong at
//	Pass 3: deduplicate, score confidence, filter
//
// Mechanically-detectable issues are stripped at the end so the result
// measures semantic value only.
type Hybrid struct {
	fewShot   *FewShot
	cot       *ChainOfThought
	focus     map[model.Category]bool
	threshold float64
}

func NewHybrid(client llm.Client, cfg Config) *Hybrid {
	threshold := cfg.ConfidenceThreshold
	if threshold == 0 {
		threshold = DefaultConfidenceThreshold
	}

	categories := cfg.FocusCategories
	if len(categories) == 0 {
		categories = defaultFocusCategories
	}
	focus := make(map[model.Category]bool, len(categories))
	for _, c := range categories {
		focus[c] = true
	}

	return &Hybrid{
		fewShot:   NewFewShot(client, cfg),
		cot:       NewChainOfThought(client, Config{SystemPrompt: cfg.SystemPrompt}),
		focus:     focus,
		threshold: threshold,
	}
}

func (t *Hybrid) Name() string { return "hybrid" }

func (t *Hybrid) Analyze(ctx context.Context, req model.AnalysisRequest) (model.AnalysisResult, error) {
	fewShotResult, err := t.fewShot.Analyze(ctx, req)
	if err != nil {
		return model.AnalysisResult{}, err
	}

	all := append([]model.Issue{}, fewShotResult.Issues...)
	totalTokens := fewShotResult.MetaInt("tokens_used")
	totalLatency := fewShotResult.MetaFloat("latency")

	// The focused pass can time out without sinking the run; few-shot
	// results alone are still useful.
	cotIssues := 0
	cotResult, err := t.focusedPass(ctx, req)
	if err != nil {
		logging.AnalyzerDebug("hybrid: focused pass failed: %v", err)
	} else {
		all = append(all, cotResult.Issues...)
		cotIssues = len(cotResult.Issues)
		totalTokens += cotResult.MetaInt("tokens_used")
		totalLatency += cotResult.MetaFloat("latency")
	}

	deduped := dedupeByLineCategory(all)
	scored := scoreConfidence(deduped)

	kept := make([]model.Issue, 0, len(scored))
	for _, issue := range scored {
		if issue.Confidence != nil && *issue.Confidence < t.threshold {
			continue
		}
		kept = append(kept, issue)
	}
	kept = staticfilter.FilterIssues(kept, nil)

	result := model.NewResult()
	result.Issues = kept
	result.Metadata["technique"] = t.Name()
	result.Metadata["tokens_used"] = totalTokens
	result.Metadata["latency"] = totalLatency
	result.Metadata["pass1_issues"] = len(fewShotResult.Issues)
	result.Metadata["pass2_issues"] = cotIssues
	result.Metadata["deduplicated"] = len(deduped)
	result.Metadata["after_confidence_filter"] = len(kept)
	if req.FilePath != "" {
		result.Metadata["file_path"] = req.FilePath
	}
	return result, nil
}

// focusedPass runs chain-of-thought steered at the focus categories and
// keeps only issues in those categories.
func (t *Hybrid) focusedPass(ctx context.Context, req model.AnalysisRequest) (model.AnalysisResult, error) {
	names := make([]string, 0, len(t.focus))
	for c := range t.focus {
		names = append(names, string(c))
	}

	focused := req
	focused.Code = fmt.Sprintf(`Focus specifically on these categories: %s

Code to analyze:
%s`, strings.Join(names, ", "), req.Code)

	result, err := t.cot.Analyze(ctx, focused)
	if err != nil {
		return model.AnalysisResult{}, err
	}

	kept := result.Issues[:0]
	for _, issue := range result.Issues {
		if t.focus[issue.Category] {
			kept = append(kept, issue)
		}
	}
	result.Issues = kept
	return result, nil
}

// dedupeByLineCategory keeps one issue per (line, category), preferring
// the one with the longest reasoning.
func dedupeByLineCategory(issues []model.Issue) []model.Issue {
	type key struct {
		line     int
		category model.Category
	}

	index := make(map[key]int, len(issues))
	out := make([]model.Issue, 0, len(issues))
	for _, issue := range issues {
		k := key{issue.Line, issue.Category}
		if i, seen := index[k]; seen {
			if len(issue.Reasoning) > len(out[i].Reasoning) {
				out[i] = issue
			}
			continue
		}
		index[k] = len(out)
		out = append(out, issue)
	}
	return out
}

// scoreConfidence assigns a heuristic confidence: 0.7 baseline, nudged
// by severity, clamped to [0, 1].
func scoreConfidence(issues []model.Issue) []model.Issue {
	out := make([]model.Issue, len(issues))
	for i, issue := range issues {
		confidence := 0.7
		switch issue.Severity {
		case model.SeverityCritical:
			confidence += 0.05
		case model.SeverityLow:
			confidence -= 0.1
		}
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
		issue.Confidence = &confidence
		out[i] = issue
	}
	return out
}
