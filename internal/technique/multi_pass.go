package technique

import (
	"context"
	"encoding/json"
	"fmt"

	"defectlab/internal/llm"
	"defectlab/internal/model"
)

// DefaultConfidenceThreshold drops pass-2 issues the model itself is not
// sure about.
const DefaultConfidenceThreshold = 0.6

// MultiPass detects and then self-critiques. Pass 1 is told to be
// thorough; pass 2 reviews pass 1's findings against the original code,
// assigns confidence scores, and drops false positives. Issues without a
// confidence score survive the filter.
type MultiPass struct {
	client    llm.Client
	cfg       Config
	threshold float64
}

func NewMultiPass(client llm.Client, cfg Config) *MultiPass {
	threshold := cfg.ConfidenceThreshold
	if threshold == 0 {
		threshold = DefaultConfidenceThreshold
	}
	return &MultiPass{client: client, cfg: cfg, threshold: threshold}
}

func (t *MultiPass) Name() string { return "multi_pass" }

func (t *MultiPass) Analyze(ctx context.Context, req model.AnalysisRequest) (model.AnalysisResult, error) {
	pass1, err := t.detect(ctx, req)
	if err != nil {
		return model.AnalysisResult{}, err
	}
	if len(pass1.Issues) == 0 {
		return pass1, nil
	}

	pass2, err := t.critique(ctx, req, pass1.Issues)
	if err != nil {
		return model.AnalysisResult{}, err
	}

	kept := make([]model.Issue, 0, len(pass2.Issues))
	for _, issue := range pass2.Issues {
		if issue.Confidence == nil || *issue.Confidence >= t.threshold {
			kept = append(kept, issue)
		}
	}

	result := model.NewResult()
	result.Issues = kept
	result.RawResponse = fmt.Sprintf("PASS 1:\n%s\n\nPASS 2:\n%s", pass1.RawResponse, pass2.RawResponse)
	result.Metadata["technique"] = t.Name()
	result.Metadata["model"] = pass2.Metadata["model"]
	result.Metadata["pass1_issues"] = len(pass1.Issues)
	result.Metadata["pass2_issues"] = len(pass2.Issues)
	result.Metadata["pass1_tokens"] = pass1.MetaInt("tokens_used")
	result.Metadata["pass2_tokens"] = pass2.MetaInt("tokens_used")
	result.Metadata["tokens_used"] = pass1.MetaInt("tokens_used") + pass2.MetaInt("tokens_used")
	result.Metadata["pass1_latency"] = pass1.MetaFloat("latency")
	result.Metadata["pass2_latency"] = pass2.MetaFloat("latency")
	result.Metadata["latency"] = pass1.MetaFloat("latency") + pass2.MetaFloat("latency")
	result.Metadata["confidence_threshold"] = t.threshold
	if req.FilePath != "" {
		result.Metadata["file_path"] = req.FilePath
	}
	return result, nil
}

func (t *MultiPass) detect(ctx context.Context, req model.AnalysisRequest) (model.AnalysisResult, error) {
	userPrompt := fmt.Sprintf(`Analyze this code for potential issues:

%s

Be thorough - look for any potential issues, even if you're not 100%% certain.
Respond with a JSON array of issues.`, codeBlock(req.Language, req.Code))

	return singlePass(ctx, t.client, t.Name()+"_pass1", systemPromptOrDefault(t.cfg), withRequestContext(req, userPrompt), req)
}

func (t *MultiPass) critique(ctx context.Context, req model.AnalysisRequest, found []model.Issue) (model.AnalysisResult, error) {
	encoded, err := json.MarshalIndent(found, "", "  ")
	if err != nil {
		return model.AnalysisResult{}, fmt.Errorf("encoding pass 1 issues: %w", err)
	}

	systemPrompt := fmt.Sprintf(`%s

A previous analysis pass reported these issues:
%s

Your job is to review them, not to find new ones. For each issue, add a
"confidence" field between 0.0 and 1.0 reflecting how certain you are the
issue is real.`, systemPromptOrDefault(t.cfg), encoded)

	userPrompt := fmt.Sprintf(`Original code:
%s

Review each issue critically and assign confidence scores (0.0-1.0).
Remove false positives. Keep only high-confidence issues.`, codeBlock(req.Language, req.Code))

	return singlePass(ctx, t.client, t.Name()+"_pass2", systemPrompt, userPrompt, req)
}
