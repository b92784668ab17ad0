package experiment

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"defectlab/internal/model"
)

// perfectTechnique answers every example with exactly its annotations,
// looked up by file path.
type perfectTechnique struct {
	answers map[string][]model.Issue
}

func (t *perfectTechnique) Name() string { return "oracle" }

func (t *perfectTechnique) Analyze(_ context.Context, req model.AnalysisRequest) (model.AnalysisResult, error) {
	result := model.NewResult()
	result.Issues = t.answers[req.FilePath]
	result.RawResponse = "[]"
	result.Metadata["tokens_used"] = 100
	result.Metadata["latency"] = 0.25
	return result, nil
}

func TestRunnerEndToEnd(t *testing.T) {
	datasetDir := writeDatasetDir(t)
	outputDir := t.TempDir()

	ds, err := LoadDataset(datasetDir)
	if err != nil {
		t.Fatal(err)
	}
	oracle := &perfectTechnique{answers: map[string][]model.Issue{}}
	for _, ex := range ds.All() {
		oracle.answers[ex.FilePath] = ex.ExpectedIssues
	}

	runner, err := NewRunner(RunConfig{
		ExperimentID: "oracle_test",
		DatasetPath:  datasetDir,
		OutputDir:    outputDir,
		Parallelism:  2,
		LogPrompts:   true,
	}, oracle)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	metrics, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// A perfect technique scores 1.0 across the board.
	if metrics.Precision != 1.0 || metrics.Recall != 1.0 || metrics.F1 != 1.0 {
		t.Errorf("metrics = %+v, want perfect scores", metrics)
	}
	if metrics.TotalTokens != 200 {
		t.Errorf("total tokens = %d, want 200", metrics.TotalTokens)
	}

	// Results stay aligned with ground truth order despite parallelism.
	if len(runner.Results()) != 2 {
		t.Fatalf("results = %d", len(runner.Results()))
	}
	for i, gt := range runner.GroundTruth() {
		if len(runner.Results()[i].Issues) != len(gt.ExpectedIssues) {
			t.Errorf("result %d misaligned with ground truth %s", i, gt.ID)
		}
	}

	// Run artifacts on disk.
	runDir := filepath.Join(outputDir, runner.Config().RunID)
	var saved MetricsResult
	data, err := os.ReadFile(filepath.Join(runDir, "metrics.json"))
	if err != nil {
		t.Fatalf("reading metrics.json: %v", err)
	}
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("parsing metrics.json: %v", err)
	}
	if saved.ExperimentID != "oracle_test" {
		t.Errorf("saved experiment id = %q", saved.ExperimentID)
	}

	summary, err := os.ReadFile(filepath.Join(runDir, "summary.txt"))
	if err != nil {
		t.Fatalf("reading summary.txt: %v", err)
	}
	if !strings.Contains(string(summary), "Precision: 1.000") {
		t.Errorf("summary = %q", summary)
	}

	// Prompt log replays.
	entries, err := LoadPromptLog(filepath.Join(runDir, "oracle_test_prompts.jsonl"))
	if err != nil {
		t.Fatalf("LoadPromptLog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("prompt log entries = %d, want 2", len(entries))
	}
	for _, e := range entries {
		if e.ExperimentID != "oracle_test" || e.TokensUsed != 100 {
			t.Errorf("entry = %+v", e)
		}
	}
}

func TestRunnerGeneratesRunID(t *testing.T) {
	runner, err := NewRunner(RunConfig{
		DatasetPath: writeDatasetDir(t),
		OutputDir:   t.TempDir(),
	}, &perfectTechnique{answers: map[string][]model.Issue{}})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if runner.Config().RunID == "" {
		t.Error("run id should be generated")
	}
	if runner.Config().TechniqueName != "oracle" {
		t.Errorf("technique name = %q", runner.Config().TechniqueName)
	}
}

func TestPromptLoggerTotals(t *testing.T) {
	plog, err := NewPromptLogger(t.TempDir(), "totals")
	if err != nil {
		t.Fatal(err)
	}
	defer plog.Close()

	for i := 0; i < 3; i++ {
		if err := plog.Log(PromptLogEntry{ExampleID: "x", TokensUsed: 10, Latency: 0.5}); err != nil {
			t.Fatal(err)
		}
	}
	if plog.TotalTokens() != 30 {
		t.Errorf("total tokens = %d", plog.TotalTokens())
	}
	if plog.TotalLatency() != 1.5 {
		t.Errorf("total latency = %f", plog.TotalLatency())
	}
	if got := plog.EntriesForExample("x"); len(got) != 3 {
		t.Errorf("entries for example = %d", len(got))
	}
}
