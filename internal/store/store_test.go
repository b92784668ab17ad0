package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"defectlab/internal/experiment"
	"defectlab/internal/model"
)

func TestMain(m *testing.M) {
	// go.opencensus.io (a transitive dependency) starts a background worker
	// goroutine in package init; it is not a leak from this package.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func newTestStore(t *testing.T) *ResultsStore {
	t.Helper()
	s, err := NewResultsStore(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun(runID, tech string, f1 float64) (experiment.RunConfig, experiment.MetricsResult) {
	cfg := experiment.RunConfig{
		RunID:         runID,
		ExperimentID:  "exp_" + runID,
		TechniqueName: tech,
		ModelName:     "qwen2.5-coder:7b",
		DatasetPath:   "testdata/ground_truth.json",
	}
	metrics := experiment.MetricsResult{
		ExperimentID:    cfg.ExperimentID,
		Precision:       f1,
		Recall:          f1,
		F1:              f1,
		TokenEfficiency: 0.4,
		AvgLatency:      1.2,
		TotalTokens:     5000,
		PerCategory: map[model.Category]experiment.CategoryMetrics{
			model.CategoryLogicErrors: {Precision: 0.9, Recall: 0.8, F1: 0.85},
			model.CategoryAPIMisuse:   {Precision: 0.5, Recall: 0.5, F1: 0.5},
		},
		Confusion: experiment.Confusion{TruePositives: 8, FalsePositives: 2, FalseNegatives: 3},
	}
	return cfg, metrics
}

func TestSaveAndGetRun(t *testing.T) {
	s := newTestStore(t)

	cfg, metrics := sampleRun("run1", "few_shot_5", 0.615)
	require.NoError(t, s.SaveRun(cfg, metrics))

	rec, err := s.GetRun("run1")
	require.NoError(t, err)
	assert.Equal(t, "few_shot_5", rec.Technique)
	assert.Equal(t, 0.615, rec.F1)
	assert.Equal(t, 5000, rec.TotalTokens)
	assert.Equal(t, 8, rec.TruePositives)
	assert.False(t, rec.CreatedAt.IsZero())

	cats, err := s.CategoryMetrics("run1")
	require.NoError(t, err)
	assert.Len(t, cats, 2)
	assert.Equal(t, 0.85, cats[model.CategoryLogicErrors].F1)
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestDuplicateRunIDRejected(t *testing.T) {
	s := newTestStore(t)
	cfg, metrics := sampleRun("dup", "zero_shot", 0.4)
	require.NoError(t, s.SaveRun(cfg, metrics))
	assert.Error(t, s.SaveRun(cfg, metrics))
}

func TestListAndBestRun(t *testing.T) {
	s := newTestStore(t)
	for _, r := range []struct {
		id   string
		tech string
		f1   float64
	}{
		{"r1", "zero_shot", 0.42},
		{"r2", "few_shot_5", 0.61},
		{"r3", "hybrid", 0.70},
		{"r4", "few_shot_5", 0.58},
	} {
		cfg, metrics := sampleRun(r.id, r.tech, r.f1)
		require.NoError(t, s.SaveRun(cfg, metrics))
	}

	all, err := s.ListRuns("", 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	fewShot, err := s.ListRuns("few_shot_5", 10)
	require.NoError(t, err)
	assert.Len(t, fewShot, 2)

	best, err := s.BestRun("")
	require.NoError(t, err)
	assert.Equal(t, "r3", best.RunID)

	bestFewShot, err := s.BestRun("few_shot_5")
	require.NoError(t, err)
	assert.Equal(t, "r2", bestFewShot.RunID)
}

func TestSaveAndLoadIssues(t *testing.T) {
	s := newTestStore(t)
	cfg, metrics := sampleRun("run_issues", "hybrid", 0.7)
	require.NoError(t, s.SaveRun(cfg, metrics))

	confidence := 0.85
	issues := []model.Issue{
		{
			Category:    model.CategoryLogicErrors,
			Severity:    model.SeverityHigh,
			Line:        42,
			Description: "loop bound is inclusive",
			Reasoning:   "the final iteration indexes one element past the end",
			Confidence:  &confidence,
		},
		{
			Category:    model.CategoryAPIMisuse,
			Severity:    model.SeverityMedium,
			Line:        7,
			Description: "return value of open ignored",
			Reasoning:   "a failed open is silently treated as success downstream",
		},
	}
	require.NoError(t, s.SaveIssues("run_issues", "ex1", issues))

	records, err := s.IssuesForRun("run_issues")
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Ordered by example then line.
	assert.Equal(t, 7, records[0].Issue.Line)
	assert.Nil(t, records[0].Issue.Confidence)
	assert.Equal(t, 42, records[1].Issue.Line)
	require.NotNil(t, records[1].Issue.Confidence)
	assert.Equal(t, 0.85, *records[1].Issue.Confidence)
	assert.Equal(t, model.CategoryLogicErrors, records[1].Issue.Category)
}

func TestDeleteRunCascades(t *testing.T) {
	s := newTestStore(t)
	cfg, metrics := sampleRun("doomed", "zero_shot", 0.3)
	require.NoError(t, s.SaveRun(cfg, metrics))
	require.NoError(t, s.SaveIssues("doomed", "ex1", []model.Issue{{
		Category:    model.CategoryLogicErrors,
		Severity:    model.SeverityLow,
		Line:        1,
		Description: "placeholder issue for cascade test",
		Reasoning:   "exists only to verify cascading deletes clean up issues",
	}}))

	require.NoError(t, s.DeleteRun("doomed"))

	_, err := s.GetRun("doomed")
	assert.ErrorIs(t, err, ErrRunNotFound)

	records, err := s.IssuesForRun("doomed")
	require.NoError(t, err)
	assert.Empty(t, records)

	assert.ErrorIs(t, s.DeleteRun("doomed"), ErrRunNotFound)
}
