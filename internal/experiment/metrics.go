package experiment

import (
	"fmt"

	"defectlab/internal/model"
)

// DefaultLineTolerance allows detected line numbers to differ from the
// annotation by this much and still count as a match.
const DefaultLineTolerance = 1

// ExampleMetrics are the match counts and derived rates for one example.
type ExampleMetrics struct {
	TruePositives  int     `json:"true_positives"`
	FalsePositives int     `json:"false_positives"`
	FalseNegatives int     `json:"false_negatives"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	F1             float64 `json:"f1"`
}

// CategoryMetrics are per-category rates in an aggregate result.
type CategoryMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Confusion is the aggregate confusion matrix. True negatives are not
// meaningful for defect detection and are omitted.
type Confusion struct {
	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	FalseNegatives int `json:"false_negatives"`
}

// MetricsResult is the full outcome of an experiment run.
type MetricsResult struct {
	ExperimentID    string                             `json:"experiment_id"`
	Precision       float64                            `json:"precision"`
	Recall          float64                            `json:"recall"`
	F1              float64                            `json:"f1"`
	TokenEfficiency float64                            `json:"token_efficiency"` // true positives per 1K tokens
	AvgLatency      float64                            `json:"latency"`
	TotalTokens     int                                `json:"total_tokens"`
	PerCategory     map[model.Category]CategoryMetrics `json:"per_category_metrics"`
	Confusion       Confusion                          `json:"confusion_matrix"`
}

// Calculator matches detected issues against annotations. Matching is
// exact on category and fuzzy on line number.
type Calculator struct {
	LineTolerance int
}

func NewCalculator(lineTolerance int) Calculator {
	return Calculator{LineTolerance: lineTolerance}
}

// Evaluate computes metrics for a single example.
func (c Calculator) Evaluate(gt GroundTruthExample, result model.AnalysisResult) ExampleMetrics {
	tp, fp, fn := c.matchIssues(gt.ExpectedIssues, result.Issues)
	precision, recall, f1 := rates(tp, fp, fn)
	return ExampleMetrics{
		TruePositives:  tp,
		FalsePositives: fp,
		FalseNegatives: fn,
		Precision:      precision,
		Recall:         recall,
		F1:             f1,
	}
}

// Aggregate computes overall and per-category metrics across a run.
func (c Calculator) Aggregate(experimentID string, groundTruth []GroundTruthExample, results []model.AnalysisResult, totalTokens int, totalLatency float64) (MetricsResult, error) {
	if len(groundTruth) != len(results) {
		return MetricsResult{}, fmt.Errorf("ground truth and results length mismatch: %d vs %d", len(groundTruth), len(results))
	}

	var confusion Confusion
	type counts struct{ tp, fp, fn int }
	categoryStats := make(map[model.Category]*counts)
	stats := func(cat model.Category) *counts {
		s, ok := categoryStats[cat]
		if !ok {
			s = &counts{}
			categoryStats[cat] = s
		}
		return s
	}

	for i, gt := range groundTruth {
		detected := results[i].Issues
		tp, fp, fn := c.matchIssues(gt.ExpectedIssues, detected)
		confusion.TruePositives += tp
		confusion.FalsePositives += fp
		confusion.FalseNegatives += fn

		matched := make([]bool, len(detected))
		for _, expected := range gt.ExpectedIssues {
			found := false
			for j, det := range detected {
				if matched[j] {
					continue
				}
				if c.issuesMatch(expected, det) {
					matched[j] = true
					found = true
					break
				}
			}
			if found {
				stats(expected.Category).tp++
			} else {
				stats(expected.Category).fn++
			}
		}
		for j, det := range detected {
			if !matched[j] {
				stats(det.Category).fp++
			}
		}
	}

	precision, recall, f1 := rates(confusion.TruePositives, confusion.FalsePositives, confusion.FalseNegatives)

	perCategory := make(map[model.Category]CategoryMetrics, len(categoryStats))
	for category, s := range categoryStats {
		cp, cr, cf := rates(s.tp, s.fp, s.fn)
		perCategory[category] = CategoryMetrics{Precision: cp, Recall: cr, F1: cf}
	}

	tokenEfficiency := 0.0
	if totalTokens > 0 {
		tokenEfficiency = float64(confusion.TruePositives) / (float64(totalTokens) / 1000.0)
	}
	avgLatency := 0.0
	if len(groundTruth) > 0 {
		avgLatency = totalLatency / float64(len(groundTruth))
	}

	return MetricsResult{
		ExperimentID:    experimentID,
		Precision:       precision,
		Recall:          recall,
		F1:              f1,
		TokenEfficiency: tokenEfficiency,
		AvgLatency:      avgLatency,
		TotalTokens:     totalTokens,
		PerCategory:     perCategory,
		Confusion:       confusion,
	}, nil
}

// matchIssues greedily pairs expected and detected issues. Each detected
// issue can satisfy at most one annotation.
func (c Calculator) matchIssues(expected, detected []model.Issue) (tp, fp, fn int) {
	matched := make([]bool, len(detected))
	for _, exp := range expected {
		found := false
		for j, det := range detected {
			if matched[j] {
				continue
			}
			if c.issuesMatch(exp, det) {
				matched[j] = true
				found = true
				break
			}
		}
		if found {
			tp++
		} else {
			fn++
		}
	}
	fp = len(detected) - tp
	return tp, fp, fn
}

func (c Calculator) issuesMatch(expected, detected model.Issue) bool {
	if expected.Category != detected.Category {
		return false
	}
	diff := expected.Line - detected.Line
	if diff < 0 {
		diff = -diff
	}
	return diff <= c.LineTolerance
}

func rates(tp, fp, fn int) (precision, recall, f1 float64) {
	if tp+fp > 0 {
		precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		recall = float64(tp) / float64(tp+fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}
