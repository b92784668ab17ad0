package experiment

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"defectlab/internal/logging"
	"defectlab/internal/model"
	"defectlab/internal/technique"
)

// RunConfig describes one experiment run.
type RunConfig struct {
	ExperimentID  string `json:"experiment_id"`
	RunID         string `json:"run_id"`
	TechniqueName string `json:"technique_name"`
	ModelName     string `json:"model_name"`
	DatasetPath   string `json:"dataset_path"`
	OutputDir     string `json:"output_dir"`
	Parallelism   int    `json:"parallelism"`
	LineTolerance int    `json:"line_tolerance"`
	LogPrompts    bool   `json:"log_prompts"`
	Timestamp     string `json:"timestamp"`
}

// Runner evaluates one technique against a ground truth dataset.
type Runner struct {
	cfg       RunConfig
	technique technique.Technique
	dataset   *Dataset
	calc      Calculator
	plog      *PromptLogger

	results     []model.AnalysisResult
	groundTruth []GroundTruthExample
}

// NewRunner loads the dataset and prepares output directories. RunID is
// generated when empty so repeated runs of the same experiment never
// collide.
func NewRunner(cfg RunConfig, tech technique.Technique) (*Runner, error) {
	if cfg.ExperimentID == "" {
		cfg.ExperimentID = fmt.Sprintf("%s_%s", tech.Name(), time.Now().Format("20060102"))
	}
	if cfg.RunID == "" {
		cfg.RunID = strings.Split(uuid.NewString(), "-")[0]
	}
	if cfg.TechniqueName == "" {
		cfg.TechniqueName = tech.Name()
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "results"
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.LineTolerance == 0 {
		cfg.LineTolerance = DefaultLineTolerance
	}
	cfg.Timestamp = time.Now().Format(time.RFC3339)

	dataset, err := LoadDataset(cfg.DatasetPath)
	if err != nil {
		return nil, err
	}

	runner := &Runner{
		cfg:       cfg,
		technique: tech,
		dataset:   dataset,
		calc:      NewCalculator(cfg.LineTolerance),
	}

	if cfg.LogPrompts {
		runner.plog, err = NewPromptLogger(runner.runDir(), cfg.ExperimentID)
		if err != nil {
			return nil, err
		}
	}
	return runner, nil
}

func (r *Runner) runDir() string {
	return filepath.Join(r.cfg.OutputDir, r.cfg.RunID)
}

// Run analyzes every example, computes aggregate metrics, and saves the
// run artifacts. Examples run in parallel but results stay in dataset
// order so metrics pair up correctly.
func (r *Runner) Run(ctx context.Context) (MetricsResult, error) {
	examples := r.dataset.All()
	logging.Experiment("run %s: technique=%s examples=%d parallelism=%d",
		r.cfg.RunID, r.cfg.TechniqueName, len(examples), r.cfg.Parallelism)

	r.results = make([]model.AnalysisResult, len(examples))
	r.groundTruth = examples

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Parallelism)
	for i, ex := range examples {
		g.Go(func() error {
			req := model.AnalysisRequest{
				Code:     ex.Code,
				FilePath: ex.FilePath,
				Language: "cpp",
			}

			start := time.Now()
			result, err := r.technique.Analyze(gctx, req)
			latency := time.Since(start).Seconds()
			if err != nil {
				return fmt.Errorf("analyzing %s: %w", ex.ID, err)
			}

			logging.ExperimentDebug("%s: expected=%d detected=%d latency=%.2fs",
				ex.ID, len(ex.ExpectedIssues), len(result.Issues), latency)

			if r.plog != nil {
				if err := r.plog.Log(PromptLogEntry{
					ExampleID:     ex.ID,
					TechniqueName: r.cfg.TechniqueName,
					ModelName:     r.cfg.ModelName,
					Response:      result.RawResponse,
					TokensUsed:    result.MetaInt("tokens_used"),
					Latency:       latency,
					Metadata: map[string]any{
						"expected_issues": len(ex.ExpectedIssues),
						"detected_issues": len(result.Issues),
					},
				}); err != nil {
					return err
				}
			}

			r.results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return MetricsResult{}, err
	}

	totalTokens := 0
	totalLatency := 0.0
	for _, result := range r.results {
		totalTokens += result.MetaInt("tokens_used")
		totalLatency += result.MetaFloat("latency")
	}

	metrics, err := r.calc.Aggregate(r.cfg.ExperimentID, r.groundTruth, r.results, totalTokens, totalLatency)
	if err != nil {
		return MetricsResult{}, err
	}

	if err := r.saveResults(metrics); err != nil {
		return MetricsResult{}, err
	}
	if r.plog != nil {
		if err := r.plog.Close(); err != nil {
			return MetricsResult{}, err
		}
	}

	logging.Experiment("run %s: precision=%.3f recall=%.3f f1=%.3f tokens=%d",
		r.cfg.RunID, metrics.Precision, metrics.Recall, metrics.F1, metrics.TotalTokens)
	return metrics, nil
}

// Results returns per-example analysis results after Run.
func (r *Runner) Results() []model.AnalysisResult {
	return r.results
}

// GroundTruth returns the examples in the same order as Results.
func (r *Runner) GroundTruth() []GroundTruthExample {
	return r.groundTruth
}

// Config returns the resolved run configuration.
func (r *Runner) Config() RunConfig {
	return r.cfg
}

func (r *Runner) saveResults(metrics MetricsResult) error {
	dir := r.runDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating run directory: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, "metrics.json"), metrics); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "config.json"), r.cfg); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Experiment: %s\n", r.cfg.ExperimentID)
	fmt.Fprintf(&b, "Technique: %s\n", r.cfg.TechniqueName)
	fmt.Fprintf(&b, "Model: %s\n", r.cfg.ModelName)
	fmt.Fprintf(&b, "Timestamp: %s\n", r.cfg.Timestamp)
	b.WriteString("\nMetrics:\n")
	fmt.Fprintf(&b, "  Precision: %.3f\n", metrics.Precision)
	fmt.Fprintf(&b, "  Recall: %.3f\n", metrics.Recall)
	fmt.Fprintf(&b, "  F1: %.3f\n", metrics.F1)
	fmt.Fprintf(&b, "  Token Efficiency: %.2f\n", metrics.TokenEfficiency)
	fmt.Fprintf(&b, "  Latency: %.2fs\n", metrics.AvgLatency)
	fmt.Fprintf(&b, "  Total Tokens: %d\n", metrics.TotalTokens)

	return os.WriteFile(filepath.Join(dir, "summary.txt"), []byte(b.String()), 0644)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, 0644)
}
