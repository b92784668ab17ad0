package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"defectlab/internal/experiment"
	"defectlab/internal/llm"
	"defectlab/internal/model"
	"defectlab/internal/store"
	"defectlab/internal/technique"
)

var (
	expTechnique string
	expDataset   string
	expRuns      int
	expLimit     int
)

var experimentCmd = &cobra.Command{
	Use:   "experiment",
	Short: "Run and inspect technique evaluation experiments",
}

var experimentRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate a technique against the ground truth dataset",
	Long: `Runs the configured technique on every annotated example, computes
precision, recall, F1, and token efficiency, and records the run in
the results store.

Example:
  defectlab experiment run --technique chain_of_thought --runs 3`,
	RunE: runExperiment,
}

var experimentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	RunE:  listExperiments,
}

var experimentShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show one run's metrics and per-category breakdown",
	Args:  cobra.ExactArgs(1),
	RunE:  showExperiment,
}

var experimentBestCmd = &cobra.Command{
	Use:   "best",
	Short: "Show the highest-F1 run",
	RunE:  bestExperiment,
}

func init() {
	experimentRunCmd.Flags().StringVarP(&expTechnique, "technique", "t", "", "technique to evaluate (default from config)")
	experimentRunCmd.Flags().StringVar(&expDataset, "dataset", "", "ground truth dataset path (default from config)")
	experimentRunCmd.Flags().IntVar(&expRuns, "runs", 0, "number of repeated runs (default from config)")
	experimentListCmd.Flags().StringVarP(&expTechnique, "technique", "t", "", "filter by technique")
	experimentListCmd.Flags().IntVar(&expLimit, "limit", 20, "max runs to list")
	experimentBestCmd.Flags().StringVarP(&expTechnique, "technique", "t", "", "restrict to one technique")

	experimentCmd.AddCommand(experimentRunCmd)
	experimentCmd.AddCommand(experimentListCmd)
	experimentCmd.AddCommand(experimentShowCmd)
	experimentCmd.AddCommand(experimentBestCmd)
}

func openStore() (*store.ResultsStore, error) {
	return store.NewResultsStore(cfg.Store.DatabasePath)
}

func runExperiment(cmd *cobra.Command, args []string) error {
	client, err := llm.NewClient(cfg.LLMOptions())
	if err != nil {
		return err
	}

	name := expTechnique
	if name == "" {
		name = cfg.Analysis.Technique
	}
	tech, err := technique.New(name, client, techniqueConfig())
	if err != nil {
		return err
	}

	dataset := expDataset
	if dataset == "" {
		dataset = cfg.Experiment.DatasetPath
	}
	runs := expRuns
	if runs <= 0 {
		runs = cfg.Experiment.Runs
	}
	if runs <= 0 {
		runs = 1
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	for i := 0; i < runs; i++ {
		runner, err := experiment.NewRunner(experiment.RunConfig{
			TechniqueName: tech.Name(),
			ModelName:     cfg.LLM.Model,
			DatasetPath:   dataset,
			OutputDir:     cfg.Experiment.OutputDir,
			Parallelism:   cfg.Experiment.Parallelism,
			LineTolerance: cfg.Experiment.LineTolerance,
			LogPrompts:    cfg.Experiment.LogPrompts,
		}, tech)
		if err != nil {
			return err
		}

		logger.Info("starting experiment run",
			zap.Int("run", i+1),
			zap.Int("total", runs),
			zap.String("technique", tech.Name()))

		metrics, err := runner.Run(cmd.Context())
		if err != nil {
			return err
		}

		runCfg := runner.Config()
		if err := db.SaveRun(runCfg, metrics); err != nil {
			return err
		}
		for j, gt := range runner.GroundTruth() {
			if err := db.SaveIssues(runCfg.RunID, gt.ID, runner.Results()[j].Issues); err != nil {
				return err
			}
		}

		printMetrics(runCfg.RunID, tech.Name(), metrics)
	}
	return nil
}

func printMetrics(runID, techniqueName string, m experiment.MetricsResult) {
	fmt.Printf("\nrun %s (%s)\n", runID, techniqueName)
	fmt.Printf("  Precision: %.3f\n", m.Precision)
	fmt.Printf("  Recall:    %.3f\n", m.Recall)
	fmt.Printf("  F1:        %.3f\n", m.F1)
	fmt.Printf("  Token Efficiency: %.2f TP/1K tokens\n", m.TokenEfficiency)
	fmt.Printf("  Avg Latency: %.2fs\n", m.AvgLatency)
	fmt.Printf("  Total Tokens: %d\n", m.TotalTokens)

	if len(m.PerCategory) > 0 {
		categories := make([]string, 0, len(m.PerCategory))
		for c := range m.PerCategory {
			categories = append(categories, string(c))
		}
		sort.Strings(categories)
		fmt.Println("  Per category:")
		for _, c := range categories {
			cm := m.PerCategory[model.Category(c)]
			fmt.Printf("    %-24s P=%.3f R=%.3f F1=%.3f\n", c, cm.Precision, cm.Recall, cm.F1)
		}
	}
}

func listExperiments(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(expTechnique, expLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	fmt.Printf("%-10s %-20s %-10s %-8s %-8s %-8s %s\n",
		"RUN", "TECHNIQUE", "MODEL", "P", "R", "F1", "WHEN")
	for _, r := range runs {
		fmt.Printf("%-10s %-20s %-10s %-8.3f %-8.3f %-8.3f %s\n",
			r.RunID, r.Technique, r.Model,
			r.Precision, r.Recall, r.F1,
			r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func showExperiment(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	rec, err := db.GetRun(args[0])
	if err != nil {
		return err
	}
	categories, err := db.CategoryMetrics(rec.RunID)
	if err != nil {
		return err
	}

	fmt.Printf("run %s\n", rec.RunID)
	fmt.Printf("  experiment: %s\n", rec.ExperimentID)
	fmt.Printf("  technique:  %s\n", rec.Technique)
	fmt.Printf("  model:      %s\n", rec.Model)
	fmt.Printf("  dataset:    %s\n", rec.DatasetPath)
	fmt.Printf("  recorded:   %s\n", rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("  P=%.3f R=%.3f F1=%.3f (TP=%d FP=%d FN=%d)\n",
		rec.Precision, rec.Recall, rec.F1,
		rec.TruePositives, rec.FalsePositives, rec.FalseNegatives)
	fmt.Printf("  tokens=%d efficiency=%.2f latency=%.2fs\n",
		rec.TotalTokens, rec.TokenEfficiency, rec.AvgLatency)

	if len(categories) > 0 {
		names := make([]string, 0, len(categories))
		for c := range categories {
			names = append(names, string(c))
		}
		sort.Strings(names)
		fmt.Println("  per category:")
		for _, c := range names {
			cm := categories[model.Category(c)]
			fmt.Printf("    %-24s P=%.3f R=%.3f F1=%.3f\n", c, cm.Precision, cm.Recall, cm.F1)
		}
	}

	issues, err := db.IssuesForRun(rec.RunID)
	if err != nil {
		return err
	}
	if len(issues) > 0 {
		fmt.Printf("  %d detected issue(s):\n", len(issues))
		for _, ir := range issues {
			fmt.Printf("    %s:%d [%s/%s] %s\n",
				ir.ExampleID, ir.Issue.Line, ir.Issue.Category, ir.Issue.Severity, ir.Issue.Description)
		}
	}
	return nil
}

func bestExperiment(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	rec, err := db.BestRun(expTechnique)
	if err != nil {
		return err
	}
	fmt.Printf("best run: %s (%s) F1=%.3f P=%.3f R=%.3f\n",
		rec.RunID, rec.Technique, rec.F1, rec.Precision, rec.Recall)
	return nil
}
