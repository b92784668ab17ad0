package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"defectlab/internal/llm"
	"defectlab/internal/model"
	"defectlab/internal/pipeline"
	"defectlab/internal/technique"
	"defectlab/internal/technique/staticfilter"
)

var (
	analyzeTechnique string
	analyzeNoChunk   bool
	analyzeJSON      bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Analyze a file or directory for semantic defects",
	Long: `Analyzes C++ source with the configured technique. Files over the
chunk threshold are split into syntax-aware chunks and analyzed in
parallel; issue line numbers always refer to the original file.

Example:
  defectlab analyze src/parser.cpp --technique hybrid`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeTechnique, "technique", "t", "", "technique to use (default from config)")
	analyzeCmd.Flags().BoolVar(&analyzeNoChunk, "no-chunk", false, "always analyze files whole")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "emit results as JSON")
}

// techniqueConfig builds the shared technique tuning from config: the
// curated few-shot set and the confidence threshold.
func techniqueConfig() technique.Config {
	return technique.Config{
		Examples:            technique.DefaultExamples(cfg.Analysis.FewShotExamples),
		ConfidenceThreshold: cfg.Analysis.ConfidenceThreshold,
	}
}

func buildTechnique() (technique.Technique, error) {
	client, err := llm.NewClient(cfg.LLMOptions())
	if err != nil {
		return nil, err
	}

	name := analyzeTechnique
	if name == "" {
		name = cfg.Analysis.Technique
	}
	return technique.New(name, client, techniqueConfig())
}

func buildFileAnalyzer(tech technique.Technique) *pipeline.FileAnalyzer {
	pipeCfg := pipeline.Config{
		Language:      cfg.Analysis.Language,
		MaxChunkLines: cfg.Chunking.MaxChunkLines,
		MaxWorkers:    cfg.Chunking.MaxWorkers,
	}
	if analyzeNoChunk || !cfg.Chunking.Enabled {
		// A threshold no real file reaches disables chunking.
		pipeCfg.ChunkThreshold = 1 << 30
	} else {
		pipeCfg.ChunkThreshold = cfg.Chunking.ChunkThreshold
	}
	if cfg.Analysis.StaticFilter {
		pipeCfg.StaticFilter = staticfilter.NewRunner()
	}
	return pipeline.NewFileAnalyzer(tech, pipeCfg)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	path := args[0]

	tech, err := buildTechnique()
	if err != nil {
		return err
	}
	analyzer := buildFileAnalyzer(tech)
	logger.Info("analyzing", zap.String("path", path), zap.String("technique", tech.Name()))

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	results := make(map[string]model.AnalysisResult)
	if info.IsDir() {
		results, err = analyzer.AnalyzeDirectory(cmd.Context(), path)
		if err != nil {
			return err
		}
	} else {
		result, err := analyzer.AnalyzeFile(cmd.Context(), path)
		if err != nil {
			return err
		}
		results[path] = result
	}

	if analyzeJSON {
		return json.NewEncoder(os.Stdout).Encode(results)
	}

	paths := make([]string, 0, len(results))
	for p := range results {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	total := 0
	for _, p := range paths {
		printResult(p, results[p])
		total += len(results[p].Issues)
	}
	fmt.Printf("\n%d issue(s) across %d file(s)\n", total, len(results))
	return nil
}

func printResult(path string, result model.AnalysisResult) {
	fmt.Printf("\n%s\n", path)
	if result.Failed() {
		fmt.Printf("  analysis failed: %s\n", result.MetaString("error"))
		return
	}
	if len(result.Issues) == 0 {
		fmt.Println("  no issues found")
		return
	}
	for _, issue := range result.Issues {
		fmt.Printf("  %s:%d [%s/%s] %s\n", path, issue.Line, issue.Category, issue.Severity, issue.Description)
		if issue.SuggestedFix != "" {
			fmt.Printf("    fix: %s\n", issue.SuggestedFix)
		}
	}
	if n := result.MetaInt("num_chunks"); n > 0 {
		fmt.Printf("  (%d chunks, %d tokens)\n", n, result.MetaInt("total_tokens"))
	}
}
