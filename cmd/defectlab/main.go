package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"defectlab/internal/config"
	"defectlab/internal/logging"
)

var (
	// Global flags
	verbose   bool
	workspace string
	cfgPath   string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "defectlab",
	Short: "defectlab - LLM prompting technique lab for semantic defect detection",
	Long: `defectlab measures how well different LLM prompting techniques find
semantic defects in source code: the bugs that compile fine and slip
past linters because spotting them requires understanding intent.

Large files are split into syntax-aware chunks, analyzed in parallel,
and the per-chunk findings are merged back into file coordinates.
Techniques are scored against human-annotated ground truth.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			workspace, err = os.Getwd()
			if err != nil {
				return err
			}
		}
		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("category logging disabled", zap.Error(err))
		}

		path := cfgPath
		if path == "" {
			path = filepath.Join(workspace, config.DefaultPath)
		}
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}
		return cfg.Validate()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: cwd)")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default: <workspace>/.defectlab/config.yaml)")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(chunkCmd)
	rootCmd.AddCommand(techniquesCmd)
	rootCmd.AddCommand(experimentCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
