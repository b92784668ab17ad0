// Package config loads and validates defectlab configuration from
// .defectlab/config.yaml, with environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"defectlab/internal/llm"
)

// DefaultPath is the workspace-relative location of the config file.
const DefaultPath = ".defectlab/config.yaml"

// Config holds all defectlab configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM backend
	LLM LLMConfig `yaml:"llm"`

	// Chunking of large files
	Chunking ChunkingConfig `yaml:"chunking"`

	// Analysis settings shared by all techniques
	Analysis AnalysisConfig `yaml:"analysis"`

	// Experiment runs
	Experiment ExperimentConfig `yaml:"experiment"`

	// Results store
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the model backend.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // ollama, openai, gemini
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     string  `yaml:"timeout"`
}

// ChunkingConfig controls when and how large files are split.
type ChunkingConfig struct {
	Enabled        bool `yaml:"enabled"`
	ChunkThreshold int  `yaml:"chunk_threshold"` // lines; larger files get chunked
	MaxChunkLines  int  `yaml:"max_chunk_lines"`
	MaxWorkers     int  `yaml:"max_workers"`
}

// AnalysisConfig holds technique-independent analysis settings.
type AnalysisConfig struct {
	Language            string  `yaml:"language"`
	Technique           string  `yaml:"technique"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	StaticFilter        bool    `yaml:"static_filter"`
	FewShotExamples     int     `yaml:"few_shot_examples"`
}

// ExperimentConfig configures experiment runs against ground truth.
type ExperimentConfig struct {
	DatasetPath   string `yaml:"dataset_path"`
	OutputDir     string `yaml:"output_dir"`
	Runs          int    `yaml:"runs"`
	Parallelism   int    `yaml:"parallelism"`
	LineTolerance int    `yaml:"line_tolerance"` // line slack when matching ground truth
	LogPrompts    bool   `yaml:"log_prompts"`
}

// StoreConfig configures the SQLite results store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig controls the category file loggers.
type LoggingConfig struct {
	Debug      bool            `yaml:"debug"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "defectlab",
		Version: "0.3.0",

		LLM: LLMConfig{
			Provider:    "ollama",
			Model:       "qwen2.5-coder:7b",
			Temperature: 0.1,
			MaxTokens:   2000,
			Timeout:     "300s",
		},

		Chunking: ChunkingConfig{
			Enabled:        true,
			ChunkThreshold: 300,
			MaxChunkLines:  200,
			MaxWorkers:     4,
		},

		Analysis: AnalysisConfig{
			Language:            "cpp",
			Technique:           "few_shot",
			ConfidenceThreshold: 0.6,
			FewShotExamples:     5,
		},

		Experiment: ExperimentConfig{
			DatasetPath:   "testdata/ground_truth.json",
			OutputDir:     "results",
			Runs:          1,
			Parallelism:   2,
			LineTolerance: 2,
		},

		Store: StoreConfig{
			DatabasePath: "data/defectlab.db",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; a malformed one is an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides. API keys
// never belong in the config file.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.LLM.Provider == "openai" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.LLM.Provider == "gemini" {
		c.LLM.APIKey = key
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" && c.LLM.Provider == "ollama" && c.LLM.BaseURL == "" {
		c.LLM.BaseURL = host
	}
	if path := os.Getenv("DEFECTLAB_DB"); path != "" {
		c.Store.DatabasePath = path
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 300 * time.Second
	}
	return d
}

// LLMOptions converts the LLM section into client options.
func (c *Config) LLMOptions() llm.Options {
	return llm.Options{
		Provider:    c.LLM.Provider,
		APIKey:      c.LLM.APIKey,
		Model:       c.LLM.Model,
		BaseURL:     c.LLM.BaseURL,
		Temperature: c.LLM.Temperature,
		MaxTokens:   c.LLM.MaxTokens,
		Timeout:     c.GetLLMTimeout(),
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "", "ollama", "openai", "gemini":
	default:
		return fmt.Errorf("unknown llm provider: %s", c.LLM.Provider)
	}
	if c.Chunking.ChunkThreshold < 0 {
		return fmt.Errorf("chunk_threshold must be non-negative")
	}
	if c.Chunking.MaxChunkLines < 0 {
		return fmt.Errorf("max_chunk_lines must be non-negative")
	}
	if c.Chunking.MaxWorkers < 0 {
		return fmt.Errorf("max_workers must be non-negative")
	}
	if t := c.Analysis.ConfidenceThreshold; t < 0 || t > 1 {
		return fmt.Errorf("confidence_threshold must be in [0, 1]")
	}
	if c.Analysis.FewShotExamples < 0 {
		return fmt.Errorf("few_shot_examples must be non-negative")
	}
	if c.LLM.Timeout != "" {
		d, err := time.ParseDuration(c.LLM.Timeout)
		if err != nil {
			return fmt.Errorf("invalid llm timeout %q: %w", c.LLM.Timeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("llm timeout must be positive")
		}
	}
	if c.Experiment.Runs < 0 {
		return fmt.Errorf("experiment runs must be non-negative")
	}
	return nil
}
