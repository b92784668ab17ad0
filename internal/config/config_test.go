package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".defectlab", "config.yaml")

	cfg := DefaultConfig()
	cfg.LLM.Model = "deepseek-coder:33b-instruct"
	cfg.Chunking.MaxChunkLines = 150
	cfg.Analysis.Technique = "hybrid"
	cfg.Experiment.Runs = 3

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "deepseek-coder:33b-instruct", loaded.LLM.Model)
	assert.Equal(t, 150, loaded.Chunking.MaxChunkLines)
	assert.Equal(t, "hybrid", loaded.Analysis.Technique)
	assert.Equal(t, 3, loaded.Experiment.Runs)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 300, cfg.Chunking.ChunkThreshold)
	assert.Equal(t, 200, cfg.Chunking.MaxChunkLines)
	assert.Equal(t, 4, cfg.Chunking.MaxWorkers)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  model: custom\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.LLM.Model)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 2000, cfg.LLM.MaxTokens)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("DEFECTLAB_DB", "/tmp/override.db")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  provider: gemini\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "g-key", cfg.LLM.APIKey)
	assert.Equal(t, "/tmp/override.db", cfg.Store.DatabasePath)
}

func TestLLMOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Timeout = "45s"

	opts := cfg.LLMOptions()
	assert.Equal(t, "ollama", opts.Provider)
	assert.Equal(t, 45.0, opts.Timeout.Seconds())
	assert.Equal(t, 0.1, opts.Temperature)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.LLM.Provider = "carrier-pigeon"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Analysis.ConfidenceThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Chunking.MaxWorkers = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Analysis.FewShotExamples = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.LLM.Timeout = "five minutes"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.LLM.Timeout = "-30s"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.LLM.Timeout = "90s"
	assert.NoError(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.LLM.Timeout = ""
	assert.NoError(t, cfg.Validate())
}
