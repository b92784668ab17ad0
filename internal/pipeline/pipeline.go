// Package pipeline wires chunking, analysis, and merging into a single
// file-level entry point.
package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"defectlab/internal/analyze"
	"defectlab/internal/chunk"
	"defectlab/internal/logging"
	"defectlab/internal/merge"
	"defectlab/internal/model"
	"defectlab/internal/technique/staticfilter"
)

// DefaultChunkThreshold is the line count above which a file is chunked
// instead of analyzed whole.
const DefaultChunkThreshold = 300

// cppExtensions are the file types the analyzer accepts.
var cppExtensions = map[string]bool{
	".cpp": true,
	".cc":  true,
	".cxx": true,
	".h":   true,
	".hpp": true,
}

// Config tunes a FileAnalyzer. Zero values select defaults.
type Config struct {
	Language       string
	ChunkThreshold int
	MaxChunkLines  int
	MaxWorkers     int
	StaticFilter   *staticfilter.Runner
}

// FileAnalyzer analyzes whole files, transparently chunking large ones.
type FileAnalyzer struct {
	backend        analyze.Backend
	language       string
	chunkThreshold int
	maxChunkLines  int
	maxWorkers     int
	tidy           *staticfilter.Runner
}

func NewFileAnalyzer(backend analyze.Backend, cfg Config) *FileAnalyzer {
	language := cfg.Language
	if language == "" {
		language = "cpp"
	}
	threshold := cfg.ChunkThreshold
	if threshold == 0 {
		threshold = DefaultChunkThreshold
	}
	maxChunkLines := cfg.MaxChunkLines
	if maxChunkLines == 0 {
		maxChunkLines = chunk.DefaultMaxChunkLines
	}
	maxWorkers := cfg.MaxWorkers
	if maxWorkers == 0 {
		maxWorkers = analyze.DefaultMaxWorkers
	}

	return &FileAnalyzer{
		backend:        backend,
		language:       language,
		chunkThreshold: threshold,
		maxChunkLines:  maxChunkLines,
		maxWorkers:     maxWorkers,
		tidy:           cfg.StaticFilter,
	}
}

// AnalyzeFile analyzes one file. Files over the chunk threshold go
// through chunk, parallel analyze, and merge; smaller files are sent to
// the backend in a single request.
func (fa *FileAnalyzer) AnalyzeFile(ctx context.Context, path string) (model.AnalysisResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.AnalysisResult{}, fmt.Errorf("%w: %s", chunk.ErrFileNotFound, path)
		}
		return model.AnalysisResult{}, fmt.Errorf("reading %s: %w", path, err)
	}
	code := string(data)
	lineCount := strings.Count(code, "\n") + 1

	var findings []staticfilter.Finding
	if fa.tidy != nil && fa.tidy.Available() {
		findings, err = fa.tidy.Run(ctx, path)
		if err != nil {
			logging.Analyzer("static analysis on %s failed: %v", path, err)
			findings = nil
		}
	}

	var result model.AnalysisResult
	if lineCount > fa.chunkThreshold {
		result, err = fa.analyzeChunked(ctx, path, lineCount)
	} else {
		result, err = fa.analyzeWhole(ctx, path, code, findings)
	}
	if err != nil {
		return model.AnalysisResult{}, err
	}

	if len(findings) > 0 {
		before := len(result.Issues)
		result.Issues = staticfilter.FilterIssues(result.Issues, findings)
		result.Metadata["static_filtered"] = before - len(result.Issues)
	}
	return result, nil
}

func (fa *FileAnalyzer) analyzeWhole(ctx context.Context, path, code string, findings []staticfilter.Finding) (model.AnalysisResult, error) {
	req := model.AnalysisRequest{
		Code:     code,
		FilePath: path,
		Language: fa.language,
		Context:  staticfilter.PromptContext(findings),
	}
	return fa.backend.Analyze(ctx, req)
}

func (fa *FileAnalyzer) analyzeChunked(ctx context.Context, path string, lineCount int) (model.AnalysisResult, error) {
	chunker := chunk.NewChunker(fa.maxChunkLines)
	defer chunker.Close()

	chunks, err := chunker.ChunkFile(ctx, path)
	if err != nil {
		return model.AnalysisResult{}, err
	}
	logging.Analyzer("%s: %d lines split into %d chunks", path, lineCount, len(chunks))

	analyzer := analyze.NewChunkAnalyzer(fa.backend, fa.language)
	chunkResults := analyzer.AnalyzeChunks(ctx, chunks, fa.maxWorkers)

	merged, err := merge.Merge(chunkResults)
	if err != nil {
		return model.AnalysisResult{}, fmt.Errorf("merging %s: %w", path, err)
	}
	merged.Metadata["file_path"] = path
	return merged, nil
}

// AnalyzeDirectory walks a tree and analyzes every C++ source file.
// Results are keyed by path. A file that fails does not stop the walk.
func (fa *FileAnalyzer) AnalyzeDirectory(ctx context.Context, dir string) (map[string]model.AnalysisResult, error) {
	results := make(map[string]model.AnalysisResult)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !cppExtensions[filepath.Ext(path)] {
			return nil
		}

		result, err := fa.AnalyzeFile(ctx, path)
		if err != nil {
			logging.Analyzer("skipping %s: %v", path, err)
			return nil
		}
		results[path] = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
