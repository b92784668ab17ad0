// Package analyze runs chunks through an analysis backend, translating
// reported line numbers from chunk-local coordinates back into
// file-absolute coordinates, and drives bounded-concurrency analysis
// across whole chunk sets with per-chunk failure isolation.
package analyze

import (
	"context"
	"strings"
	"sync"

	"defectlab/internal/chunk"
	"defectlab/internal/logging"
	"defectlab/internal/model"
)

// DefaultMaxWorkers bounds parallel chunk analyses when the caller does
// not choose a pool width.
const DefaultMaxWorkers = 4

// Backend is the analysis capability a chunk is sent through. Every
// prompting technique satisfies this; tests substitute stubs.
type Backend interface {
	Analyze(ctx context.Context, req model.AnalysisRequest) (model.AnalysisResult, error)
}

// ChunkAnalyzer analyzes chunks independently with proper context and
// line-number adjustment. The backend handle may be shared across
// concurrent analyses; each call operates on its own chunk and result.
type ChunkAnalyzer struct {
	backend  Backend
	language string
}

// NewChunkAnalyzer creates an analyzer over the given backend.
func NewChunkAnalyzer(backend Backend, language string) *ChunkAnalyzer {
	if language == "" {
		language = "cpp"
	}
	return &ChunkAnalyzer{backend: backend, language: language}
}

// AnalyzeChunk analyzes a single chunk and returns a result in
// file-absolute line coordinates, tagged with the chunk's identity.
// Backend failures propagate to the caller; AnalyzeChunks isolates them.
func (a *ChunkAnalyzer) AnalyzeChunk(ctx context.Context, ch chunk.Chunk) (model.AnalysisResult, error) {
	code := ch.Code
	if ch.Context != "" {
		code = ch.Context + "\n\n" + ch.Code
	}

	result, err := a.backend.Analyze(ctx, model.AnalysisRequest{
		Code:     code,
		FilePath: ch.FilePath,
		Language: a.language,
	})
	if err != nil {
		return model.AnalysisResult{}, err
	}

	result = adjustLineNumbers(result, ch)

	if result.Metadata == nil {
		result.Metadata = make(map[string]any)
	}
	result.Metadata["chunk_id"] = ch.ID
	result.Metadata["chunk_start"] = ch.StartLine
	result.Metadata["chunk_end"] = ch.EndLine

	return result, nil
}

// adjustLineNumbers maps issue lines from sent-text coordinates (context
// plus blank separator plus code, numbered from 1) to file-absolute
// coordinates, clamped into the chunk's span. The clamp absorbs backend
// line-number noise at the cost of precision for wildly wrong reports;
// pre-clamp values are kept in metadata for diagnostics.
func adjustLineNumbers(result model.AnalysisResult, ch chunk.Chunk) model.AnalysisResult {
	contextLines := 0
	if ch.Context != "" {
		contextLines = len(strings.Split(ch.Context, "\n"))
	}

	adjusted := make([]model.Issue, len(result.Issues))
	var clamped []int
	for i, issue := range result.Issues {
		var fileLine int
		if ch.Context != "" {
			// Context block plus one blank separator line precede the
			// chunk's own first line in the sent text
			fileLine = ch.StartLine + (issue.Line - contextLines - 2)
		} else {
			fileLine = ch.StartLine + issue.Line - 1
		}

		if fileLine < ch.StartLine {
			clamped = append(clamped, issue.Line)
			fileLine = ch.StartLine
		} else if fileLine > ch.EndLine {
			clamped = append(clamped, issue.Line)
			fileLine = ch.EndLine
		}

		issue.Line = fileLine
		adjusted[i] = issue
	}

	out := result
	out.Issues = adjusted
	if len(clamped) > 0 {
		if out.Metadata == nil {
			out.Metadata = make(map[string]any)
		}
		out.Metadata["clamped_raw_lines"] = clamped
		logging.AnalyzerDebug("chunk %s: clamped %d out-of-span line reports", ch.ID, len(clamped))
	}
	return out
}

// AnalyzeChunks analyzes chunks in parallel through a bounded worker
// pool. Every chunk yields exactly one result: a failed analysis is
// replaced by an empty result carrying error and chunk_id metadata, and
// never aborts its siblings. Results arrive in completion order; the
// merger re-sorts by line, so ordering here carries no meaning.
func (a *ChunkAnalyzer) AnalyzeChunks(ctx context.Context, chunks []chunk.Chunk, maxWorkers int) []model.AnalysisResult {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}

	logging.Analyzer("analyzing %d chunks with %d workers", len(chunks), maxWorkers)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([]model.AnalysisResult, 0, len(chunks))
	)
	sem := make(chan struct{}, maxWorkers)

	for _, ch := range chunks {
		wg.Add(1)
		go func(ch chunk.Chunk) {
			defer wg.Done()
			sem <- struct{}{}        // acquire
			defer func() { <-sem }() // release

			result, err := a.AnalyzeChunk(ctx, ch)
			if err != nil {
				logging.Get(logging.CategoryAnalyzer).Error("chunk %s failed: %v", ch.ID, err)
				result = model.AnalysisResult{
					Issues: []model.Issue{},
					Metadata: map[string]any{
						"error":    err.Error(),
						"chunk_id": ch.ID,
					},
				}
			}

			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}(ch)
	}

	wg.Wait()
	return results
}
