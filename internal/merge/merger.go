// Package merge reduces per-chunk analysis results into one file-level
// result with deduplicated, line-sorted issues and aggregated metadata.
package merge

import (
	"errors"
	"sort"

	"defectlab/internal/logging"
	"defectlab/internal/model"
)

// ErrNothingToMerge is returned when Merge is called with no results.
var ErrNothingToMerge = errors.New("no chunk results to merge")

// dedupKey identifies "the same finding" across chunks: identical
// file-absolute line and identical category, regardless of wording.
// File identity is deliberately absent; a single Merge call covers one
// file, and reusing this across files would need the path in the key.
type dedupKey struct {
	line     int
	category model.Category
}

// Merge combines chunk-level results into one file-level result.
//
// Issues are flattened in input order, deduplicated by (line, category)
// keeping the longest reasoning, and sorted ascending by line. Metadata
// aggregates token and latency totals plus failure counts; all-failed
// and all-empty inputs merge fine, only an empty input list is an error.
func Merge(chunkResults []model.AnalysisResult) (model.AnalysisResult, error) {
	if len(chunkResults) == 0 {
		return model.AnalysisResult{}, ErrNothingToMerge
	}

	var all []model.Issue
	for _, r := range chunkResults {
		all = append(all, r.Issues...)
	}

	deduped := deduplicate(all)

	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Line < deduped[j].Line
	})

	merged := model.AnalysisResult{
		Issues:   deduped,
		Metadata: combineMetadata(chunkResults),
	}

	// Propagate the file path when the first chunk result carries one
	if fp := chunkResults[0].MetaString("file_path"); fp != "" {
		merged.Metadata["file_path"] = fp
	}

	logging.Merger("merged %d chunk results: %d issues (%d before dedup)",
		len(chunkResults), len(deduped), len(all))

	return merged, nil
}

// deduplicate keeps one issue per (line, category): the one with the
// longest reasoning text, ties broken by first-seen order. Output order
// is first-seen key order, which the caller's line sort then refines.
func deduplicate(issues []model.Issue) []model.Issue {
	if len(issues) == 0 {
		return nil
	}

	out := make([]model.Issue, 0, len(issues))
	index := make(map[dedupKey]int)

	for _, issue := range issues {
		key := dedupKey{line: issue.Line, category: issue.Category}
		at, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, issue)
			continue
		}
		if len(issue.Reasoning) > len(out[at].Reasoning) {
			out[at] = issue
		}
	}

	return out
}

// combineMetadata aggregates per-chunk metadata. Missing tokens_used or
// latency values count as zero.
func combineMetadata(chunkResults []model.AnalysisResult) map[string]any {
	totalTokens := 0
	totalLatency := 0.0
	failed := 0
	chunkIDs := make([]string, 0, len(chunkResults))

	for _, r := range chunkResults {
		totalTokens += r.MetaInt("tokens_used")
		totalLatency += r.MetaFloat("latency")
		if r.Failed() {
			failed++
		}
		id := r.MetaString("chunk_id")
		if id == "" {
			id = "unknown"
		}
		chunkIDs = append(chunkIDs, id)
	}

	numChunks := len(chunkResults)
	avgLatency := 0.0
	if numChunks > 0 {
		avgLatency = totalLatency / float64(numChunks)
	}

	return map[string]any{
		"technique":             "chunked_analysis",
		"num_chunks":            numChunks,
		"failed_chunks":         failed,
		"total_tokens":          totalTokens,
		"total_latency":         totalLatency,
		"avg_latency_per_chunk": avgLatency,
		"chunk_ids":             chunkIDs,
	}
}
