// Package chunk splits large source files into syntax-aware chunks for
// independent LLM analysis. Chunks align to top-level declaration
// boundaries when tree-sitter parsing succeeds and degrade to fixed-size
// line windows when it does not.
package chunk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"

	"defectlab/internal/logging"
)

// ErrFileNotFound is returned when the file to chunk does not exist.
var ErrFileNotFound = errors.New("file not found")

// DefaultMaxChunkLines is the line budget per chunk when none is given.
const DefaultMaxChunkLines = 200

// Node types recognized as chunkable top-level declarations.
var chunkableNodeTypes = map[string]bool{
	"function_definition":  true,
	"class_specifier":      true,
	"struct_specifier":     true,
	"namespace_definition": true,
}

// Node types collected into the shared file-level context block.
var contextNodeTypes = map[string]bool{
	"preproc_include":            true,
	"using_declaration":          true,
	"namespace_alias_definition": true,
}

// Chunk is a contiguous syntactic unit of one source file. Chunks are
// created once by the Chunker and never mutated afterward; line
// adjustment downstream produces new results, not modified chunks.
type Chunk struct {
	// ID is unique within a file: "{base}:{name}:{start}-{end}", with a
	// "_partN" suffix when a declaration was split, or
	// "{base}:lines_{start}-{end}" in fallback mode.
	ID        string
	FilePath  string
	StartLine int // 1-indexed, inclusive
	EndLine   int // 1-indexed, inclusive
	Code      string
	// Context is the file-level preamble (includes, usings) shared by
	// every chunk from the file. Empty in fallback mode.
	Context  string
	Metadata map[string]any
}

// LineCount returns the number of lines the chunk occupies when sent for
// analysis: context lines plus code lines.
func (c Chunk) LineCount() int {
	contextLines := 0
	if c.Context != "" {
		contextLines = len(strings.Split(c.Context, "\n"))
	}
	return contextLines + len(strings.Split(c.Code, "\n"))
}

// Chunker splits source files into analyzable chunks. It owns one
// tree-sitter parser, acquired at construction; parsers are expensive, so
// reuse one Chunker across files rather than creating one per call.
// A Chunker is not safe for concurrent ChunkFile calls.
type Chunker struct {
	parser        *sitter.Parser
	language      string
	maxChunkLines int
}

// NewChunker creates a Chunker for C++ sources with the given per-chunk
// line budget. A non-positive budget selects DefaultMaxChunkLines.
func NewChunker(maxChunkLines int) *Chunker {
	if maxChunkLines <= 0 {
		maxChunkLines = DefaultMaxChunkLines
	}
	parser := sitter.NewParser()
	parser.SetLanguage(cpp.GetLanguage())
	return &Chunker{
		parser:        parser,
		language:      "cpp",
		maxChunkLines: maxChunkLines,
	}
}

// Language returns the language tag this chunker parses.
func (c *Chunker) Language() string { return c.language }

// MaxChunkLines returns the configured per-chunk line budget.
func (c *Chunker) MaxChunkLines() int { return c.maxChunkLines }

// Close releases the tree-sitter parser.
func (c *Chunker) Close() {
	c.parser.Close()
}

// ChunkFile splits the file at path into an ordered list of chunks.
//
// A missing file is the only hard failure. Parser errors degrade to
// line-window fallback chunking, as does a file whose top level contains
// no recognized declarations (for example, free statements only).
func (c *Chunker) ChunkFile(ctx context.Context, path string) ([]Chunk, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	text := string(content)

	tree, err := c.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		logging.Get(logging.CategoryChunker).Warn("parse failed for %s, falling back to line chunking: %v", path, err)
		return c.fallbackLineChunks(path, text), nil
	}
	defer tree.Close()

	root := tree.RootNode()
	fileContext := extractFileContext(root, content)

	var chunks []Chunk
	for i := 0; i < int(root.ChildCount()); i++ {
		node := root.Child(i)
		if !chunkableNodeTypes[node.Type()] {
			continue
		}

		ch := c.chunkFromNode(node, path, content, fileContext)
		if ch.LineCount() <= c.maxChunkLines {
			chunks = append(chunks, ch)
		} else {
			chunks = append(chunks, c.splitLargeChunk(ch)...)
		}
	}

	// Files with only free-standing top-level code yield no declaration
	// chunks; cover them with plain line windows instead.
	if len(chunks) == 0 {
		logging.ChunkerDebug("no declaration chunks in %s, using line fallback", filepath.Base(path))
		return c.fallbackLineChunks(path, text), nil
	}

	logging.ChunkerDebug("chunked %s into %d chunks (context %d bytes)",
		filepath.Base(path), len(chunks), len(fileContext))
	return chunks, nil
}

// extractFileContext collects top-level preamble declarations (includes,
// usings, namespace aliases) in source order into one context string.
func extractFileContext(root *sitter.Node, content []byte) string {
	var lines []string
	for i := 0; i < int(root.ChildCount()); i++ {
		node := root.Child(i)
		if contextNodeTypes[node.Type()] {
			lines = append(lines, strings.TrimRight(node.Content(content), "\n"))
		}
	}
	return strings.Join(lines, "\n")
}

// chunkFromNode builds a Chunk spanning one top-level declaration.
func (c *Chunker) chunkFromNode(node *sitter.Node, path string, content []byte, fileContext string) Chunk {
	startLine := int(node.StartPoint().Row) + 1 // tree-sitter rows are 0-indexed
	endLine := int(node.EndPoint().Row) + 1

	name := nodeName(node, content)
	return Chunk{
		ID:        fmt.Sprintf("%s:%s:%d-%d", filepath.Base(path), name, startLine, endLine),
		FilePath:  path,
		StartLine: startLine,
		EndLine:   endLine,
		Code:      node.Content(content),
		Context:   fileContext,
		Metadata: map[string]any{
			"node_type": node.Type(),
			"node_name": name,
		},
	}
}

// nodeName extracts a best-effort declaration name. The label need not be
// unique; chunk IDs get uniqueness from the line range.
func nodeName(node *sitter.Node, content []byte) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "function_declarator":
			for j := 0; j < int(child.ChildCount()); j++ {
				sub := child.Child(j)
				if sub.Type() == "identifier" {
					return sub.Content(content)
				}
			}
		case "type_identifier", "identifier":
			return child.Content(content)
		}
	}
	return "unknown"
}

// splitLargeChunk splits a chunk exceeding the line budget into
// sequential sub-chunks. Sub-chunks keep the parent's context and ID
// prefix, with "_partK" suffixes and line ranges offset from the parent's
// start and clamped to its end.
func (c *Chunker) splitLargeChunk(parent Chunk) []Chunk {
	lines := strings.Split(parent.Code, "\n")
	var subs []Chunk

	for i := 0; i < len(lines); i += c.maxChunkLines {
		end := i + c.maxChunkLines
		if end > len(lines) {
			end = len(lines)
		}

		subStart := parent.StartLine + i
		subEnd := parent.StartLine + i + c.maxChunkLines - 1
		if subEnd > parent.EndLine {
			subEnd = parent.EndLine
		}

		metadata := make(map[string]any, len(parent.Metadata)+1)
		for k, v := range parent.Metadata {
			metadata[k] = v
		}
		metadata["is_split"] = true

		subs = append(subs, Chunk{
			ID:        fmt.Sprintf("%s_part%d", parent.ID, i/c.maxChunkLines+1),
			FilePath:  parent.FilePath,
			StartLine: subStart,
			EndLine:   subEnd,
			Code:      strings.Join(lines[i:end], "\n"),
			Context:   parent.Context,
			Metadata:  metadata,
		})
	}

	return subs
}

// fallbackLineChunks splits raw text into fixed-size, contiguous,
// non-overlapping line windows. Used when parsing fails or yields no
// chunks. Fallback chunks carry no context.
func (c *Chunker) fallbackLineChunks(path, text string) []Chunk {
	lines := strings.Split(text, "\n")
	var chunks []Chunk

	for i := 0; i < len(lines); i += c.maxChunkLines {
		end := i + c.maxChunkLines
		if end > len(lines) {
			end = len(lines)
		}

		startLine := i + 1
		endLine := end

		chunks = append(chunks, Chunk{
			ID:        fmt.Sprintf("%s:lines_%d-%d", filepath.Base(path), startLine, endLine),
			FilePath:  path,
			StartLine: startLine,
			EndLine:   endLine,
			Code:      strings.Join(lines[i:end], "\n"),
			Context:   "",
			Metadata:  map[string]any{"is_fallback": true},
		})
	}

	return chunks
}
