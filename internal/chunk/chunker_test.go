package chunk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	return path
}

const sampleCpp = `#include <iostream>
#include <vector>
using namespace std;

int add(int a, int b) {
    return a + b;
}

class Counter {
public:
    void increment() { count++; }
private:
    int count = 0;
};

namespace util {
    int twice(int x) { return x * 2; }
}
`

func TestChunkFile_Declarations(t *testing.T) {
	path := writeTempFile(t, "sample.cpp", sampleCpp)

	chunker := NewChunker(200)
	defer chunker.Close()

	chunks, err := chunker.ChunkFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ChunkFile failed: %v", err)
	}

	// add function, Counter class, util namespace
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3: %+v", len(chunks), chunkIDs(chunks))
	}

	// Shared context carries the preamble
	for _, c := range chunks {
		if !strings.Contains(c.Context, "#include <iostream>") {
			t.Errorf("chunk %s context missing include: %q", c.ID, c.Context)
		}
		if !strings.Contains(c.Context, "using namespace std") {
			t.Errorf("chunk %s context missing using declaration", c.ID)
		}
	}

	// IDs carry resolved names and line ranges
	if !strings.HasPrefix(chunks[0].ID, "sample.cpp:add:") {
		t.Errorf("first chunk ID = %q, want sample.cpp:add:...", chunks[0].ID)
	}
	if name := chunks[1].Metadata["node_name"]; name != "Counter" {
		t.Errorf("second chunk node_name = %v, want Counter", name)
	}
	if nodeType := chunks[2].Metadata["node_type"]; nodeType != "namespace_definition" {
		t.Errorf("third chunk node_type = %v, want namespace_definition", nodeType)
	}

	assertOrderedNonOverlapping(t, chunks)
}

func TestChunkFile_NotFound(t *testing.T) {
	chunker := NewChunker(200)
	defer chunker.Close()

	_, err := chunker.ChunkFile(context.Background(), filepath.Join(t.TempDir(), "missing.cpp"))
	if !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
}

func TestChunkFile_EmptyFile(t *testing.T) {
	path := writeTempFile(t, "empty.cpp", "")

	chunker := NewChunker(200)
	defer chunker.Close()

	chunks, err := chunker.ChunkFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ChunkFile on empty file must not error: %v", err)
	}
	if len(chunks) > 1 {
		t.Errorf("empty file produced %d chunks, want at most 1", len(chunks))
	}
	for _, c := range chunks {
		if c.StartLine < 1 || c.EndLine < c.StartLine {
			t.Errorf("bad chunk span: %d-%d", c.StartLine, c.EndLine)
		}
	}
}

func TestChunkFile_SplitLargeDeclaration(t *testing.T) {
	var b strings.Builder
	b.WriteString("#include <cstdio>\n\nvoid big() {\n")
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "    printf(\"%d\");\n", i)
	}
	b.WriteString("}\n")

	path := writeTempFile(t, "big.cpp", b.String())

	chunker := NewChunker(10)
	defer chunker.Close()

	chunks, err := chunker.ChunkFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ChunkFile failed: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("oversized function was not split, got %d chunks", len(chunks))
	}

	for k, c := range chunks {
		wantSuffix := fmt.Sprintf("_part%d", k+1)
		if !strings.HasSuffix(c.ID, wantSuffix) {
			t.Errorf("chunk %d ID = %q, want suffix %s", k, c.ID, wantSuffix)
		}
		if split, _ := c.Metadata["is_split"].(bool); !split {
			t.Errorf("chunk %d missing is_split metadata", k)
		}
		if c.Context == "" {
			t.Errorf("sub-chunk %d lost the parent context", k)
		}
		if c.EndLine < c.StartLine || c.StartLine < 1 {
			t.Errorf("sub-chunk %d has bad span %d-%d", k, c.StartLine, c.EndLine)
		}
	}

	// Sub-chunk ranges stay within the parent declaration
	last := chunks[len(chunks)-1]
	fileLines := len(strings.Split(b.String(), "\n"))
	if last.EndLine > fileLines {
		t.Errorf("last sub-chunk end %d past file end %d", last.EndLine, fileLines)
	}

	assertOrderedNonOverlapping(t, chunks)
}

func TestChunkFile_FallbackCoverage(t *testing.T) {
	// Free statements only: nothing chunkable at the top level, so the
	// chunker must fall back to line windows covering [1, N] exactly.
	var b strings.Builder
	for i := 0; i < 95; i++ {
		fmt.Fprintf(&b, "int v%d = %d;\n", i, i)
	}
	text := b.String()
	path := writeTempFile(t, "globals.cpp", text)

	chunker := NewChunker(30)
	defer chunker.Close()

	chunks, err := chunker.ChunkFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ChunkFile failed: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("fallback produced no chunks")
	}

	totalLines := len(strings.Split(text, "\n"))
	covered := make(map[int]int)
	for _, c := range chunks {
		if fb, _ := c.Metadata["is_fallback"].(bool); !fb {
			t.Errorf("chunk %s missing is_fallback metadata", c.ID)
		}
		if c.Context != "" {
			t.Errorf("fallback chunk %s should have no context", c.ID)
		}
		for line := c.StartLine; line <= c.EndLine; line++ {
			covered[line]++
		}
	}

	for line := 1; line <= totalLines; line++ {
		if covered[line] != 1 {
			t.Fatalf("line %d covered %d times, want exactly 1", line, covered[line])
		}
	}
	if len(covered) != totalLines {
		t.Errorf("covered %d lines, want %d", len(covered), totalLines)
	}

	assertOrderedNonOverlapping(t, chunks)
}

func TestChunkLineCount(t *testing.T) {
	c := Chunk{Context: "#include <a>\n#include <b>", Code: "int f() {\n    return 1;\n}"}
	if got := c.LineCount(); got != 5 {
		t.Errorf("LineCount() = %d, want 5", got)
	}
	c.Context = ""
	if got := c.LineCount(); got != 3 {
		t.Errorf("LineCount() without context = %d, want 3", got)
	}
}

func assertOrderedNonOverlapping(t *testing.T, chunks []Chunk) {
	t.Helper()
	for i := 0; i < len(chunks)-1; i++ {
		if chunks[i].EndLine > chunks[i+1].StartLine {
			t.Errorf("chunks %d and %d overlap: %d-%d then %d-%d",
				i, i+1, chunks[i].StartLine, chunks[i].EndLine,
				chunks[i+1].StartLine, chunks[i+1].EndLine)
		}
	}
	for i, c := range chunks {
		if c.StartLine < 1 || c.EndLine < c.StartLine {
			t.Errorf("chunk %d has invalid span %d-%d", i, c.StartLine, c.EndLine)
		}
	}
}

func chunkIDs(chunks []Chunk) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return ids
}
