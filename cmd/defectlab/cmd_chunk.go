package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"defectlab/internal/chunk"
)

var chunkMaxLines int

var chunkCmd = &cobra.Command{
	Use:   "chunk [file]",
	Short: "Show how a file would be chunked",
	Long: `Splits a file with the syntax-aware chunker and prints each chunk's
span and metadata without calling any model. Useful for tuning
max-lines and inspecting fallback behavior on unparseable files.`,
	Args: cobra.ExactArgs(1),
	RunE: runChunk,
}

func init() {
	chunkCmd.Flags().IntVar(&chunkMaxLines, "max-lines", 0, "max lines per chunk (default from config)")
}

func runChunk(cmd *cobra.Command, args []string) error {
	maxLines := chunkMaxLines
	if maxLines == 0 {
		maxLines = cfg.Chunking.MaxChunkLines
	}

	chunker := chunk.NewChunker(maxLines)
	defer chunker.Close()

	chunks, err := chunker.ChunkFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%d chunk(s), max %d lines each\n\n", len(chunks), maxLines)
	for i, ch := range chunks {
		fmt.Printf("%2d. %s\n", i+1, ch.ID)
		fmt.Printf("    lines %d-%d (%d lines)", ch.StartLine, ch.EndLine, ch.LineCount())
		if nodeType, ok := ch.Metadata["node_type"].(string); ok {
			fmt.Printf(", %s", nodeType)
		}
		if fallback, ok := ch.Metadata["is_fallback"].(bool); ok && fallback {
			fmt.Print(", fallback")
		}
		if split, ok := ch.Metadata["is_split"].(bool); ok && split {
			fmt.Print(", split")
		}
		fmt.Println()
	}
	return nil
}
