package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"qarag/types"
)

// FormatSources renders citations as "[i] <file> (Page <n>)", numbered from 1 with
// 1-based pages.
func FormatSources(chunks []types.RetrievedChunk) string {
	lines := make([]string, 0, len(chunks))
	for i, c := range chunks {
		lines = append(lines, fmt.Sprintf("[%d] %s (Page %d)", i+1, baseName(c.Source), c.Page+1))
	}
	return strings.Join(lines, "\n")
}

func baseName(source string) string {
	return filepath.Base(strings.ReplaceAll(source, `\`, "/"))
}
