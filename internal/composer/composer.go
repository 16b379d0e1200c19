// Package composer assembles retrieved chunks into the context block fed to
// the generation prompt.
package composer

import (
	"fmt"
	"strings"

	"github.com/bookworm-ai/bookworm/internal/vector"
)

// Build renders chunks into a context string. Selected text gets a plain
// wrapper; corpus chunks are rendered as source-attributed blocks so the
// model can cite them. An empty input yields an empty string, which signals
// the generator to answer from general knowledge.
func Build(chunks []vector.ScoredChunk, selectedText string) string {
	if strings.TrimSpace(selectedText) != "" {
		return "Context provided by user:\n" + selectedText
	}
	if len(chunks) == 0 {
		return ""
	}

	var b strings.Builder
	for _, ch := range chunks {
		fmt.Fprintf(&b, "Source: %s - %s\n", ch.Metadata.Title, ch.Metadata.Week)
		fmt.Fprintf(&b, "File: %s\n", ch.Metadata.FilePath)
		fmt.Fprintf(&b, "Content: %s\n", ch.Content)
		fmt.Fprintf(&b, "Score: %.4f\n", ch.Score)
		b.WriteString("---\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
