package generation

import (
	"github.com/bookworm-ai/bookworm/internal/vector"
)

// previewRunes caps the content preview length in a source attribution.
const previewRunes = 200

// Source is the client-facing attribution for one retrieved chunk.
type Source struct {
	Chapter        string  `json:"chapter"`
	Section        string  `json:"section"`
	Content        string  `json:"content"`
	FilePath       string  `json:"file_path"`
	RelevanceScore float32 `json:"relevance_score"`
}

// FormatSources converts retrieved chunks into attributions with truncated
// content previews. Blank metadata gets placeholder labels.
func FormatSources(chunks []vector.ScoredChunk) []Source {
	sources := make([]Source, 0, len(chunks))
	for _, ch := range chunks {
		chapter := ch.Metadata.Title
		if chapter == "" {
			chapter = "Unknown Chapter"
		}
		section := ch.Metadata.Week
		if section == "" {
			section = "Unknown Section"
		}
		sources = append(sources, Source{
			Chapter:        chapter,
			Section:        section,
			Content:        preview(ch.Content),
			FilePath:       ch.Metadata.FilePath,
			RelevanceScore: ch.Score,
		})
	}
	return sources
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewRunes {
		return content
	}
	return string(runes[:previewRunes]) + "..."
}
