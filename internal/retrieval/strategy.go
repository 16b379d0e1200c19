package retrieval

import "strings"

// Strategy names how context for a question is sourced.
type Strategy string

const (
	// StrategySelectedOnly answers from text the reader highlighted,
	// skipping vector search entirely.
	StrategySelectedOnly Strategy = "selected_only"
	// StrategyWholeBook searches the full textbook corpus.
	StrategyWholeBook Strategy = "whole_book"
)

// SelectStrategy picks the retrieval strategy for a question. Any non-blank
// selected text wins; everything else goes through the corpus.
func SelectStrategy(question, selectedText string) Strategy {
	if strings.TrimSpace(selectedText) != "" {
		return StrategySelectedOnly
	}
	return StrategyWholeBook
}
