package retrieval

import (
	"context"
	"log/slog"

	"github.com/bookworm-ai/bookworm/internal/vector"
)

// Retriever resolves a question into context chunks, either by wrapping the
// reader's selected text or by similarity search over the corpus. It never
// returns an error: retrieval failures degrade to an empty result and the
// caller answers from general knowledge.
type Retriever struct {
	embedder *Embedder
	store    *vector.Client
	topK     int
	logger   *slog.Logger
}

func NewRetriever(embedder *Embedder, store *vector.Client, topK int, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	if topK <= 0 {
		topK = 5
	}
	return &Retriever{embedder: embedder, store: store, topK: topK, logger: logger}
}

// Retrieve returns chunks for the question. Selected text becomes a single
// synthetic chunk with a perfect score; otherwise the corpus is searched.
func (r *Retriever) Retrieve(ctx context.Context, question, selectedText string) []vector.ScoredChunk {
	return r.RetrieveFiltered(ctx, question, selectedText, nil)
}

// RetrieveFiltered is Retrieve with an optional metadata filter applied to
// the corpus search. The filter has no effect on selected-text questions.
func (r *Retriever) RetrieveFiltered(ctx context.Context, question, selectedText string, filter *vector.Filter) []vector.ScoredChunk {
	if SelectStrategy(question, selectedText) == StrategySelectedOnly {
		return []vector.ScoredChunk{{
			Chunk: vector.Chunk{
				Content: selectedText,
				Metadata: vector.Metadata{
					Title:    "Selected Text",
					Week:     "User Selection",
					FilePath: "user_input",
				},
			},
			Score: 1.0,
		}}
	}

	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		r.logger.Error("embedding question failed", "error", err)
		return nil
	}

	return r.store.Search(ctx, vec, r.topK, filter)
}
