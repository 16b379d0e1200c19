package vector

import (
	"context"
	"log/slog"
)

// Client wraps an Index with degrade-don't-fail semantics: every operation
// logs failures and returns an empty result instead of an error, so the chat
// pipeline keeps answering from general knowledge when the vector store is
// unavailable. A nil index makes every operation a no-op.
type Client struct {
	index  Index
	logger *slog.Logger
}

func NewClient(index Index, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{index: index, logger: logger}
}

// EnsureCollection creates the backing collection if needed. Failure is
// logged and the client stays usable in degraded mode.
func (c *Client) EnsureCollection(ctx context.Context) {
	if c.index == nil {
		return
	}
	if err := c.index.EnsureCollection(ctx); err != nil {
		c.logger.Error("vector store unavailable", "error", err)
	}
}

// Upsert stores chunks and returns how many were persisted. On failure it
// logs and reports zero.
func (c *Client) Upsert(ctx context.Context, chunks []Chunk) int {
	if c.index == nil || len(chunks) == 0 {
		return 0
	}
	if err := c.index.Upsert(ctx, chunks); err != nil {
		c.logger.Error("upserting chunks failed", "count", len(chunks), "error", err)
		return 0
	}
	return len(chunks)
}

// Search returns the topK most similar chunks, or nil when the store is
// unavailable or the search fails.
func (c *Client) Search(ctx context.Context, vec []float32, topK int, filter *Filter) []ScoredChunk {
	if c.index == nil {
		return nil
	}
	results, err := c.index.Search(ctx, vec, topK, filter)
	if err != nil {
		c.logger.Error("vector search failed", "top_k", topK, "error", err)
		return nil
	}
	return results
}

// Count reports the number of stored chunks, zero on failure.
func (c *Client) Count(ctx context.Context) int {
	if c.index == nil {
		return 0
	}
	n, err := c.index.Count(ctx)
	if err != nil {
		c.logger.Error("counting chunks failed", "error", err)
		return 0
	}
	return n
}

// Drop removes the collection. Failure is logged.
func (c *Client) Drop(ctx context.Context) {
	if c.index == nil {
		return
	}
	if err := c.index.DropCollection(ctx); err != nil {
		c.logger.Error("dropping collection failed", "error", err)
	}
}

// Ready reports whether the underlying store answers queries.
func (c *Client) Ready(ctx context.Context) bool {
	if c.index == nil {
		return false
	}
	_, err := c.index.Count(ctx)
	return err == nil
}
