package vector

import "context"

// Metadata is the typed attribute set attached to every stored chunk.
// Extra carries attributes outside the fixed set without losing them.
type Metadata struct {
	Title      string            `json:"title,omitempty"`
	Week       string            `json:"week,omitempty"`
	FilePath   string            `json:"file_path,omitempty"`
	ChunkIndex int               `json:"chunk_index"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Chunk is one unit of ingested corpus text. ID is a deterministic hash
// of the source file and chunk index, so re-ingestion overwrites rather
// than duplicates.
type Chunk struct {
	ID        uint64
	Content   string
	Embedding []float32
	Metadata  Metadata
}

// ScoredChunk is a Chunk with a cosine similarity score attached.
// Produced per query, never persisted.
type ScoredChunk struct {
	Chunk
	Score float32
}

// Filter restricts a search by metadata. Equals requires exact matches;
// AnyOf requires the field value to be one of the listed values. Keys
// "title", "week" and "file_path" address the typed columns; any other
// key is matched against the Extra map.
type Filter struct {
	Equals map[string]string
	AnyOf  map[string][]string
}

// Index is the error-returning storage interface. Client wraps an Index
// with the graceful-degradation behavior the chat pipeline relies on.
type Index interface {
	// EnsureCollection creates the collection if absent. Idempotent.
	EnsureCollection(ctx context.Context) error

	// Upsert inserts or replaces chunks by ID in a single transaction.
	Upsert(ctx context.Context, chunks []Chunk) error

	// Search returns the topK most similar chunks by cosine similarity.
	Search(ctx context.Context, vec []float32, topK int, filter *Filter) ([]ScoredChunk, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// DropCollection removes the collection and all its chunks.
	DropCollection(ctx context.Context) error
}
