// Package ingest walks the textbook source tree, cleans and chunks each
// document, embeds the chunks, and loads them into the vector store.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bookworm-ai/bookworm/internal/retrieval"
	"github.com/bookworm-ai/bookworm/internal/storage"
	"github.com/bookworm-ai/bookworm/internal/vector"
)

// Pipeline ingests documents from a directory tree into the vector store.
type Pipeline struct {
	embedder     *retrieval.Embedder
	vectors      *vector.Client
	store        *storage.Store
	chunkSize    int
	chunkOverlap int
	logger       *slog.Logger
}

func NewPipeline(embedder *retrieval.Embedder, vectors *vector.Client, store *storage.Store, chunkSize, chunkOverlap int, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		embedder:     embedder,
		vectors:      vectors,
		store:        store,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		logger:       logger,
	}
}

// Run ingests every .md, .mdx, and .pdf file under docsDir and returns the
// total number of chunks stored. A file that fails to parse or embed is
// logged and skipped; walking errors abort the run.
func (p *Pipeline) Run(ctx context.Context, docsDir string) (int, error) {
	var total int

	err := filepath.WalkDir(docsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".mdx" && ext != ".pdf" {
			return nil
		}

		count, err := p.ingestFile(ctx, path, ext)
		if err != nil {
			p.logger.Warn("skipping file", "path", path, "error", err)
			return nil
		}
		total += count
		return nil
	})
	if err != nil {
		return total, fmt.Errorf("walking %s: %w", docsDir, err)
	}

	p.logger.Info("ingestion complete", "docs_dir", docsDir, "chunks", total)
	return total, nil
}

func (p *Pipeline) ingestFile(ctx context.Context, path, ext string) (int, error) {
	var text string
	var fm map[string]string

	switch ext {
	case ".pdf":
		extracted, err := ExtractPDFText(path)
		if err != nil {
			return 0, err
		}
		text = extracted
	default:
		raw, err := os.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("reading %s: %w", path, err)
		}
		fm = Frontmatter(string(raw))
		text = CleanMarkdown(string(raw))
	}

	pieces := SplitText(text, p.chunkSize, p.chunkOverlap)
	if len(pieces) == 0 {
		return 0, nil
	}

	vecs, err := p.embedder.EmbedBatch(ctx, pieces)
	if err != nil {
		return 0, fmt.Errorf("embedding %s: %w", path, err)
	}

	meta := MetadataFromPath(path, fm)
	fileStem := stem(path)

	chunks := make([]vector.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = vector.Chunk{
			ID:        ChunkID(fileStem, i),
			Content:   piece,
			Embedding: vecs[i],
			Metadata: vector.Metadata{
				Title:      meta.Title,
				Week:       meta.Week,
				FilePath:   path,
				ChunkIndex: i,
			},
		}
	}

	stored := p.vectors.Upsert(ctx, chunks)
	if stored == 0 {
		return 0, fmt.Errorf("storing chunks for %s", path)
	}

	if p.store != nil {
		if err := p.store.SaveDocument(storage.Document{
			FilePath:   path,
			Title:      meta.Title,
			Week:       meta.Week,
			ChunkCount: stored,
		}); err != nil {
			p.logger.Warn("recording document failed", "path", path, "error", err)
		}
	}

	p.logger.Debug("ingested file", "path", path, "chunks", stored)
	return stored, nil
}
