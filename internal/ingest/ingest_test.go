package ingest

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/bookworm-ai/bookworm/internal/retrieval"
	"github.com/bookworm-ai/bookworm/internal/storage"
	"github.com/bookworm-ai/bookworm/internal/vector"
)

func TestChunkID_Stable(t *testing.T) {
	a := ChunkID("walking-gaits", 0)
	b := ChunkID("walking-gaits", 0)
	if a != b {
		t.Errorf("same inputs produced different ids: %d != %d", a, b)
	}
	if ChunkID("walking-gaits", 1) == a {
		t.Error("different index produced same id")
	}
	if ChunkID("other-file", 0) == a {
		t.Error("different stem produced same id")
	}
}

func TestCleanMarkdown(t *testing.T) {
	input := `---
title: "Walking Gaits"
week: Weeks 3-4
---

import Diagram from '../components/Diagram'

# Walking Gaits

Bipedal robots use the **zero moment point** to stay upright.
See [the overview](../overview.md) for background.

<Diagram src="gait.png" />

` + "```python\nprint(\"ignored\")\n```" + `

Inline ` + "`code`" + ` stays as text.`

	got := CleanMarkdown(input)

	if strings.Contains(got, "---") || strings.Contains(got, "title:") {
		t.Errorf("frontmatter not stripped:\n%s", got)
	}
	if strings.Contains(got, "import Diagram") {
		t.Errorf("MDX import not stripped:\n%s", got)
	}
	if strings.Contains(got, "#") {
		t.Errorf("header marker not stripped:\n%s", got)
	}
	if strings.Contains(got, "**") || !strings.Contains(got, "zero moment point") {
		t.Errorf("bold not unwrapped:\n%s", got)
	}
	if !strings.Contains(got, "the overview") || strings.Contains(got, "](") {
		t.Errorf("link not unwrapped:\n%s", got)
	}
	if strings.Contains(got, "print(") {
		t.Errorf("code block not dropped:\n%s", got)
	}
	if strings.Contains(got, "<Diagram") {
		t.Errorf("JSX tag not stripped:\n%s", got)
	}
	if !strings.Contains(got, "code stays as text") {
		t.Errorf("inline code text lost:\n%s", got)
	}
}

func TestFrontmatter(t *testing.T) {
	fm := Frontmatter("---\ntitle: \"Walking Gaits\"\nweek: Weeks 3-4\n---\nBody text")
	if fm["title"] != "Walking Gaits" {
		t.Errorf("title = %q", fm["title"])
	}
	if fm["week"] != "Weeks 3-4" {
		t.Errorf("week = %q", fm["week"])
	}

	if fm := Frontmatter("no frontmatter here"); fm != nil {
		t.Errorf("expected nil, got %v", fm)
	}
}

func TestMetadataFromPath(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		frontmatter map[string]string
		wantTitle   string
		wantWeek    string
	}{
		{
			"week range dir",
			"docs/weeks-3-4/walking-gaits.md",
			nil,
			"Walking Gaits", "Weeks 3-4",
		},
		{
			"single week",
			"docs/week_5/sensor_fusion.mdx",
			nil,
			"Sensor Fusion", "Week 5",
		},
		{
			"no week in path",
			"docs/appendix/glossary.md",
			nil,
			"Glossary", "",
		},
		{
			"frontmatter wins",
			"docs/weeks-1-2/intro.md",
			map[string]string{"title": "Introduction", "week": "Weeks 1-2 (Orientation)"},
			"Introduction", "Weeks 1-2 (Orientation)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MetadataFromPath(tt.path, tt.frontmatter)
			if got.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", got.Title, tt.wantTitle)
			}
			if got.Week != tt.wantWeek {
				t.Errorf("Week = %q, want %q", got.Week, tt.wantWeek)
			}
		})
	}
}

func TestSplitText(t *testing.T) {
	para := strings.Repeat("Robots walk with careful balance. ", 10) // ~340 runes

	text := para + "\n\n" + para + "\n\n" + para
	chunks := SplitText(text, 500, 100)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c)) > 500 {
			t.Errorf("chunk %d exceeds size: %d runes", i, len([]rune(c)))
		}
		if strings.TrimSpace(c) == "" {
			t.Errorf("chunk %d is blank", i)
		}
	}
}

func TestSplitText_ShortTextSingleChunk(t *testing.T) {
	chunks := SplitText("short text", 1000, 200)
	if len(chunks) != 1 || chunks[0] != "short text" {
		t.Errorf("chunks = %v", chunks)
	}
}

func TestSplitText_Empty(t *testing.T) {
	if chunks := SplitText("   \n ", 1000, 200); chunks != nil {
		t.Errorf("expected nil, got %v", chunks)
	}
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	// Deterministic toy embedding keyed on length.
	return []float32{float32(len(text)), 1, 0}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPipelineRun(t *testing.T) {
	docsDir := t.TempDir()
	weekDir := filepath.Join(docsDir, "weeks-3-4")
	if err := os.MkdirAll(weekDir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := "---\ntitle: Walking Gaits\n---\n\n# Gaits\n\n" +
		strings.Repeat("Bipedal locomotion depends on the zero moment point. ", 40)
	if err := os.WriteFile(filepath.Join(weekDir, "walking-gaits.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	// Non-document files are ignored.
	if err := os.WriteFile(filepath.Join(weekDir, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening vector db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	idx := vector.NewSQLiteIndex(db, "book", 3)
	if err := idx.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("ensuring collection: %v", err)
	}
	client := vector.NewClient(idx, discardLogger())

	p := NewPipeline(retrieval.NewEmbedder(fakeEmbedder{}), client, store, 500, 100, discardLogger())

	count, err := p.Run(context.Background(), docsDir)
	if err != nil {
		t.Fatalf("running ingestion: %v", err)
	}
	if count == 0 {
		t.Fatal("expected chunks to be stored")
	}
	if got := client.Count(context.Background()); got != count {
		t.Errorf("vector count = %d, reported %d", got, count)
	}

	docs, err := store.ListDocuments()
	if err != nil {
		t.Fatalf("listing documents: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document record, got %d", len(docs))
	}
	if docs[0].Title != "Walking Gaits" || docs[0].Week != "Weeks 3-4" {
		t.Errorf("document metadata = %+v", docs[0])
	}
	if docs[0].ChunkCount != count {
		t.Errorf("ChunkCount = %d, want %d", docs[0].ChunkCount, count)
	}
}

func TestPipelineRun_Reingest_NoDuplicates(t *testing.T) {
	docsDir := t.TempDir()
	content := strings.Repeat("Balance control text. ", 60)
	if err := os.WriteFile(filepath.Join(docsDir, "balance.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	idx := vector.NewSQLiteIndex(db, "book", 3)
	if err := idx.EnsureCollection(context.Background()); err != nil {
		t.Fatal(err)
	}
	client := vector.NewClient(idx, discardLogger())

	p := NewPipeline(retrieval.NewEmbedder(fakeEmbedder{}), client, nil, 500, 100, discardLogger())

	first, err := p.Run(context.Background(), docsDir)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := p.Run(context.Background(), docsDir)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first != second {
		t.Errorf("chunk counts differ across runs: %d != %d", first, second)
	}
	if got := client.Count(context.Background()); got != first {
		t.Errorf("re-ingest duplicated chunks: count = %d, want %d", got, first)
	}
}
