package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bookworm-ai/bookworm/internal/config"
	"github.com/bookworm-ai/bookworm/internal/ingest"
	"github.com/bookworm-ai/bookworm/internal/retrieval"
	"github.com/bookworm-ai/bookworm/internal/storage"
	"github.com/bookworm-ai/bookworm/internal/vector"
)

var ingestDocsDir string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest textbook sources into the vector store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd.Context())
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bookworm system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDocsDir, "docs", "", "docs directory (default from config)")
}

func runIngest(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	docsDir := ingestDocsDir
	if docsDir == "" {
		docsDir = cfg.Ingest.DocsDir
	}
	if _, err := os.Stat(docsDir); err != nil {
		printError("docs directory %s not found", docsDir)
		return err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	provider, _, err := buildLLM(ctx, cfg)
	if err != nil {
		return err
	}
	defer provider.Close()

	index := vector.NewSQLiteIndex(store.DB(), cfg.Vector.Collection, cfg.Embedding.Dimensions)
	if err := index.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("preparing vector store: %w", err)
	}
	vectors := vector.NewClient(index, slog.Default())

	printStep("Ingesting %s", docsDir)
	start := time.Now()

	p := ingest.NewPipeline(retrieval.NewEmbedder(provider), vectors, store, cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap, slog.Default())
	count, err := p.Run(ctx, docsDir)
	if err != nil {
		printError("ingestion failed: %v", err)
		return err
	}

	printSuccess("Ingested %d chunks in %s", count, time.Since(start).Round(time.Millisecond))
	printStatus("Corpus size", "%d chunks", vectors.Count(ctx))
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		defer resp.Body.Close()
		if resp.StatusCode == 200 {
			var health struct {
				Version  string            `json:"version"`
				Services map[string]string `json:"services"`
			}
			if json.NewDecoder(resp.Body).Decode(&health) == nil {
				printStatus("Server", "running on port %d (version %s)", cfg.Server.Port, health.Version)
				for _, svc := range []string{"llm", "vector_store", "database"} {
					printStatus(svc, "%s", health.Services[svc])
				}
			} else {
				printStatus("Server", "running on port %d", cfg.Server.Port)
			}
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Provider", "%s", cfg.LLM.Provider)
	printStatus("Embed model", "%s", cfg.Embedding.Model)
	printStatus("Collection", "%s", cfg.Vector.Collection)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Docs dir", "%s", cfg.Ingest.DocsDir)
	return nil
}
