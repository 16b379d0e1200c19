package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/bookworm-ai/bookworm/internal/analysis"
	"github.com/bookworm-ai/bookworm/internal/api"
	"github.com/bookworm-ai/bookworm/internal/config"
	"github.com/bookworm-ai/bookworm/internal/generation"
	"github.com/bookworm-ai/bookworm/internal/ingest"
	"github.com/bookworm-ai/bookworm/internal/llm"
	"github.com/bookworm-ai/bookworm/internal/pipeline"
	"github.com/bookworm-ai/bookworm/internal/retrieval"
	"github.com/bookworm-ai/bookworm/internal/storage"
	"github.com/bookworm-ai/bookworm/internal/vector"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bookworm server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "bookworm version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build LLM provider and fallback chain.
	provider, chatter, err := buildLLM(ctx, cfg)
	if err != nil {
		return err
	}
	defer provider.Close()

	if provider.Healthy(ctx) {
		printSuccess("LLM provider %s reachable", provider.Name())
	} else {
		printWarning("LLM provider %s not reachable, answers will degrade", provider.Name())
	}

	// Vector store shares the SQLite database with relational storage.
	index := vector.NewSQLiteIndex(store.DB(), cfg.Vector.Collection, cfg.Embedding.Dimensions)
	vectors := vector.NewClient(index, slog.Default())
	vectors.EnsureCollection(ctx)

	embedder := retrieval.NewEmbedder(provider)
	ingestor := ingest.NewPipeline(embedder, vectors, store, cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap, slog.Default())

	// Populate the corpus on first start.
	if vectors.Count(ctx) == 0 {
		if _, statErr := os.Stat(cfg.Ingest.DocsDir); statErr == nil {
			printStep("Corpus empty, ingesting %s", cfg.Ingest.DocsDir)
			count, err := ingestor.Run(ctx, cfg.Ingest.DocsDir)
			if err != nil {
				printWarning("initial ingestion failed: %v", err)
			} else {
				printSuccess("Ingested %d chunks", count)
			}
		} else {
			printWarning("Corpus empty and docs dir %s not found, answers will use general knowledge", cfg.Ingest.DocsDir)
		}
	}

	retriever := retrieval.NewRetriever(embedder, vectors, cfg.Retrieval.TopK, slog.Default())
	chat := pipeline.New(
		analysis.NewAnalyzer(chatter, slog.Default()),
		retriever,
		generation.NewGenerator(chatter, slog.Default()),
		store,
		slog.Default(),
	)

	handler := api.NewHandler(api.Deps{
		Pipeline:   chat,
		Store:      store,
		LLM:        provider,
		Vectors:    vectors,
		Ingest:     ingestor,
		DocsDir:    cfg.Ingest.DocsDir,
		AdminToken: cfg.Admin.Token,
		Version:    version,
	})

	// MCP server over stdio.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:     store,
		Pipeline:  chat,
		Retriever: retriever,
		Version:   version,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "bookworm listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildLLM constructs the configured provider and a fallback chat chain
// covering the primary model plus any configured fallback models.
func buildLLM(ctx context.Context, cfg config.Config) (llm.Provider, llm.Chatter, error) {
	var provider llm.Provider
	var primaryModel string

	switch cfg.LLM.Provider {
	case "gemini":
		p, err := llm.NewGemini(ctx, cfg.LLM.GeminiAPIKey, cfg.Embedding.Model)
		if err != nil {
			return nil, nil, fmt.Errorf("creating gemini provider: %w", err)
		}
		provider = p
		primaryModel = cfg.LLM.GeminiModel
	case "groq":
		provider = llm.NewOpenAICompat(cfg.LLM.GroqAPIKey, cfg.LLM.GroqBaseURL, cfg.Embedding.Model, "groq")
		primaryModel = cfg.LLM.GroqModel
	default:
		return nil, nil, fmt.Errorf("unknown LLM provider %q", cfg.LLM.Provider)
	}

	candidates := []llm.Candidate{{Provider: provider, Model: primaryModel}}
	for _, model := range cfg.LLM.FallbackModels {
		if model == primaryModel {
			continue
		}
		candidates = append(candidates, llm.Candidate{Provider: provider, Model: model})
	}

	return provider, llm.NewFallback(0, candidates...), nil
}
