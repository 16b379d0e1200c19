// Package api exposes the chat backend over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bookworm-ai/bookworm/internal/generation"
	"github.com/bookworm-ai/bookworm/internal/pipeline"
	"github.com/bookworm-ai/bookworm/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

const (
	maxQuestionRunes     = 2000
	maxSelectedTextRunes = 5000
)

// HealthChecker reports whether the LLM provider is reachable.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// VectorStatus reports vector store readiness and size.
type VectorStatus interface {
	Ready(ctx context.Context) bool
	Count(ctx context.Context) int
}

// Ingestor runs document ingestion for the admin endpoint.
type Ingestor interface {
	Run(ctx context.Context, docsDir string) (int, error)
}

// Deps holds everything the HTTP surface needs.
type Deps struct {
	Pipeline   *pipeline.Pipeline
	Store      *storage.Store
	LLM        HealthChecker
	Vectors    VectorStatus
	Ingest     Ingestor // optional; nil disables POST /admin/ingest
	DocsDir    string
	AdminToken string
	Version    string
}

// NewHandler builds the public router. Admin routes are mounted only when a
// token is configured.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/chat", handleChat(deps))
	r.Get("/conversations/{id}", handleGetConversation(deps))
	r.Post("/conversations/clear/{id}", handleClearConversation(deps))
	r.Get("/health", handleHealth(deps))
	r.Get("/progress/{userID}", handleGetProgress(deps))
	r.Post("/progress/{userID}/{chapterID}", handleSetProgress(deps))

	if deps.AdminToken != "" {
		r.Route("/admin", func(r chi.Router) {
			r.Use(BearerAuth(deps.AdminToken))
			r.Post("/ingest", handleIngest(deps))
			r.Get("/corpus/stats", handleCorpusStats(deps))
		})
	}

	return r
}

// ChatRequest is the wire shape of a chat turn.
type ChatRequest struct {
	Question       string `json:"question"`
	SelectedText   string `json:"selected_text,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatResponse is the wire shape of an answer.
type ChatResponse struct {
	Answer         string              `json:"answer"`
	Citations      []string            `json:"citations"`
	Sources        []generation.Source `json:"sources"`
	ConversationID string              `json:"conversation_id"`
	QueryType      string              `json:"query_type"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		question := strings.TrimSpace(req.Question)
		if question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}
		if utf8.RuneCountInString(question) > maxQuestionRunes {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question exceeds %d characters", maxQuestionRunes)
			return
		}
		if utf8.RuneCountInString(req.SelectedText) > maxSelectedTextRunes {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "selected_text exceeds %d characters", maxSelectedTextRunes)
			return
		}

		resp := deps.Pipeline.Answer(r.Context(), pipeline.ChatRequest{
			Question:       question,
			SelectedText:   req.SelectedText,
			ConversationID: strings.TrimSpace(req.ConversationID),
		})

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ChatResponse{
			Answer:         resp.Answer,
			Citations:      resp.Citations,
			Sources:        resp.Sources,
			ConversationID: resp.ConversationID,
			QueryType:      resp.QueryType,
		})
	}
}

// MessageResponse is a stored message with its sources decoded.
type MessageResponse struct {
	ID        string              `json:"id"`
	Role      string              `json:"role"`
	Content   string              `json:"content"`
	Sources   []generation.Source `json:"sources"`
	QueryType string              `json:"query_type,omitempty"`
	CreatedAt string              `json:"created_at"`
}

// ConversationResponse is a conversation with its full message history.
type ConversationResponse struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
	Messages  []MessageResponse `json:"messages"`
}

func handleGetConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		c, err := deps.Store.GetConversation(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get conversation: %v", err)
			return
		}

		msgs, err := deps.Store.ListMessages(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list messages: %v", err)
			return
		}

		out := ConversationResponse{
			ID:        c.ID,
			Title:     c.Title,
			CreatedAt: c.CreatedAt.Format(time.RFC3339),
			UpdatedAt: c.UpdatedAt.Format(time.RFC3339),
			Messages:  make([]MessageResponse, 0, len(msgs)),
		}
		for _, m := range msgs {
			out.Messages = append(out.Messages, MessageResponse{
				ID:        m.ID,
				Role:      m.Role,
				Content:   m.Content,
				Sources:   decodeSources(m.Sources),
				QueryType: m.QueryType,
				CreatedAt: m.CreatedAt.Format(time.RFC3339),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

// decodeSources parses a stored sources column. Malformed or empty data
// decodes to an empty list rather than failing the whole conversation fetch.
func decodeSources(raw string) []generation.Source {
	if raw == "" {
		return []generation.Source{}
	}
	var sources []generation.Source
	if err := json.Unmarshal([]byte(raw), &sources); err != nil || sources == nil {
		return []generation.Source{}
	}
	return sources
}

func handleClearConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.ClearConversation(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear conversation: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "cleared"})
	}
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := map[string]string{
			"llm":          serviceState(deps.LLM != nil && deps.LLM.Healthy(r.Context())),
			"vector_store": serviceState(deps.Vectors != nil && deps.Vectors.Ready(r.Context())),
			"database":     serviceState(deps.Store != nil && deps.Store.DB().PingContext(r.Context()) == nil),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   deps.Version,
			"services":  services,
		})
	}
}

func serviceState(up bool) string {
	if up {
		return "connected"
	}
	return "disconnected"
}

func handleGetProgress(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")

		progress, err := deps.Store.ListChapterProgress(userID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list progress: %v", err)
			return
		}
		if progress == nil {
			progress = []storage.ChapterProgress{}
		}

		type progressEntry struct {
			ChapterID string `json:"chapter_id"`
			Completed bool   `json:"completed"`
		}
		entries := make([]progressEntry, 0, len(progress))
		for _, p := range progress {
			entries = append(entries, progressEntry{ChapterID: p.ChapterID, Completed: p.Completed})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"user_id":  userID,
			"chapters": entries,
		})
	}
}

func handleSetProgress(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		chapterID := chi.URLParam(r, "chapterID")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var body struct {
			Completed bool `json:"completed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if err := deps.Store.SetChapterProgress(userID, chapterID, body.Completed); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to set progress: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "updated"})
	}
}

func handleIngest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Ingest == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "ingestion not configured")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var body struct {
			DocsDir string `json:"docs_dir"`
		}
		// Body is optional; an empty or absent body means the configured dir.
		_ = json.NewDecoder(r.Body).Decode(&body)
		docsDir := body.DocsDir
		if docsDir == "" {
			docsDir = deps.DocsDir
		}

		count, err := deps.Ingest.Run(r.Context(), docsDir)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "ingestion failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status": "completed",
			"chunks": count,
		})
	}
}

func handleCorpusStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := deps.Store.ListDocuments()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}

		var chunks int
		if deps.Vectors != nil {
			chunks = deps.Vectors.Count(r.Context())
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"documents": len(docs),
			"chunks":    chunks,
		})
	}
}

