// Package pipeline runs a question through analysis, retrieval, context
// assembly, generation, and persistence. Everything downstream of input
// validation degrades instead of failing: the caller always gets an answer.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bookworm-ai/bookworm/internal/analysis"
	"github.com/bookworm-ai/bookworm/internal/composer"
	"github.com/bookworm-ai/bookworm/internal/generation"
	"github.com/bookworm-ai/bookworm/internal/retrieval"
	"github.com/bookworm-ai/bookworm/internal/storage"
)

// titleRunes caps the auto-generated conversation title length.
const titleRunes = 50

// ChatRequest is a validated chat turn.
type ChatRequest struct {
	Question       string
	SelectedText   string
	ConversationID string
}

// ChatResponse is the answer to one turn.
type ChatResponse struct {
	Answer         string
	Citations      []string
	Sources        []generation.Source
	ConversationID string
	QueryType      string
}

// Pipeline wires the chat stages together.
type Pipeline struct {
	analyzer  *analysis.Analyzer
	retriever *retrieval.Retriever
	generator *generation.Generator
	store     *storage.Store
	logger    *slog.Logger
}

func New(analyzer *analysis.Analyzer, retriever *retrieval.Retriever, generator *generation.Generator, store *storage.Store, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		analyzer:  analyzer,
		retriever: retriever,
		generator: generator,
		store:     store,
		logger:    logger,
	}
}

// Answer runs one chat turn. It never returns an error: retrieval,
// analysis, and persistence failures all degrade, and generation has its
// own fallback answer.
func (p *Pipeline) Answer(ctx context.Context, req ChatRequest) ChatResponse {
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	qa := p.analyzer.Analyze(ctx, req.Question)

	chunks := p.retriever.Retrieve(ctx, req.Question, req.SelectedText)
	contextBlock := composer.Build(chunks, req.SelectedText)

	history := p.loadHistory(conversationID)

	result := p.generator.Generate(ctx, req.Question, contextBlock, history)
	sources := generation.FormatSources(chunks)

	p.persist(conversationID, req.Question, qa.Type, result, sources)

	return ChatResponse{
		Answer:         result.Answer,
		Citations:      result.Citations,
		Sources:        sources,
		ConversationID: conversationID,
		QueryType:      qa.Type,
	}
}

// loadHistory returns prior turns, or nil when the conversation does not
// exist yet or storage is unavailable.
func (p *Pipeline) loadHistory(conversationID string) []storage.Message {
	if p.store == nil {
		return nil
	}
	if _, err := p.store.GetConversation(conversationID); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.logger.Warn("loading conversation failed", "conversation_id", conversationID, "error", err)
		}
		return nil
	}
	history, err := p.store.ListMessages(conversationID)
	if err != nil {
		p.logger.Warn("loading history failed", "conversation_id", conversationID, "error", err)
		return nil
	}
	return history
}

// persist records the turn best-effort. A missing conversation is created
// with the requested id so client-supplied ids stay valid across turns.
func (p *Pipeline) persist(conversationID, question, queryType string, result generation.Result, sources []generation.Source) {
	if p.store == nil {
		return
	}

	if _, err := p.store.GetConversation(conversationID); errors.Is(err, storage.ErrNotFound) {
		if _, err := p.store.CreateConversation(conversationID, "", titleFrom(question)); err != nil {
			p.logger.Warn("creating conversation failed", "conversation_id", conversationID, "error", err)
			return
		}
	} else if err != nil {
		p.logger.Warn("checking conversation failed", "conversation_id", conversationID, "error", err)
		return
	}

	if _, err := p.store.AddMessage(storage.Message{
		ConversationID: conversationID,
		Role:           "user",
		Content:        question,
		QueryType:      queryType,
	}); err != nil {
		p.logger.Warn("saving user message failed", "conversation_id", conversationID, "error", err)
		return
	}

	sourcesJSON := ""
	if len(sources) > 0 {
		if b, err := json.Marshal(sources); err == nil {
			sourcesJSON = string(b)
		} else {
			p.logger.Warn("encoding sources failed", "error", err)
		}
	}

	if _, err := p.store.AddMessage(storage.Message{
		ConversationID: conversationID,
		Role:           "assistant",
		Content:        result.Answer,
		Sources:        sourcesJSON,
		QueryType:      queryType,
	}); err != nil {
		p.logger.Warn("saving assistant message failed", "conversation_id", conversationID, "error", err)
	}
}

func titleFrom(question string) string {
	runes := []rune(question)
	if len(runes) <= titleRunes {
		return question
	}
	return string(runes[:titleRunes]) + "..."
}
