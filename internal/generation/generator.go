// Package generation produces answers from assembled context and extracts
// the citations and source attributions attached to them.
package generation

import (
	"context"
	"log/slog"
	"strings"

	"github.com/bookworm-ai/bookworm/internal/llm"
	"github.com/bookworm-ai/bookworm/internal/storage"
)

// FallbackAnswer is returned when every generation attempt fails. It goes
// out as a normal answer so the client still gets a well-formed response.
const FallbackAnswer = "I apologize, but I'm having trouble generating a response right now. Please try rephrasing your question or try again in a moment."

// Result is a generated answer with its extracted citations.
type Result struct {
	Answer    string
	Citations []string
}

// Generator turns a question, context, and history into an answer. A blank
// context skips the grounded attempt; a failed grounded attempt falls back
// to general knowledge; a failed general attempt yields FallbackAnswer.
type Generator struct {
	chat   llm.Chatter
	logger *slog.Logger
}

func NewGenerator(chat llm.Chatter, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{chat: chat, logger: logger}
}

func (g *Generator) Generate(ctx context.Context, question, contextBlock string, history []storage.Message) Result {
	if strings.TrimSpace(contextBlock) != "" {
		answer, _, err := g.chat.Chat(ctx, llm.Request{
			System:      groundedSystem,
			Prompt:      BuildPrompt(question, contextBlock, history),
			Temperature: 0.3,
			MaxTokens:   1000,
		})
		if err == nil && strings.TrimSpace(answer) != "" {
			return Result{Answer: answer, Citations: ExtractCitations(answer)}
		}
		if err != nil {
			g.logger.Warn("grounded generation failed, trying general knowledge", "error", err)
		}
	}

	answer, _, err := g.chat.Chat(ctx, llm.Request{
		System:      generalSystem,
		Prompt:      BuildGeneralPrompt(question, history),
		Temperature: 0.5,
		MaxTokens:   1000,
	})
	if err != nil || strings.TrimSpace(answer) == "" {
		if err != nil {
			g.logger.Error("general generation failed", "error", err)
		}
		return Result{Answer: FallbackAnswer, Citations: []string{}}
	}

	return Result{Answer: answer, Citations: ExtractCitations(answer)}
}
