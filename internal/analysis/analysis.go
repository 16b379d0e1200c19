// Package analysis classifies incoming questions so the pipeline can log
// and store query characteristics. Classification is advisory: a failed or
// malformed LLM response falls back to a deterministic default and never
// blocks answering.
package analysis

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/bookworm-ai/bookworm/internal/llm"
)

// Analysis describes a classified question.
type Analysis struct {
	Intent     string   `json:"intent"`
	Type       string   `json:"question_type"`
	Keywords   []string `json:"keywords"`
	Complexity string   `json:"complexity"`
}

var validTypes = map[string]bool{
	"conceptual":   true,
	"factual":      true,
	"code-related": true,
	"comparison":   true,
	"procedural":   true,
}

var validComplexities = map[string]bool{
	"simple":   true,
	"moderate": true,
	"complex":  true,
}

// Analyzer classifies questions with a short-deadline LLM call.
type Analyzer struct {
	client  llm.Chatter
	timeout time.Duration
	logger  *slog.Logger
}

func NewAnalyzer(client llm.Chatter, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{client: client, timeout: 3 * time.Second, logger: logger}
}

// Analyze classifies a question. It never fails: any error or unusable
// response yields DefaultAnalysis.
func (a *Analyzer) Analyze(ctx context.Context, question string) Analysis {
	if a.client == nil {
		return DefaultAnalysis(question)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	text, _, err := a.client.Chat(ctx, llm.Request{
		System:      analysisSystemPrompt,
		Prompt:      buildAnalysisPrompt(question),
		Temperature: 0.1,
		MaxTokens:   200,
		JSONMode:    true,
	})
	if err != nil {
		a.logger.Warn("query analysis failed, using default", "error", err)
		return DefaultAnalysis(question)
	}

	parsed, ok := parseAnalysis(text)
	if !ok {
		a.logger.Warn("query analysis returned unusable JSON, using default", "response", text)
		return DefaultAnalysis(question)
	}
	return parsed
}

// parseAnalysis extracts an Analysis from model output, tolerating code
// fences and surrounding prose.
func parseAnalysis(text string) (Analysis, bool) {
	cleaned := stripCodeFences(text)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return Analysis{}, false
	}

	var a Analysis
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &a); err != nil {
		return Analysis{}, false
	}

	if a.Intent == "" {
		a.Intent = "information_request"
	}
	if !validTypes[a.Type] {
		a.Type = "factual"
	}
	if !validComplexities[a.Complexity] {
		a.Complexity = "moderate"
	}
	if a.Keywords == nil {
		a.Keywords = []string{}
	}
	return a, true
}

func stripCodeFences(text string) string {
	cleaned := strings.TrimSpace(text)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	return strings.TrimSpace(cleaned)
}

// DefaultAnalysis is the deterministic fallback classification: an
// information request of factual type with the question's first five
// whitespace-separated tokens as keywords.
func DefaultAnalysis(question string) Analysis {
	tokens := strings.Fields(question)
	if len(tokens) > 5 {
		tokens = tokens[:5]
	}
	if tokens == nil {
		tokens = []string{}
	}
	return Analysis{
		Intent:     "information_request",
		Type:       "factual",
		Keywords:   tokens,
		Complexity: "moderate",
	}
}
