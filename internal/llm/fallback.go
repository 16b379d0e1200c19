package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const defaultBudget = 60 * time.Second

// Candidate pairs a provider with a model name for the fallback chain.
type Candidate struct {
	Provider Provider
	Model    string
}

// Fallback tries an ordered list of (provider, model) candidates under a
// shared timeout budget. The first candidate that returns non-blank text
// wins; a candidate that errors or returns blank text is skipped. Once the
// budget is spent, remaining candidates are not attempted.
type Fallback struct {
	candidates []Candidate
	budget     time.Duration
	logger     *slog.Logger
}

// NewFallback creates a Fallback over the given candidates. If budget <= 0,
// a 60s default applies.
func NewFallback(budget time.Duration, candidates ...Candidate) *Fallback {
	if budget <= 0 {
		budget = defaultBudget
	}
	return &Fallback{
		candidates: candidates,
		budget:     budget,
		logger:     slog.Default(),
	}
}

var _ Chatter = (*Fallback)(nil)

func (f *Fallback) Chat(ctx context.Context, req Request) (string, Usage, error) {
	if len(f.candidates) == 0 {
		return "", Usage{}, errors.New("no candidate models configured")
	}

	ctx, cancel := context.WithTimeout(ctx, f.budget)
	defer cancel()

	var lastErr error
	for _, c := range f.candidates {
		text, usage, err := c.Provider.ChatModel(ctx, c.Model, req)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, usage, nil
		}
		if err == nil {
			err = errors.New("blank completion")
		}
		lastErr = fmt.Errorf("%s/%s: %w", c.Provider.Name(), c.Model, err)
		f.logger.Warn("candidate model failed, trying next",
			"provider", c.Provider.Name(), "model", c.Model, "error", err)

		if ctx.Err() != nil {
			break
		}
	}
	return "", Usage{}, fmt.Errorf("all candidate models failed: %w", lastErr)
}
