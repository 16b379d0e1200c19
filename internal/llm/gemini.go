package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Gemini talks to the Google Generative AI API for both chat completions
// and embeddings.
type Gemini struct {
	client     *genai.Client
	embedModel string
}

// NewGemini creates a Gemini provider with the given API key. embedModel
// names the embedding model (e.g. "text-embedding-004").
func NewGemini(ctx context.Context, apiKey, embedModel string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Gemini{client: client, embedModel: embedModel}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Close() error { return g.client.Close() }

func (g *Gemini) ChatModel(ctx context.Context, model string, req Request) (string, Usage, error) {
	m := g.client.GenerativeModel(model)

	if req.System != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}

	temp := req.Temperature
	m.GenerationConfig.Temperature = &temp
	if req.MaxTokens > 0 {
		maxTokens := int32(req.MaxTokens)
		m.GenerationConfig.MaxOutputTokens = &maxTokens
	}
	if req.JSONMode {
		m.GenerationConfig.ResponseMIMEType = "application/json"
	}

	resp, err := m.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", Usage{}, fmt.Errorf("gemini generate: %w", err)
	}

	var usage Usage
	if resp.UsageMetadata != nil {
		usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", usage, errors.New("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", usage, errors.New("gemini returned no text parts")
	}

	return sb.String(), usage, nil
}

func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	em := g.client.EmbeddingModel(g.embedModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("gemini returned empty embedding")
	}
	return res.Embedding.Values, nil
}

func (g *Gemini) Healthy(ctx context.Context) bool {
	it := g.client.ListModels(ctx)
	_, err := it.Next()
	return err == nil || errors.Is(err, iterator.Done)
}
