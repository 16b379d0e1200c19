package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAICompat talks to any OpenAI-compatible chat-completions API.
// Groq exposes one at https://api.groq.com/openai/v1, which is the
// deployment this backend originally shipped against.
type OpenAICompat struct {
	client     *openai.Client
	name       string
	embedModel string
}

// NewOpenAICompat creates a provider against the given base URL. An empty
// baseURL targets api.openai.com.
func NewOpenAICompat(apiKey, baseURL, embedModel, name string) *OpenAICompat {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if name == "" {
		name = "openai-compatible"
	}
	return &OpenAICompat{
		client:     openai.NewClientWithConfig(cfg),
		name:       name,
		embedModel: embedModel,
	}
}

func (c *OpenAICompat) Name() string { return c.name }

func (c *OpenAICompat) Close() error { return nil }

func (c *OpenAICompat) ChatModel(ctx context.Context, model string, req Request) (string, Usage, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	ccr := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		ccr.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, ccr)
	if err != nil {
		return "", Usage{}, fmt.Errorf("%s chat completion: %w", c.name, err)
	}

	usage := Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}

	if len(resp.Choices) == 0 {
		return "", usage, fmt.Errorf("%s returned no choices", c.name)
	}
	return resp.Choices[0].Message.Content, usage, nil
}

func (c *OpenAICompat) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.embedModel),
	})
	if err != nil {
		return nil, fmt.Errorf("%s embedding: %w", c.name, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("empty embedding response")
	}
	return resp.Data[0].Embedding, nil
}

func (c *OpenAICompat) Healthy(ctx context.Context) bool {
	_, err := c.client.ListModels(ctx)
	return err == nil
}
