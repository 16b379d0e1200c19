package llm

import "context"

// Request is a single-turn completion request. The orchestration layer
// flattens conversation history and retrieved context into Prompt, so
// providers only need to support system + user content.
type Request struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
	// JSONMode asks the provider for structured JSON output where supported.
	JSONMode bool
}

// Usage reports token consumption for a completed call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Chatter is the minimal surface generation and analysis depend on.
// Fallback satisfies it with a fixed candidate chain.
type Chatter interface {
	Chat(ctx context.Context, req Request) (string, Usage, error)
}

// Embedder converts text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Provider abstracts a hosted LLM backend (Gemini, Groq, or any
// OpenAI-compatible server). The model is passed per call so a single
// client can serve a fallback chain of model names.
type Provider interface {
	Embedder

	// ChatModel sends a completion request to the named model.
	ChatModel(ctx context.Context, model string, req Request) (string, Usage, error)

	// Healthy reports whether the backend is reachable.
	Healthy(ctx context.Context) bool

	Name() string
	Close() error
}
