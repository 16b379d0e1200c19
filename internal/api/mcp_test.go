package api

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/bookworm-ai/bookworm/internal/analysis"
	"github.com/bookworm-ai/bookworm/internal/generation"
	"github.com/bookworm-ai/bookworm/internal/pipeline"
	"github.com/bookworm-ai/bookworm/internal/retrieval"
	"github.com/bookworm-ai/bookworm/internal/storage"
	"github.com/bookworm-ai/bookworm/internal/vector"
)

// --- mocks ---

type mockMCPSearcher struct {
	chunks []vector.ScoredChunk
	filter *vector.Filter
}

func (m *mockMCPSearcher) RetrieveFiltered(_ context.Context, _, _ string, filter *vector.Filter) []vector.ScoredChunk {
	m.filter = filter
	return m.chunks
}

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	fake := &fakeLLM{answer: "An answer [Chapter Locomotion: Weeks 3-4]."}
	p := pipeline.New(
		analysis.NewAnalyzer(fake, discardLogger()),
		retrieval.NewRetriever(retrieval.NewEmbedder(fake), vector.NewClient(nil, discardLogger()), 5, discardLogger()),
		generation.NewGenerator(fake, discardLogger()),
		store,
		discardLogger(),
	)

	return MCPDeps{
		Store:     store,
		Pipeline:  p,
		Retriever: &mockMCPSearcher{},
		Version:   "test",
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// --- tests ---

func TestMCPTool_SearchBook(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	searcher := &mockMCPSearcher{
		chunks: []vector.ScoredChunk{
			{Chunk: vector.Chunk{Content: "ZMP text", Metadata: vector.Metadata{Title: "Locomotion", Week: "Weeks 3-4"}}, Score: 0.9},
			{Chunk: vector.Chunk{Content: "more text", Metadata: vector.Metadata{Title: "Sensing", Week: "Weeks 5-6"}}, Score: 0.7},
		},
	}
	deps.Retriever = searcher
	handler := mcpSearchBook(deps)

	req := makeCallToolRequest("search_book", map[string]interface{}{
		"query": "zmp",
		"limit": 5,
		"week":  "Weeks 3-4",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var sources []generation.Source
	if err := json.Unmarshal([]byte(toolText(t, result)), &sources); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}

	if searcher.filter == nil || searcher.filter.Equals["week"] != "Weeks 3-4" {
		t.Errorf("week filter not passed: %+v", searcher.filter)
	}
}

func TestMCPTool_SearchBook_RequiresQuery(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpSearchBook(deps)

	result, err := handler(context.Background(), makeCallToolRequest("search_book", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing query")
	}
}

func TestMCPTool_AskBook(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpAskBook(deps)

	req := makeCallToolRequest("ask_book", map[string]interface{}{
		"question": "What is the zero moment point?",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var resp ChatResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &resp); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	if resp.Answer == "" || resp.ConversationID == "" {
		t.Errorf("incomplete response: %+v", resp)
	}

	// The turn was persisted like an HTTP chat.
	msgs, err := store.ListMessages(resp.ConversationID)
	if err != nil {
		t.Fatalf("listing messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("expected persisted turn, got %d messages", len(msgs))
	}
}

func TestMCPTool_GetConversation(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	id, _ := store.CreateConversation("", "", "ZMP chat")
	store.AddMessage(storage.Message{ConversationID: id, Role: "user", Content: "What is ZMP?"})
	store.AddMessage(storage.Message{ConversationID: id, Role: "assistant", Content: "A stability criterion."})

	handler := mcpGetConversation(deps)
	result, err := handler(context.Background(), makeCallToolRequest("get_conversation", map[string]interface{}{"id": id}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var conv struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &conv); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	if conv.Title != "ZMP chat" || len(conv.Messages) != 2 {
		t.Errorf("unexpected conversation: %+v", conv)
	}
}

func TestMCPTool_GetConversation_NotFound(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpGetConversation(deps)

	result, err := handler(context.Background(), makeCallToolRequest("get_conversation", map[string]interface{}{"id": "missing"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing conversation")
	}
}
