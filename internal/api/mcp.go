package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/bookworm-ai/bookworm/internal/generation"
	"github.com/bookworm-ai/bookworm/internal/pipeline"
	"github.com/bookworm-ai/bookworm/internal/storage"
	"github.com/bookworm-ai/bookworm/internal/vector"
)

// MCPSearcher abstracts corpus search for the MCP layer.
type MCPSearcher interface {
	RetrieveFiltered(ctx context.Context, question, selectedText string, filter *vector.Filter) []vector.ScoredChunk
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     *storage.Store
	Pipeline  *pipeline.Pipeline
	Retriever MCPSearcher
	Version   string
}

// NewMCPServer creates an MCP server exposing the textbook assistant's
// tools over stdio.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"bookworm",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithInstructions("bookworm answers questions about the 'Physical AI and Humanoid Robotics' textbook."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_book",
			mcp.WithDescription("Semantically search the textbook and return the most relevant passages."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
			mcp.WithString("week", mcp.Description("Restrict results to one week label, e.g. 'Weeks 3-4'")),
		),
		mcpSearchBook(deps),
	)

	s.AddTool(
		mcp.NewTool("ask_book",
			mcp.WithDescription("Ask the textbook assistant a question and get a cited answer."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithString("selected_text", mcp.Description("Optional passage to explain instead of searching the book")),
			mcp.WithString("conversation_id", mcp.Description("Optional conversation to continue")),
		),
		mcpAskBook(deps),
	)

	s.AddTool(
		mcp.NewTool("get_conversation",
			mcp.WithDescription("Fetch a conversation's message history."),
			mcp.WithString("id", mcp.Description("Conversation id"), mcp.Required()),
		),
		mcpGetConversation(deps),
	)

	return s
}

func mcpSearchBook(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpErrorResult("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 20 {
			limit = 20
		}

		var filter *vector.Filter
		if week := req.GetString("week", ""); week != "" {
			filter = &vector.Filter{Equals: map[string]string{"week": week}}
		}

		chunks := deps.Retriever.RetrieveFiltered(ctx, query, "", filter)
		if len(chunks) > limit {
			chunks = chunks[:limit]
		}
		if len(chunks) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(generation.FormatSources(chunks))
		if err != nil {
			return mcpErrorResult(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAskBook(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpErrorResult("question is required"), nil
		}
		if utf8.RuneCountInString(question) > maxQuestionRunes {
			return mcpErrorResult(fmt.Sprintf("question exceeds %d characters", maxQuestionRunes)), nil
		}

		resp := deps.Pipeline.Answer(ctx, pipeline.ChatRequest{
			Question:       question,
			SelectedText:   req.GetString("selected_text", ""),
			ConversationID: req.GetString("conversation_id", ""),
		})

		b, err := json.Marshal(ChatResponse{
			Answer:         resp.Answer,
			Citations:      resp.Citations,
			Sources:        resp.Sources,
			ConversationID: resp.ConversationID,
			QueryType:      resp.QueryType,
		})
		if err != nil {
			return mcpErrorResult(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetConversation(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpErrorResult("id is required"), nil
		}

		c, err := deps.Store.GetConversation(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpErrorResult("conversation not found"), nil
		}
		if err != nil {
			return mcpErrorResult(fmt.Sprintf("failed to get conversation: %v", err)), nil
		}

		msgs, err := deps.Store.ListMessages(id)
		if err != nil {
			return mcpErrorResult(fmt.Sprintf("failed to list messages: %v", err)), nil
		}

		type turn struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			CreatedAt string `json:"created_at"`
		}
		out := struct {
			ID       string `json:"id"`
			Title    string `json:"title"`
			Messages []turn `json:"messages"`
		}{ID: c.ID, Title: c.Title, Messages: make([]turn, 0, len(msgs))}

		for _, m := range msgs {
			out.Messages = append(out.Messages, turn{
				Role:      m.Role,
				Content:   m.Content,
				CreatedAt: m.CreatedAt.Format(time.RFC3339),
			})
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpErrorResult(fmt.Sprintf("failed to marshal conversation: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpErrorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
