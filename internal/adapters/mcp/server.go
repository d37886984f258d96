package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
	"github.com/kirillkom/bookshelf-aibot/internal/core/ports"
)

const (
	toolSearchBooks    = "search_books"
	toolClassifyIntent = "classify_intent"
)

// Server exposes book search and intent classification as MCP tools.
type Server struct {
	books      ports.BookSearchService
	classifier ports.IntentClassifier
}

func New(books ports.BookSearchService, classifier ports.IntentClassifier) *Server {
	return &Server{books: books, classifier: classifier}
}

func (s *Server) MCPServer(version string) *server.MCPServer {
	srv := server.NewMCPServer("bookshelf-aibot", version, server.WithToolCapabilities(false))

	srv.AddTool(mcp.NewTool(toolSearchBooks,
		mcp.WithDescription("Search the library catalogue with a free-text query and return matching books as JSON."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Topic, title, author or question to search for.")),
		mcp.WithNumber("top_k", mcp.Description("Maximum number of books to return.")),
	), s.searchBooks)

	srv.AddTool(mcp.NewTool(toolClassifyIntent,
		mcp.WithDescription("Classify a user utterance as simple_search, deep_search or other."),
		mcp.WithString("utterance", mcp.Required(), mcp.Description("The user's latest message.")),
		mcp.WithString("previous_mode", mcp.Description("Chat mode of the previous turn, e.g. deep-search.")),
	), s.classifyIntent)

	return srv
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio(version string) error {
	return server.ServeStdio(s.MCPServer(version))
}

func (s *Server) searchBooks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	topK := request.GetInt("top_k", 0)

	result, err := s.books.SearchText(ctx, query, topK)
	if err != nil {
		slog.Warn("mcp_tool_failed", "tool", toolSearchBooks, "error", err.Error())
		return mcp.NewToolResultError(toolErrorMessage(err)), nil
	}
	return jsonResult(result)
}

func (s *Server) classifyIntent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	utterance, err := request.RequireString("utterance")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	previous, _ := domain.ParseChatMode(request.GetString("previous_mode", ""))
	return jsonResult(s.classifier.Classify(ctx, utterance, previous))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func toolErrorMessage(err error) string {
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		return validation.Message
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return "book search is temporarily unavailable"
	}
	return "book search failed"
}
