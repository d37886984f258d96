package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
)

type booksFake struct {
	query string
	topK  int
	err   error
}

func (f *booksFake) SearchDraft(context.Context, domain.DraftBookSearchRequest) (*domain.DraftBookSearchResult, error) {
	return nil, errors.New("not used")
}

func (f *booksFake) SearchText(_ context.Context, query string, topK int) (*domain.RetrievalResultData, error) {
	f.query, f.topK = query, topK
	if f.err != nil {
		return nil, f.err
	}
	return &domain.RetrievalResultData{
		Books:      []domain.BookInfo{{ID: "b1", Title: "三体", Author: "刘慈欣"}},
		TotalCount: 1,
		SearchType: domain.SearchTypeText,
	}, nil
}

type classifierFake struct {
	previous domain.ChatMode
}

func (f *classifierFake) Classify(_ context.Context, _ string, previous domain.ChatMode) domain.IntentClassificationResult {
	f.previous = previous
	return domain.IntentClassificationResult{Intent: domain.IntentDeepSearch, Confidence: 0.85, Source: domain.IntentSourceRule}
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) != 1 {
		t.Fatalf("expected one content item, got %d", len(result.Content))
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestSearchBooksTool(t *testing.T) {
	books := &booksFake{}
	s := New(books, &classifierFake{})

	result, err := s.searchBooks(context.Background(), callRequest(toolSearchBooks, map[string]any{"query": "科幻", "top_k": 5}))
	if err != nil {
		t.Fatalf("searchBooks: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	var data domain.RetrievalResultData
	if err := json.Unmarshal([]byte(resultText(t, result)), &data); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(data.Books) != 1 || data.Books[0].Title != "三体" {
		t.Fatalf("unexpected books %+v", data.Books)
	}
	if books.query != "科幻" || books.topK != 5 {
		t.Fatalf("unexpected call query=%q topK=%d", books.query, books.topK)
	}
}

func TestSearchBooksToolRequiresQuery(t *testing.T) {
	s := New(&booksFake{}, &classifierFake{})

	result, err := s.searchBooks(context.Background(), callRequest(toolSearchBooks, map[string]any{}))
	if err != nil {
		t.Fatalf("searchBooks: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected tool error for missing query")
	}
}

func TestSearchBooksToolHidesBackendErrors(t *testing.T) {
	s := New(&booksFake{err: domain.WrapError(domain.ErrTemporary, "text search", errors.New("10.0.0.7 refused"))}, &classifierFake{})

	result, err := s.searchBooks(context.Background(), callRequest(toolSearchBooks, map[string]any{"query": "科幻"}))
	if err != nil {
		t.Fatalf("searchBooks: %v", err)
	}
	if !result.IsError || resultText(t, result) != "book search is temporarily unavailable" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestClassifyIntentTool(t *testing.T) {
	classifier := &classifierFake{}
	s := New(&booksFake{}, classifier)

	result, err := s.classifyIntent(context.Background(), callRequest(toolClassifyIntent, map[string]any{
		"utterance":     "继续",
		"previous_mode": "deep",
	}))
	if err != nil {
		t.Fatalf("classifyIntent: %v", err)
	}
	var got domain.IntentClassificationResult
	if err := json.Unmarshal([]byte(resultText(t, result)), &got); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if got.Intent != domain.IntentDeepSearch || got.Source != domain.IntentSourceRule {
		t.Fatalf("unexpected classification %+v", got)
	}
	if classifier.previous != domain.ChatModeDeepSearch {
		t.Fatalf("expected previous mode deep-search, got %q", classifier.previous)
	}
}

func TestMCPServerListsTools(t *testing.T) {
	srv := New(&booksFake{}, &classifierFake{}).MCPServer("test")

	reply := srv.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`))
	raw, err := json.Marshal(reply)
	if err != nil {
		t.Fatalf("marshal reply: %v", err)
	}
	for _, name := range []string{toolSearchBooks, toolClassifyIntent} {
		if !strings.Contains(string(raw), `"name":"`+name+`"`) {
			t.Fatalf("tool %s missing from %s", name, raw)
		}
	}
}
