package booksearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
	"github.com/kirillkom/bookshelf-aibot/internal/infrastructure/cache/memcache"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, options Options) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := New(server.URL, options)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestTextSearchMapsBilingualResults(t *testing.T) {
	var captured map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/text-search" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"results":[
			{"book_id": 101, "豆瓣书名": "三体", "豆瓣作者": "刘慈欣", "豆瓣评分": "9.3", "similarity_score": 0.81, "索书号": "I247.55/123"},
			{"embedding_id": "e-2", "title": "球状闪电", "authors": ["刘慈欣"], "final_score": 0.5, "tags": "科幻, 物理"},
			{"title": "无名", "author": "佚名"}
		], "metadata": {"took_ms": 12}}`))
	}, Options{})

	result, err := client.TextSearch(context.Background(), domain.TextSearchRequest{Query: "刘慈欣", TopK: 5, ResponseFormat: "json", MinRating: 7})
	if err != nil {
		t.Fatalf("TextSearch() error = %v", err)
	}
	if captured["query"] != "刘慈欣" || captured["top_k"] != float64(5) || captured["min_rating"] != float64(7) {
		t.Fatalf("unexpected request body %v", captured)
	}
	if result.TotalCount != 3 || result.SearchType != domain.SearchTypeText || result.SearchQuery != "刘慈欣" {
		t.Fatalf("unexpected envelope %+v", result)
	}
	first := result.Books[0]
	if first.ID != "101" || first.Title != "三体" || first.Author != "刘慈欣" || first.CallNumber != "I247.55/123" {
		t.Fatalf("unexpected first book %+v", first)
	}
	if first.Rating == nil || *first.Rating != 9.3 || first.SimilarityScore == nil || *first.SimilarityScore != 0.81 {
		t.Fatalf("expected parsed scores, got %+v", first)
	}
	second := result.Books[1]
	if second.ID != "e-2" || second.Author != "刘慈欣" || len(second.Tags) != 2 {
		t.Fatalf("unexpected second book %+v", second)
	}
	third := result.Books[2]
	if third.ID != "text-search-2" || !third.IDSynthesized {
		t.Fatalf("expected synthesized id, got %+v", third)
	}
	if result.Metadata["took_ms"] == nil {
		t.Fatalf("expected metadata to be kept")
	}
}

func TestMultiQueryParsesPlainTextAndDedupes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/multi-query" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"context_plain_text":"【三体】硬科幻巅峰之作 - 9.3分\n\n推荐理由见下\n【三体】重复条目 - 9.5分\n","metadata":{}}`))
	}, Options{})

	result, err := client.MultiQuerySearch(context.Background(), domain.MultiQueryRequest{MarkdownText: "# 科幻"})
	if err != nil {
		t.Fatalf("MultiQuerySearch() error = %v", err)
	}
	if len(result.Books) != 2 {
		t.Fatalf("expected 2 books after dedup, got %+v", result.Books)
	}
	book := result.Books[0]
	if book.Title != "三体" || len(book.Highlights) != 1 || book.Highlights[0] != "重复条目" || *book.Rating != 9.5 {
		t.Fatalf("expected higher rated duplicate in first slot, got %+v", book)
	}
	if result.Books[1].Title != "推荐理由见下" || result.Books[1].Description != "推荐理由见下" {
		t.Fatalf("expected verbatim line, got %+v", result.Books[1])
	}
}

func TestPlainTextLine(t *testing.T) {
	parser, err := newPlainTextParser("")
	if err != nil {
		t.Fatalf("newPlainTextParser() error = %v", err)
	}
	books := parser.parse("【三体】硬科幻巅峰之作 - 9.3分", domain.SearchTypeText)
	if len(books) != 1 {
		t.Fatalf("expected one book, got %d", len(books))
	}
	b := books[0]
	if b.Title != "三体" || b.Highlights[0] != "硬科幻巅峰之作" || b.Rating == nil || *b.Rating != 9.3 {
		t.Fatalf("unexpected parse %+v", b)
	}
}

func TestNewRejectsPatternWithoutGroups(t *testing.T) {
	if _, err := New("http://unused", Options{PlainTextPattern: `^(.+)$`}); err == nil {
		t.Fatalf("expected pattern validation error")
	}
}

func TestEmptyResponseIsEmptyResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"metadata":{"note":"nothing"}}`))
	}, Options{})

	result, err := client.TextSearch(context.Background(), domain.TextSearchRequest{Query: "x"})
	if err != nil {
		t.Fatalf("TextSearch() error = %v", err)
	}
	if result.Books == nil || len(result.Books) != 0 || result.TotalCount != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestBackendErrorIsTemporary(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index loading", http.StatusServiceUnavailable)
	}, Options{})

	_, err := client.TextSearch(context.Background(), domain.TextSearchRequest{Query: "x"})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestSearchCachesNonEmptyResults(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"results":[{"id":"1","title":"t"}]}`))
	}, Options{Cache: memcache.New(time.Minute), CacheTTL: time.Minute})

	req := domain.TextSearchRequest{Query: "x", TopK: 3}
	for i := 0; i < 2; i++ {
		if _, err := client.TextSearch(context.Background(), req); err != nil {
			t.Fatalf("TextSearch() error = %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one backend call, got %d", calls.Load())
	}
}
