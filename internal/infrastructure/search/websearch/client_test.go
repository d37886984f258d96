package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
	"github.com/kirillkom/bookshelf-aibot/internal/infrastructure/cache/memcache"
)

func TestSearchParsesItemsAndStripsHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("q") != "三体 书评" || q.Get("num") != "2" || q.Get("key") != "k" || q.Get("cx") != "cx" {
			t.Fatalf("unexpected query %v", q)
		}
		_, _ = w.Write([]byte(`{"items":[
			{"title":"<b>三体</b> 书评","link":"https://a","snippet":"plain","htmlSnippet":"刘慈欣的<b>硬科幻</b>&amp;史诗"},
			{"title":"第二","link":"https://b","snippet":"  多余   空白 "},
			{"title":"第三","link":"https://c","snippet":"cut"}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, Options{APIKey: "k", EngineID: "cx"})
	got, err := client.Search(context.Background(), " 三体 书评 ", 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 snippets, got %d", len(got))
	}
	if got[0].Title != "三体 书评" || got[0].Snippet != "刘慈欣的硬科幻&史诗" || got[0].URL != "https://a" {
		t.Fatalf("unexpected first snippet %+v", got[0])
	}
	if got[1].Snippet != "多余 空白" {
		t.Fatalf("expected collapsed whitespace, got %q", got[1].Snippet)
	}
}

func TestSearchUsesCache(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"items":[{"title":"t","link":"u","snippet":"s"}]}`))
	}))
	defer server.Close()

	client := New(server.URL, Options{Cache: memcache.New(time.Minute), CacheTTL: time.Minute})
	for i := 0; i < 2; i++ {
		got, err := client.Search(context.Background(), "q", 5)
		if err != nil || len(got) != 1 {
			t.Fatalf("Search() = %v, %v", got, err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected second search from cache, got %d calls", calls.Load())
	}
}

func TestSearchQuotaErrorIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := New(server.URL, Options{}).Search(context.Background(), "q", 3)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	got, err := New("http://unused", Options{}).Search(context.Background(), "  ", 3)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v %v", got, err)
	}
}
