package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
	"github.com/kirillkom/bookshelf-aibot/internal/core/ports"
	"github.com/kirillkom/bookshelf-aibot/internal/infrastructure/resilience"
)

const (
	serviceName = "websearch"
	maxPerQuery = 10
)

// Client queries a Custom Search JSON API compatible endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	engineID   string
	httpClient *http.Client
	executor   *resilience.Executor
	cache      ports.Cache
	cacheTTL   time.Duration
}

type Options struct {
	APIKey   string
	EngineID string
	Timeout  time.Duration
	Executor *resilience.Executor
	Cache    ports.Cache
	CacheTTL time.Duration
}

func New(baseURL string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     options.APIKey,
		engineID:   options.EngineID,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.Executor,
		cache:      options.Cache,
		cacheTTL:   options.CacheTTL,
	}
}

var _ ports.WebSearcher = (*Client)(nil)

type searchResponse struct {
	Items []struct {
		Title       string `json:"title"`
		Link        string `json:"link"`
		Snippet     string `json:"snippet"`
		HTMLSnippet string `json:"htmlSnippet"`
	} `json:"items"`
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.SearchSnippet, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.SearchSnippet{}, nil
	}
	if limit <= 0 || limit > maxPerQuery {
		limit = maxPerQuery
	}

	cacheKey := "websearch:" + strconv.Itoa(limit) + ":" + query
	if cached, ok := c.cached(ctx, cacheKey); ok {
		return cached, nil
	}

	snippets, err := resilience.Do(ctx, c.executor, "websearch.search", func(ctx context.Context) ([]domain.SearchSnippet, error) {
		return c.search(ctx, query, limit)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporaryIfNeeded("web search", err, nil)
	}
	c.store(ctx, cacheKey, snippets)
	return snippets, nil
}

func (c *Client) search(ctx context.Context, query string, limit int) ([]domain.SearchSnippet, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("num", strconv.Itoa(limit))
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	if c.engineID != "" {
		params.Set("cx", c.engineID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("websearch request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, resilience.NewHTTPStatusError(serviceName, "search", resp)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.SearchSnippet, 0, len(payload.Items))
	for _, item := range payload.Items {
		text := item.Snippet
		if strings.TrimSpace(item.HTMLSnippet) != "" {
			text = item.HTMLSnippet
		}
		snippet := domain.SearchSnippet{
			Title:   stripHTML(item.Title),
			URL:     strings.TrimSpace(item.Link),
			Snippet: stripHTML(text),
		}
		if snippet.Title == "" && snippet.Snippet == "" {
			continue
		}
		out = append(out, snippet)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (c *Client) cached(ctx context.Context, key string) ([]domain.SearchSnippet, bool) {
	if c.cache == nil {
		return nil, false
	}
	data, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("websearch_cache_get_failed", "error", err.Error())
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var snippets []domain.SearchSnippet
	if err := json.Unmarshal(data, &snippets); err != nil {
		return nil, false
	}
	return snippets, true
}

func (c *Client) store(ctx context.Context, key string, snippets []domain.SearchSnippet) {
	if c.cache == nil || len(snippets) == 0 {
		return
	}
	data, err := json.Marshal(snippets)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, c.cacheTTL); err != nil {
		slog.Warn("websearch_cache_set_failed", "error", err.Error())
	}
}
