package booksearch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
	"github.com/kirillkom/bookshelf-aibot/internal/core/ports"
	"github.com/kirillkom/bookshelf-aibot/internal/infrastructure/resilience"
)

const serviceName = "booksearch"

// Client wraps the book-search backend's text-search and multi-query endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
	cache      ports.Cache
	cacheTTL   time.Duration
	plainText  *plainTextParser
	now        func() time.Time
}

type Options struct {
	Timeout          time.Duration
	Executor         *resilience.Executor
	Cache            ports.Cache
	CacheTTL         time.Duration
	PlainTextPattern string
}

func New(baseURL string, options Options) (*Client, error) {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	parser, err := newPlainTextParser(options.PlainTextPattern)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.Executor,
		cache:      options.Cache,
		cacheTTL:   options.CacheTTL,
		plainText:  parser,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

var _ ports.BookRetriever = (*Client)(nil)

type searchResponse struct {
	Results          []map[string]any `json:"results"`
	ContextPlainText string           `json:"context_plain_text"`
	Metadata         map[string]any   `json:"metadata"`
}

func (c *Client) TextSearch(ctx context.Context, req domain.TextSearchRequest) (*domain.RetrievalResultData, error) {
	return c.search(ctx, "/text-search", domain.SearchTypeText, req.Query, req)
}

func (c *Client) MultiQuerySearch(ctx context.Context, req domain.MultiQueryRequest) (*domain.RetrievalResultData, error) {
	return c.search(ctx, "/multi-query", domain.SearchTypeMultiQuery, req.MarkdownText, req)
}

func (c *Client) search(
	ctx context.Context,
	path string,
	searchType domain.SearchType,
	query string,
	payload any,
) (*domain.RetrievalResultData, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", searchType, err)
	}

	cacheKey := cacheKeyFor(searchType, body)
	if cached, ok := c.cached(ctx, cacheKey); ok {
		return cached, nil
	}

	operation := "booksearch." + string(searchType)
	response, err := resilience.Do(ctx, c.executor, operation, func(ctx context.Context) (*searchResponse, error) {
		return c.post(ctx, path, body, string(searchType))
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporaryIfNeeded(operation, err, nil)
	}

	result := c.toResult(response, searchType, query)
	if len(result.Books) > 0 {
		c.store(ctx, cacheKey, result)
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, operation string) (*searchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("booksearch %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, resilience.NewHTTPStatusError(serviceName, operation, resp)
	}
	var out searchResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", operation, err)
	}
	return &out, nil
}

// toResult prefers structured results, then the plain-text block. Neither yields an empty result.
func (c *Client) toResult(resp *searchResponse, searchType domain.SearchType, query string) *domain.RetrievalResultData {
	var books []domain.BookInfo
	switch {
	case len(resp.Results) > 0:
		books = make([]domain.BookInfo, 0, len(resp.Results))
		for i, item := range resp.Results {
			if item == nil {
				continue
			}
			books = append(books, mapResult(item, searchType, i))
		}
	case strings.TrimSpace(resp.ContextPlainText) != "":
		books = c.plainText.parse(resp.ContextPlainText, searchType)
	}

	books = domain.DedupeBooks(books)
	return &domain.RetrievalResultData{
		Books:       books,
		TotalCount:  len(books),
		SearchQuery: query,
		SearchType:  searchType,
		Metadata:    resp.Metadata,
		Timestamp:   c.now(),
	}
}

func cacheKeyFor(searchType domain.SearchType, body []byte) string {
	sum := sha256.Sum256(body)
	return "booksearch:" + string(searchType) + ":" + hex.EncodeToString(sum[:])
}

func (c *Client) cached(ctx context.Context, key string) (*domain.RetrievalResultData, bool) {
	if c.cache == nil {
		return nil, false
	}
	data, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("booksearch_cache_get_failed", "error", err.Error())
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var result domain.RetrievalResultData
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false
	}
	return &result, true
}

func (c *Client) store(ctx context.Context, key string, result *domain.RetrievalResultData) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, c.cacheTTL); err != nil {
		slog.Warn("booksearch_cache_set_failed", "error", err.Error())
	}
}
