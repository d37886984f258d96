package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kirillkom/bookshelf-aibot/internal/infrastructure/resilience"
)

const serviceName = "llm"

func (c *Client) newRequest(ctx context.Context, path string, payload any, operation string) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := c.newRequest(ctx, path, payload, operation)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("llm %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewHTTPStatusError(serviceName, operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

// postStream reads an SSE body of chat completion chunks and forwards every
// non-empty delta. Failures after the first delta are wrapped as streamInterruptedError.
// The body has no overall deadline; a stream silent for longer than idleTimeout is aborted.
func (c *Client) postStream(ctx context.Context, path string, payload any, onChunk func(string) error) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var idled atomic.Bool
	idle := time.AfterFunc(c.idleTimeout, func() {
		idled.Store(true)
		cancel()
	})
	defer idle.Stop()

	req, err := c.newRequest(ctx, path, payload, "stream")
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if idled.Load() {
			return "", fmt.Errorf("llm stream request idle for %s: %w", c.idleTimeout, resilience.ErrAttemptTimeout)
		}
		return "", fmt.Errorf("llm stream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", resilience.NewHTTPStatusError(serviceName, "stream", resp)
	}

	var full strings.Builder
	fail := func(err error) (string, error) {
		if full.Len() > 0 {
			return full.String(), &streamInterruptedError{err: err}
		}
		return "", err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		idle.Reset(c.idleTimeout)
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return full.String(), nil
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fail(fmt.Errorf("decode stream chunk: %w", err))
		}
		for _, choice := range chunk.Choices {
			delta := choice.Delta.Content
			if delta == "" {
				continue
			}
			if err := onChunk(delta); err != nil {
				return full.String(), &streamInterruptedError{err: err, consumer: true}
			}
			full.WriteString(delta)
		}
	}
	if err := scanner.Err(); err != nil {
		if idled.Load() {
			return fail(fmt.Errorf("stream idle for %s: %w", c.idleTimeout, resilience.ErrAttemptTimeout))
		}
		return fail(fmt.Errorf("read stream: %w", err))
	}
	if idled.Load() {
		return fail(fmt.Errorf("stream idle for %s: %w", c.idleTimeout, resilience.ErrAttemptTimeout))
	}
	return full.String(), nil
}
