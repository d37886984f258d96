package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
	"github.com/kirillkom/bookshelf-aibot/internal/core/ports"
	"github.com/kirillkom/bookshelf-aibot/internal/infrastructure/resilience"
)

// Client talks to an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
	executor    *resilience.Executor
	timeout     time.Duration
	idleTimeout time.Duration
}

type Options struct {
	APIKey      string
	Model       string
	Temperature float64
	// Timeout bounds the wait for response headers and a whole non-streamed exchange.
	Timeout time.Duration
	// StreamIdleTimeout bounds the gap between two lines of a streamed body. Defaults to Timeout.
	StreamIdleTimeout time.Duration
	Executor          *resilience.Executor
}

func New(baseURL string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	idle := options.StreamIdleTimeout
	if idle <= 0 {
		idle = timeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      options.APIKey,
		model:       options.Model,
		temperature: options.Temperature,
		httpClient:  &http.Client{Transport: transport},
		executor:    options.Executor,
		timeout:     timeout,
		idleTimeout: idle,
	}
}

var _ ports.LanguageModel = (*Client)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	Stream         bool            `json:"stream"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *Client) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	payload := c.buildRequest(req, false)
	out, err := resilience.Do(ctx, c.executor, "llm.complete", func(ctx context.Context) (string, error) {
		var response chatCompletionResponse
		if err := c.postJSON(ctx, "/chat/completions", payload, &response, "complete"); err != nil {
			return "", err
		}
		if len(response.Choices) == 0 {
			return "", fmt.Errorf("llm complete: empty choices")
		}
		return response.Choices[0].Message.Content, nil
	}, classifyLLMError)
	if err != nil {
		return "", resilience.WrapTemporaryIfNeeded("llm complete", err, classifyLLMError)
	}
	return strings.TrimSpace(out), nil
}

// Stream retries only until the first chunk has been forwarded.
func (c *Client) Stream(ctx context.Context, req ports.CompletionRequest, onChunk func(string) error) (string, error) {
	payload := c.buildRequest(req, true)
	out, err := resilience.Do(ctx, c.executor, "llm.stream", func(ctx context.Context) (string, error) {
		return c.postStream(ctx, "/chat/completions", payload, onChunk)
	}, classifyLLMError)
	if err != nil {
		return out, resilience.WrapTemporaryIfNeeded("llm stream", err, classifyLLMError)
	}
	return out, nil
}

func (c *Client) buildRequest(req ports.CompletionRequest, stream bool) chatCompletionRequest {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = c.temperature
	}

	messages := make([]chatMessage, 0, len(req.Messages)+1)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, chatMessage{Role: string(domain.RoleSystem), Content: system})
	}
	for _, msg := range req.Messages {
		messages = append(messages, chatMessage{Role: string(msg.Role), Content: msg.Content})
	}

	out := chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		Stream:      stream,
	}
	if req.JSON {
		out.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return out
}
