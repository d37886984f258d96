package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
)

// CompletionRequest is one chat-completion call.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []domain.ChatMessage
	Temperature float64
	// JSON asks the model for a JSON object response where supported.
	JSON bool
}

// LanguageModel produces completions, whole or streamed.
type LanguageModel interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Stream forwards every chunk to onChunk and returns the concatenated text.
	Stream(ctx context.Context, req CompletionRequest, onChunk func(string) error) (string, error)
}

// WebSearcher runs a web search and returns at most limit snippets.
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.SearchSnippet, error)
}

// BookRetriever queries the book-search backend.
type BookRetriever interface {
	TextSearch(ctx context.Context, req domain.TextSearchRequest) (*domain.RetrievalResultData, error)
	MultiQuerySearch(ctx context.Context, req domain.MultiQueryRequest) (*domain.RetrievalResultData, error)
}

// Cache stores opaque payloads. A miss returns ok=false and no error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// SessionPublisher publishes and consumes deep-search session events.
type SessionPublisher interface {
	PublishSessionEvent(ctx context.Context, event domain.SessionEvent) error
}

type SessionSubscriber interface {
	SubscribeSessionEvents(ctx context.Context, handler func(context.Context, domain.SessionEvent) error) error
}

// SessionRepository persists deep-search sessions.
type SessionRepository interface {
	GetByID(ctx context.Context, id string) (*domain.DeepSearchSession, error)
	Save(ctx context.Context, session *domain.DeepSearchSession) error
}

// TextExtractor extracts plain text from an uploaded file.
type TextExtractor interface {
	Extract(ctx context.Context, filename string, body io.Reader) (string, error)
}

// StageObserver records pipeline stage timings.
type StageObserver interface {
	ObserveStage(pipeline, stage, outcome string, elapsed time.Duration)
}
