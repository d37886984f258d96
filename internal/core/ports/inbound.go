package ports

import (
	"context"
	"io"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
)

// IntentClassifier is the inbound contract for query intent classification.
type IntentClassifier interface {
	Classify(ctx context.Context, utterance string, previousMode domain.ChatMode) domain.IntentClassificationResult
}

// DeepSearchService runs the keyword → search → draft pipeline.
type DeepSearchService interface {
	Run(ctx context.Context, sessionID, userInput string, sink domain.EventSink) (*domain.DraftResult, error)
}

// DocumentAnalysisService runs the per-document analysis → draft pipeline.
type DocumentAnalysisService interface {
	Run(ctx context.Context, sessionID string, documents []domain.AnalysisDocument, sink domain.EventSink) (*domain.DraftResult, error)
}

// ChatService plans a chat turn and then streams its reply.
type ChatService interface {
	Prepare(ctx context.Context, req domain.ChatRequest) (*domain.ChatPlan, error)
	Stream(ctx context.Context, plan *domain.ChatPlan, w io.Writer) error
}

// InterpretationService streams an interpretation of the selected books.
type InterpretationService interface {
	Interpret(ctx context.Context, req domain.InterpretationRequest, w io.Writer) error
}

// BookSearchService retrieves books for a confirmed draft or a plain query.
type BookSearchService interface {
	SearchDraft(ctx context.Context, req domain.DraftBookSearchRequest) (*domain.DraftBookSearchResult, error)
	SearchText(ctx context.Context, query string, topK int) (*domain.RetrievalResultData, error)
}

// DocumentUploadService turns uploaded files into analysis documents.
type DocumentUploadService interface {
	Extract(ctx context.Context, filename string, body io.Reader) (*domain.AnalysisDocument, error)
}

// SessionReader is the read model for stored sessions.
type SessionReader interface {
	GetSession(ctx context.Context, id string) (*domain.DeepSearchSession, error)
}

// SessionRecorder applies session events to stored sessions.
type SessionRecorder interface {
	Record(ctx context.Context, event domain.SessionEvent) error
}
