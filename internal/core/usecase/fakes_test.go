package usecase

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
	"github.com/kirillkom/bookshelf-aibot/internal/core/ports"
)

type llmFake struct {
	mu        sync.Mutex
	complete  func(req ports.CompletionRequest) (string, error)
	chunks    []string
	streamErr error
	requests  []ports.CompletionRequest
	streamed  []ports.CompletionRequest
}

func (f *llmFake) Complete(_ context.Context, req ports.CompletionRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.complete == nil {
		return "", nil
	}
	return f.complete(req)
}

func (f *llmFake) Stream(_ context.Context, req ports.CompletionRequest, onChunk func(string) error) (string, error) {
	f.mu.Lock()
	f.streamed = append(f.streamed, req)
	f.mu.Unlock()
	var b strings.Builder
	for _, chunk := range f.chunks {
		if err := onChunk(chunk); err != nil {
			return b.String(), err
		}
		b.WriteString(chunk)
	}
	if f.streamErr != nil {
		return b.String(), f.streamErr
	}
	return b.String(), nil
}

func (f *llmFake) completeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type searcherFake struct {
	mu      sync.Mutex
	results map[string][]domain.SearchSnippet
	errs    map[string]error
	queries []string
}

func (f *searcherFake) Search(_ context.Context, query string, limit int) ([]domain.SearchSnippet, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if err := f.errs[query]; err != nil {
		return nil, err
	}
	out := f.results[query]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type retrieverFake struct {
	text       *domain.RetrievalResultData
	multi      *domain.RetrievalResultData
	err        error
	textReq    domain.TextSearchRequest
	multiReq   domain.MultiQueryRequest
	textCalls  int
	multiCalls int
}

func (f *retrieverFake) TextSearch(_ context.Context, req domain.TextSearchRequest) (*domain.RetrievalResultData, error) {
	f.textCalls++
	f.textReq = req
	if f.err != nil {
		return nil, f.err
	}
	if f.text == nil {
		return &domain.RetrievalResultData{Books: []domain.BookInfo{}, SearchType: domain.SearchTypeText}, nil
	}
	return f.text, nil
}

func (f *retrieverFake) MultiQuerySearch(_ context.Context, req domain.MultiQueryRequest) (*domain.RetrievalResultData, error) {
	f.multiCalls++
	f.multiReq = req
	if f.err != nil {
		return nil, f.err
	}
	if f.multi == nil {
		return &domain.RetrievalResultData{Books: []domain.BookInfo{}, SearchType: domain.SearchTypeMultiQuery}, nil
	}
	return f.multi, nil
}

type publisherFake struct {
	mu     sync.Mutex
	events []domain.SessionEvent
}

func (f *publisherFake) PublishSessionEvent(_ context.Context, event domain.SessionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *publisherFake) phases() []domain.SessionPhase {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.SessionPhase, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Phase)
	}
	return out
}

type classifierFake struct {
	result domain.IntentClassificationResult
	calls  int
}

func (f *classifierFake) Classify(context.Context, string, domain.ChatMode) domain.IntentClassificationResult {
	f.calls++
	return f.result
}

type eventRecorder struct {
	mu     sync.Mutex
	events []domain.DeepSearchEvent
}

func (r *eventRecorder) sink(event domain.DeepSearchEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) progressFor(phase string) []domain.ProgressEvent {
	out := make([]domain.ProgressEvent, 0)
	for _, e := range r.events {
		if e.Type == domain.EventProgress && e.Progress != nil && e.Progress.Phase == phase {
			out = append(out, *e.Progress)
		}
	}
	return out
}

func (r *eventRecorder) ofType(t domain.DeepSearchEventType) []domain.DeepSearchEvent {
	out := make([]domain.DeepSearchEvent, 0)
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type extractorFake struct {
	text string
	err  error
	name string
}

func (f *extractorFake) Extract(_ context.Context, filename string, body io.Reader) (string, error) {
	f.name = filename
	if f.err != nil {
		return "", f.err
	}
	if f.text != "" {
		return f.text, nil
	}
	data, err := io.ReadAll(body)
	return string(data), err
}

type sessionRepoFake struct {
	sessions map[string]*domain.DeepSearchSession
	saved    int
}

func (f *sessionRepoFake) GetByID(_ context.Context, id string) (*domain.DeepSearchSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get session", io.EOF)
	}
	copied := *s
	return &copied, nil
}

func (f *sessionRepoFake) Save(_ context.Context, session *domain.DeepSearchSession) error {
	if f.sessions == nil {
		f.sessions = map[string]*domain.DeepSearchSession{}
	}
	copied := *session
	f.sessions[session.ID] = &copied
	f.saved++
	return nil
}

var testPrompts = domain.PromptSet{
	IntentClassifier:   "classify",
	KeywordGeneration:  "keywords max {{max_keywords}}",
	SnippetAnalysis:    "analyze {{keyword}}",
	DocumentAnalysis:   "document {{document_name}}",
	CrossAnalysis:      "cross",
	TextRecommendation: "recommend {{query}}\n{{books}}",
	Interpretation:     "interpret {{query}}\n{{draft}}\n{{books}}",
	Chat:               "chat",
}
