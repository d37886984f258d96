package domain

import "sync"

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

type KeywordResult struct {
	Keyword  string   `json:"keyword"`
	Reason   string   `json:"reason"`
	Priority Priority `json:"priority"`
}

type SearchSnippet struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// AnalysisDocument is an uploaded document fed to the document-analysis pipeline.
type AnalysisDocument struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

type ProgressStatus string

const (
	ProgressRunning   ProgressStatus = "running"
	ProgressCompleted ProgressStatus = "completed"
	ProgressError     ProgressStatus = "error"
)

const (
	PhaseKeywords  = "keywords"
	PhaseSearch    = "search"
	PhaseDocuments = "documents"
	PhaseAggregate = "aggregate"
	PhaseDraft     = "draft"
)

// BranchPhase keys the progress row of one fan-out branch, e.g. "search:钱币".
func BranchPhase(stage, name string) string {
	return stage + ":" + name
}

type ProgressEvent struct {
	Phase   string         `json:"phase"`
	Message string         `json:"message"`
	Status  ProgressStatus `json:"status"`
	Details string         `json:"details,omitempty"`
}

// ProgressLog keeps one row per phase; a later event for the same phase replaces the earlier one.
type ProgressLog struct {
	mu     sync.Mutex
	order  []string
	events map[string]ProgressEvent
}

func NewProgressLog() *ProgressLog {
	return &ProgressLog{events: make(map[string]ProgressEvent)}
}

func (l *ProgressLog) Upsert(event ProgressEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.events[event.Phase]; !ok {
		l.order = append(l.order, event.Phase)
	}
	l.events[event.Phase] = event
}

func (l *ProgressLog) Snapshot() []ProgressEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ProgressEvent, 0, len(l.order))
	for _, phase := range l.order {
		out = append(out, l.events[phase])
	}
	return out
}

type DeepSearchEventType string

const (
	EventProgress      DeepSearchEventType = "progress"
	EventDraftStart    DeepSearchEventType = "draft-start"
	EventDraftChunk    DeepSearchEventType = "draft-chunk"
	EventDraftComplete DeepSearchEventType = "draft-complete"
	EventError         DeepSearchEventType = "error"
)

// DeepSearchEvent is one SSE frame of the deep-search and document-analysis streams.
type DeepSearchEvent struct {
	Type      DeepSearchEventType `json:"type"`
	SessionID string              `json:"sessionId,omitempty"`
	Progress  *ProgressEvent      `json:"progress,omitempty"`
	Content   string              `json:"content,omitempty"`
	Draft     *DraftResult        `json:"draft,omitempty"`
	Message   string              `json:"message,omitempty"`
}

// DraftResult is the outcome of a completed draft stream.
type DraftResult struct {
	SessionID string          `json:"sessionId"`
	Query     string          `json:"query"`
	Markdown  string          `json:"markdown"`
	Keywords  []KeywordResult `json:"keywords,omitempty"`
	Snippets  []SearchSnippet `json:"snippets,omitempty"`
	Analyses  []string        `json:"analyses,omitempty"`
}

// EventSink receives pipeline events in emission order. Returning an error aborts the pipeline.
type EventSink func(DeepSearchEvent) error
