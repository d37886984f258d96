package domain

import (
	"fmt"
	"time"
)

type SessionPhase string

const (
	PhaseIdle            SessionPhase = "idle"
	PhaseProgress        SessionPhase = "progress"
	PhaseDraftStreaming  SessionPhase = "draft-streaming"
	PhaseDraftConfirm    SessionPhase = "draft-confirm"
	PhaseBookSearch      SessionPhase = "book-search"
	PhaseBookSelection   SessionPhase = "book-selection"
	PhaseReportStreaming SessionPhase = "report-streaming"
	PhaseCompleted       SessionPhase = "completed"
	PhaseError           SessionPhase = "error"
)

var sessionTransitions = map[SessionPhase][]SessionPhase{
	PhaseIdle:            {PhaseProgress},
	PhaseProgress:        {PhaseDraftStreaming, PhaseError},
	PhaseDraftStreaming:  {PhaseDraftConfirm, PhaseError},
	PhaseDraftConfirm:    {PhaseBookSearch, PhaseProgress},
	PhaseBookSearch:      {PhaseBookSelection},
	PhaseBookSelection:   {PhaseReportStreaming},
	PhaseReportStreaming: {PhaseCompleted},
}

var sessionPath = []SessionPhase{
	PhaseIdle,
	PhaseProgress,
	PhaseDraftStreaming,
	PhaseDraftConfirm,
	PhaseBookSearch,
	PhaseBookSelection,
	PhaseReportStreaming,
	PhaseCompleted,
}

func CanTransition(from, to SessionPhase) bool {
	for _, next := range sessionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func pathIndex(phase SessionPhase) int {
	for i, p := range sessionPath {
		if p == phase {
			return i
		}
	}
	return -1
}

// DeepSearchSession is the server-side state of one deep-search conversation.
type DeepSearchSession struct {
	ID              string          `json:"id"`
	Phase           SessionPhase    `json:"phase"`
	Query           string          `json:"query"`
	Keywords        []KeywordResult `json:"keywords,omitempty"`
	DraftMarkdown   string          `json:"draftMarkdown,omitempty"`
	SelectedBookIDs []string        `json:"selectedBookIds,omitempty"`
	Progress        []ProgressEvent `json:"progress,omitempty"`
	Error           string          `json:"error,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func NewDeepSearchSession(id, query string, now time.Time) *DeepSearchSession {
	return &DeepSearchSession{
		ID:        id,
		Phase:     PhaseIdle,
		Query:     query,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the session one legal step.
func (s *DeepSearchSession) Transition(to SessionPhase) error {
	if s.Phase == to {
		return nil
	}
	if !CanTransition(s.Phase, to) {
		return WrapError(ErrInvalidInput, "session transition", fmt.Errorf("%s -> %s", s.Phase, to))
	}
	s.Phase = to
	return nil
}

// Advance walks forward along the happy path until the session reaches to.
// Events may arrive out of order or skip intermediate phases; stale ones are ignored.
func (s *DeepSearchSession) Advance(to SessionPhase) error {
	if s.Phase == PhaseError {
		return WrapError(ErrInvalidInput, "session advance", fmt.Errorf("session %s already failed", s.ID))
	}
	if CanTransition(s.Phase, to) {
		s.Phase = to
		return nil
	}
	if to == PhaseError && s.Phase == PhaseIdle {
		s.Phase = PhaseError
		return nil
	}
	from, target := pathIndex(s.Phase), pathIndex(to)
	if from < 0 || target < 0 {
		return s.Transition(to)
	}
	if target <= from {
		return nil
	}
	for i := from + 1; i <= target; i++ {
		if err := s.Transition(sessionPath[i]); err != nil {
			return err
		}
	}
	return nil
}

// Reset discards everything but the identity and returns the session to idle.
func (s *DeepSearchSession) Reset() {
	s.Phase = PhaseIdle
	s.Keywords = nil
	s.DraftMarkdown = ""
	s.SelectedBookIDs = nil
	s.Progress = nil
	s.Error = ""
}

type SessionEventKind string

const (
	SessionStarted        SessionEventKind = "started"
	SessionProgress       SessionEventKind = "progress"
	SessionDraftStreaming SessionEventKind = "draft-streaming"
	SessionDraftReady     SessionEventKind = "draft-ready"
	SessionBookSearch     SessionEventKind = "book-search"
	SessionBooksFound     SessionEventKind = "books-found"
	SessionReport         SessionEventKind = "report-streaming"
	SessionCompleted      SessionEventKind = "completed"
	SessionFailed         SessionEventKind = "failed"
)

// SessionEvent is published on every session phase change.
type SessionEvent struct {
	SessionID       string           `json:"sessionId"`
	Kind            SessionEventKind `json:"kind"`
	Phase           SessionPhase     `json:"phase"`
	Query           string           `json:"query,omitempty"`
	Keywords        []KeywordResult  `json:"keywords,omitempty"`
	Draft           string           `json:"draft,omitempty"`
	SelectedBookIDs []string         `json:"selectedBookIds,omitempty"`
	Progress        []ProgressEvent  `json:"progress,omitempty"`
	Error           string           `json:"error,omitempty"`
	OccurredAt      time.Time        `json:"occurredAt"`
}

// Apply folds an event into the session. A regenerate arriving at progress from
// draft-confirm resets the draft.
func (s *DeepSearchSession) Apply(event SessionEvent) error {
	if event.Phase == PhaseProgress && s.Phase == PhaseDraftConfirm {
		if err := s.Transition(PhaseProgress); err != nil {
			return err
		}
		s.DraftMarkdown = ""
	} else if err := s.Advance(event.Phase); err != nil {
		return err
	}
	if event.Query != "" && s.Query == "" {
		s.Query = event.Query
	}
	if len(event.Keywords) > 0 {
		s.Keywords = event.Keywords
	}
	if event.Draft != "" {
		s.DraftMarkdown = event.Draft
	}
	if len(event.SelectedBookIDs) > 0 {
		s.SelectedBookIDs = event.SelectedBookIDs
	}
	if len(event.Progress) > 0 {
		s.Progress = event.Progress
	}
	if event.Error != "" {
		s.Error = event.Error
	}
	if !event.OccurredAt.IsZero() {
		s.UpdatedAt = event.OccurredAt
	}
	return nil
}
