package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
	"github.com/kirillkom/bookshelf-aibot/internal/core/ports"
)

const (
	pipelineDeepSearch = "deep_search"
	pipelineDocuments  = "document_analysis"
)

// pipelineFailureMessage is the only failure text sent to clients; details go to the log.
const pipelineFailureMessage = "服务暂时不可用，请稍后重试"

// errSinkClosed marks a pipeline aborted because the event consumer went away.
var errSinkClosed = errors.New("event sink closed")

// emitter serializes events to the sink and mirrors progress into the session log.
type emitter struct {
	mu        sync.Mutex
	sessionID string
	sink      domain.EventSink
	log       *domain.ProgressLog
	err       error
}

func newEmitter(sessionID string, sink domain.EventSink) *emitter {
	if sink == nil {
		sink = func(domain.DeepSearchEvent) error { return nil }
	}
	return &emitter{sessionID: sessionID, sink: sink, log: domain.NewProgressLog()}
}

func (e *emitter) send(event domain.DeepSearchEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sendLocked(event)
}

func (e *emitter) sendLocked(event domain.DeepSearchEvent) error {
	if e.err != nil {
		return e.err
	}
	event.SessionID = e.sessionID
	if event.Progress != nil {
		e.log.Upsert(*event.Progress)
	}
	if err := e.sink(event); err != nil {
		e.err = fmt.Errorf("%w: %v", errSinkClosed, err)
		return e.err
	}
	return nil
}

func (e *emitter) progress(phase string, status domain.ProgressStatus, message, details string) error {
	return e.send(progressEvent(phase, status, message, details))
}

func progressEvent(phase string, status domain.ProgressStatus, message, details string) domain.DeepSearchEvent {
	return domain.DeepSearchEvent{
		Type: domain.EventProgress,
		Progress: &domain.ProgressEvent{
			Phase:   phase,
			Message: message,
			Status:  status,
			Details: details,
		},
	}
}

func (e *emitter) failure() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// stageTimer reports one stage to the observer when done is called.
type stageTimer struct {
	observer ports.StageObserver
	pipeline string
	stage    string
	started  time.Time
}

func startStage(observer ports.StageObserver, pipeline, stage string) stageTimer {
	return stageTimer{observer: observer, pipeline: pipeline, stage: stage, started: time.Now()}
}

func (t stageTimer) done(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	elapsed := time.Since(t.started)
	slog.Info("deep_search_stage",
		"pipeline", t.pipeline,
		"stage", t.stage,
		"outcome", outcome,
		"duration_ms", float64(elapsed.Microseconds())/1000.0,
	)
	if t.observer != nil {
		t.observer.ObserveStage(t.pipeline, t.stage, outcome, elapsed)
	}
}

// draftInput is what the cross-analysis stage works from.
type draftInput struct {
	query    string
	keywords []domain.KeywordResult
	snippets [][]domain.SearchSnippet
	analyses []string
}

// draftStreamer runs the shared cross-analysis streaming stage.
type draftStreamer struct {
	llm         ports.LanguageModel
	prompt      string
	model       string
	temperature float64
	tracker     *SessionTracker
	observer    ports.StageObserver
}

func (d draftStreamer) stream(ctx context.Context, pipeline string, em *emitter, in draftInput) (string, error) {
	timer := startStage(d.observer, pipeline, domain.PhaseDraft)
	if err := em.progress(domain.PhaseDraft, domain.ProgressRunning, "正在生成分析草稿", ""); err != nil {
		return "", err
	}
	if err := em.send(domain.DeepSearchEvent{Type: domain.EventDraftStart}); err != nil {
		return "", err
	}

	var once sync.Once
	text, err := d.llm.Stream(ctx, ports.CompletionRequest{
		Model:       d.model,
		System:      d.prompt,
		Messages:    []domain.ChatMessage{{Role: domain.RoleUser, Content: buildCrossAnalysisInput(in)}},
		Temperature: d.temperature,
	}, func(chunk string) error {
		if chunk == "" {
			return nil
		}
		once.Do(func() {
			d.tracker.Publish(ctx, domain.SessionEvent{
				SessionID: em.sessionID,
				Kind:      domain.SessionDraftStreaming,
				Phase:     domain.PhaseDraftStreaming,
			})
		})
		return em.send(domain.DeepSearchEvent{Type: domain.EventDraftChunk, Content: chunk})
	})
	timer.done(err)
	if err != nil {
		if sinkErr := em.failure(); sinkErr != nil {
			return "", sinkErr
		}
		_ = em.progress(domain.PhaseDraft, domain.ProgressError, "草稿生成失败", err.Error())
		return "", fmt.Errorf("stream cross analysis: %w", err)
	}

	draft := strings.TrimSpace(text)
	if err := em.progress(domain.PhaseDraft, domain.ProgressCompleted, "分析草稿已生成", ""); err != nil {
		return "", err
	}
	return draft, nil
}

func buildCrossAnalysisInput(in draftInput) string {
	var b strings.Builder
	b.WriteString("用户需求:\n")
	b.WriteString(in.query)
	b.WriteString("\n")
	if len(in.keywords) > 0 {
		b.WriteString("\n关键词:\n")
		for _, k := range in.keywords {
			fmt.Fprintf(&b, "- %s (%s)", k.Keyword, k.Priority)
			if reason := strings.TrimSpace(k.Reason); reason != "" {
				fmt.Fprintf(&b, ": %s", reason)
			}
			b.WriteString("\n")
		}
	}
	if len(in.analyses) > 0 {
		b.WriteString("\n分析结果:\n")
		for i, analysis := range in.analyses {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, analysis)
		}
	}
	if len(in.snippets) > 0 {
		b.WriteString("\n搜索摘要:\n")
		for _, group := range in.snippets {
			for _, s := range group {
				fmt.Fprintf(&b, "- %s (%s): %s\n", s.Title, s.URL, s.Snippet)
			}
		}
	}
	return b.String()
}

// failPipeline logs the failure and emits a generic error frame and the failed session event.
func failPipeline(ctx context.Context, em *emitter, tracker *SessionTracker, err error) {
	if errors.Is(err, errSinkClosed) || ctx.Err() != nil {
		return
	}
	slog.Error("deep_search_pipeline_failed",
		"session_id", em.sessionID,
		"error", err.Error(),
	)
	_ = em.send(domain.DeepSearchEvent{Type: domain.EventError, Message: pipelineFailureMessage})
	tracker.Publish(context.WithoutCancel(ctx), domain.SessionEvent{
		SessionID: em.sessionID,
		Kind:      domain.SessionFailed,
		Phase:     domain.PhaseError,
		Progress:  em.log.Snapshot(),
		Error:     pipelineFailureMessage,
	})
}
