package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
	"github.com/kirillkom/bookshelf-aibot/internal/core/ports"
)

func deepSearchLLM(keywordsJSON string, keywordErr error) *llmFake {
	return &llmFake{
		complete: func(req ports.CompletionRequest) (string, error) {
			if strings.HasPrefix(req.System, "keywords") {
				return keywordsJSON, keywordErr
			}
			return "analysis of " + strings.TrimPrefix(req.System, "analyze "), nil
		},
		chunks: []string{"# 草稿", "\n内容 "},
	}
}

func TestDeepSearchRunProgressIsMonotonicWithThreeKeywords(t *testing.T) {
	llm := deepSearchLLM(`[{"keyword":"a","priority":"high"},{"keyword":"b"},{"keyword":"c"}]`, nil)
	searcher := &searcherFake{results: map[string][]domain.SearchSnippet{
		"a": {{Title: "A", URL: "https://a", Snippet: "sa"}},
		"b": {{Title: "B", URL: "https://b", Snippet: "sb"}},
		"c": {{Title: "C", URL: "https://c", Snippet: "sc"}},
	}}
	publisher := &publisherFake{}
	uc := NewDeepSearchUseCase(llm, searcher, testPrompts, NewSessionTracker(publisher), nil, DeepSearchConfig{Fanout: 3})
	rec := &eventRecorder{}

	result, err := uc.Run(context.Background(), "s-1", "宋代经济", rec.sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	search := rec.progressFor(domain.PhaseSearch)
	completed := 0
	last := -1
	for _, ev := range search {
		var n, total int
		if _, err := fmt.Sscanf(lastField(ev.Message), "%d/%d", &n, &total); err != nil {
			t.Fatalf("unexpected search message %q", ev.Message)
		}
		if n < last {
			t.Fatalf("progress went backwards: %d after %d", n, last)
		}
		last = n
		if ev.Status == domain.ProgressCompleted {
			completed++
		}
	}
	if completed != 1 {
		t.Fatalf("expected exactly one completed search event, got %d", completed)
	}
	if final := search[len(search)-1]; final.Status != domain.ProgressCompleted || !strings.HasSuffix(final.Message, "3/3") {
		t.Fatalf("expected final completed 3/3, got %+v", final)
	}

	if result.Markdown != "# 草稿\n内容" {
		t.Fatalf("expected trimmed draft, got %q", result.Markdown)
	}
	if len(result.Analyses) != 3 || len(result.Snippets) != 3 {
		t.Fatalf("expected 3 analyses and 3 snippets, got %d/%d", len(result.Analyses), len(result.Snippets))
	}
	if len(rec.ofType(domain.EventDraftChunk)) != 2 || len(rec.ofType(domain.EventDraftComplete)) != 1 {
		t.Fatalf("unexpected draft frames: %+v", rec.events)
	}
	for _, e := range rec.events {
		if e.SessionID != "s-1" {
			t.Fatalf("expected session id on every event, got %+v", e)
		}
	}

	phases := publisher.phases()
	want := []domain.SessionPhase{domain.PhaseProgress, domain.PhaseProgress, domain.PhaseDraftStreaming, domain.PhaseDraftConfirm}
	if fmt.Sprint(phases) != fmt.Sprint(want) {
		t.Fatalf("expected session phases %v, got %v", want, phases)
	}
}

func lastField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func TestDeepSearchRunKeywordFailureFallsBackToInput(t *testing.T) {
	llm := deepSearchLLM("", errors.New("llm down"))
	searcher := &searcherFake{results: map[string][]domain.SearchSnippet{}}
	uc := NewDeepSearchUseCase(llm, searcher, testPrompts, nil, nil, DeepSearchConfig{})
	rec := &eventRecorder{}

	result, err := uc.Run(context.Background(), "", "日本推理小说", rec.sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Keywords) != 1 || result.Keywords[0].Keyword != "日本推理小说" {
		t.Fatalf("expected fallback keyword, got %+v", result.Keywords)
	}
	if len(searcher.queries) != 1 || searcher.queries[0] != "日本推理小说" {
		t.Fatalf("expected search with raw input, got %v", searcher.queries)
	}
	kw := rec.progressFor(domain.PhaseKeywords)
	if kw[len(kw)-1].Status != domain.ProgressError || kw[len(kw)-1].Details == "" {
		t.Fatalf("expected keyword error progress with details, got %+v", kw)
	}
	if result.SessionID == "" {
		t.Fatalf("expected generated session id")
	}
}

func TestDeepSearchRunToleratesBranchFailure(t *testing.T) {
	llm := deepSearchLLM(`[{"keyword":"ok"},{"keyword":"bad"}]`, nil)
	searcher := &searcherFake{
		results: map[string][]domain.SearchSnippet{"ok": {{Title: "T", URL: "u", Snippet: "s"}}},
		errs:    map[string]error{"bad": errors.New("quota exceeded")},
	}
	uc := NewDeepSearchUseCase(llm, searcher, testPrompts, nil, nil, DeepSearchConfig{Fanout: 1, BranchTimeout: time.Second})
	rec := &eventRecorder{}

	result, err := uc.Run(context.Background(), "s", "q", rec.sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Analyses) != 1 {
		t.Fatalf("expected partial results, got %+v", result.Analyses)
	}
	search := rec.progressFor(domain.PhaseSearch)
	final := search[len(search)-1]
	if final.Status != domain.ProgressCompleted || !strings.Contains(final.Details, "quota exceeded") {
		t.Fatalf("expected completed search with failure details, got %+v", final)
	}
	completed := 0
	for _, ev := range search {
		if ev.Status == domain.ProgressCompleted {
			completed++
		}
	}
	if completed != 1 {
		t.Fatalf("expected one completed search event, got %d", completed)
	}

	failed := rec.progressFor(domain.BranchPhase(domain.PhaseSearch, "bad"))
	if len(failed) != 1 || failed[0].Status != domain.ProgressError || !strings.Contains(failed[0].Details, "quota exceeded") {
		t.Fatalf("expected one error event for the failed keyword, got %+v", failed)
	}
	if ok := rec.progressFor(domain.BranchPhase(domain.PhaseSearch, "ok")); len(ok) != 0 {
		t.Fatalf("expected no branch event for a healthy keyword, got %+v", ok)
	}
}

func TestDeepSearchAnalysisSeesOriginalQuery(t *testing.T) {
	llm := deepSearchLLM(`[{"keyword":"钱币","reason":"货币史","priority":"high"}]`, nil)
	searcher := &searcherFake{results: map[string][]domain.SearchSnippet{
		"钱币": {{Title: "T", URL: "u", Snippet: "s"}},
	}}
	prompts := testPrompts
	prompts.SnippetAnalysis = "analyze {{keyword}} for {{query}}"
	uc := NewDeepSearchUseCase(llm, searcher, prompts, nil, nil, DeepSearchConfig{})

	if _, err := uc.Run(context.Background(), "s", "宋代经济史", (&eventRecorder{}).sink); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var analysis *ports.CompletionRequest
	for i := range llm.requests {
		if strings.HasPrefix(llm.requests[i].System, "analyze ") {
			analysis = &llm.requests[i]
		}
	}
	if analysis == nil {
		t.Fatalf("expected an analysis request, got %+v", llm.requests)
	}
	if analysis.System != "analyze 钱币 for 宋代经济史" {
		t.Fatalf("expected query in analysis prompt, got %q", analysis.System)
	}
	if !strings.Contains(analysis.Messages[0].Content, "用户问题: 宋代经济史") {
		t.Fatalf("expected query in analysis message, got %q", analysis.Messages[0].Content)
	}
}

func TestDeepSearchDraftPromptListsKeywords(t *testing.T) {
	llm := deepSearchLLM(`[{"keyword":"钱币","reason":"货币史","priority":"high"},{"keyword":"市舶司","priority":"low"}]`, nil)
	searcher := &searcherFake{results: map[string][]domain.SearchSnippet{
		"钱币": {{Title: "T", URL: "u", Snippet: "s"}},
	}}
	uc := NewDeepSearchUseCase(llm, searcher, testPrompts, nil, nil, DeepSearchConfig{})

	if _, err := uc.Run(context.Background(), "s", "宋代经济史", (&eventRecorder{}).sink); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(llm.streamed) != 1 {
		t.Fatalf("expected one draft stream, got %d", len(llm.streamed))
	}
	content := llm.streamed[0].Messages[0].Content
	for _, want := range []string{"用户需求:\n宋代经济史", "关键词:\n- 钱币 (high): 货币史\n- 市舶司 (low)\n", "分析结果:", "搜索摘要:"} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in draft prompt, got %q", want, content)
		}
	}
}

func TestDeepSearchRunStreamFailureEmitsError(t *testing.T) {
	llm := deepSearchLLM(`[{"keyword":"a"}]`, nil)
	llm.streamErr = errors.New("stream reset")
	publisher := &publisherFake{}
	uc := NewDeepSearchUseCase(llm, &searcherFake{}, testPrompts, NewSessionTracker(publisher), nil, DeepSearchConfig{})
	rec := &eventRecorder{}

	if _, err := uc.Run(context.Background(), "s-2", "q", rec.sink); err == nil {
		t.Fatalf("expected stream failure")
	}
	frames := rec.ofType(domain.EventError)
	if len(frames) != 1 {
		t.Fatalf("expected one error frame, got %+v", rec.events)
	}
	if frames[0].Message != pipelineFailureMessage {
		t.Fatalf("expected generic error frame, got %q", frames[0].Message)
	}
	draft := rec.progressFor(domain.PhaseDraft)
	if draft[len(draft)-1].Status != domain.ProgressError {
		t.Fatalf("expected draft error progress, got %+v", draft)
	}
	phases := publisher.phases()
	if phases[len(phases)-1] != domain.PhaseError {
		t.Fatalf("expected session to end in error, got %v", phases)
	}
}

func TestDeepSearchErrorFrameHidesUpstreamBody(t *testing.T) {
	llm := deepSearchLLM(`[{"keyword":"a"}]`, nil)
	llm.streamErr = errors.New(`llm stream status: 401 Unauthorized: {"error":"invalid key sk-live-123"}`)
	publisher := &publisherFake{}
	uc := NewDeepSearchUseCase(llm, &searcherFake{}, testPrompts, NewSessionTracker(publisher), nil, DeepSearchConfig{})
	rec := &eventRecorder{}

	if _, err := uc.Run(context.Background(), "s-3", "q", rec.sink); err == nil {
		t.Fatalf("expected stream failure")
	}
	for _, frame := range rec.ofType(domain.EventError) {
		if strings.Contains(frame.Message, "sk-live-123") || strings.Contains(frame.Message, "401") {
			t.Fatalf("error frame leaked upstream text: %q", frame.Message)
		}
	}
	for _, event := range publisher.events {
		if strings.Contains(event.Error, "sk-live-123") {
			t.Fatalf("session event leaked upstream text: %q", event.Error)
		}
	}
}

func TestDeepSearchRunRejectsEmptyInput(t *testing.T) {
	uc := NewDeepSearchUseCase(&llmFake{}, &searcherFake{}, testPrompts, nil, nil, DeepSearchConfig{})
	_, err := uc.Run(context.Background(), "", "   ", nil)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "userInput" {
		t.Fatalf("expected userInput validation error, got %v", err)
	}
}

func TestDeepSearchRunStopsWhenSinkFails(t *testing.T) {
	llm := deepSearchLLM(`[{"keyword":"a"}]`, nil)
	uc := NewDeepSearchUseCase(llm, &searcherFake{}, testPrompts, nil, nil, DeepSearchConfig{})
	calls := 0
	sink := func(domain.DeepSearchEvent) error {
		calls++
		return errors.New("client gone")
	}
	if _, err := uc.Run(context.Background(), "s", "q", sink); err == nil {
		t.Fatalf("expected sink failure to abort")
	}
	if calls != 1 {
		t.Fatalf("expected no events after sink failure, got %d calls", calls)
	}
	if llm.completeCalls() != 0 {
		t.Fatalf("expected no model calls after sink failure")
	}
}
