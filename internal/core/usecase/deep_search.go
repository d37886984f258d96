package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
	"github.com/kirillkom/bookshelf-aibot/internal/core/ports"
)

type DeepSearchConfig struct {
	Model              string
	Temperature        float64
	Fanout             int
	SnippetsPerKeyword int
	BranchTimeout      time.Duration
}

func (c DeepSearchConfig) withDefaults() DeepSearchConfig {
	if c.Fanout <= 0 {
		c.Fanout = 4
	}
	if c.SnippetsPerKeyword <= 0 {
		c.SnippetsPerKeyword = 5
	}
	if c.BranchTimeout <= 0 {
		c.BranchTimeout = 45 * time.Second
	}
	return c
}

type DeepSearchUseCase struct {
	llm      ports.LanguageModel
	searcher ports.WebSearcher
	prompts  domain.PromptSet
	tracker  *SessionTracker
	observer ports.StageObserver
	cfg      DeepSearchConfig
}

func NewDeepSearchUseCase(
	llm ports.LanguageModel,
	searcher ports.WebSearcher,
	prompts domain.PromptSet,
	tracker *SessionTracker,
	observer ports.StageObserver,
	cfg DeepSearchConfig,
) *DeepSearchUseCase {
	return &DeepSearchUseCase{
		llm:      llm,
		searcher: searcher,
		prompts:  prompts,
		tracker:  tracker,
		observer: observer,
		cfg:      cfg.withDefaults(),
	}
}

// keywordOutcome is the result of one keyword branch.
type keywordOutcome struct {
	snippets []domain.SearchSnippet
	analysis string
	err      error
}

func (uc *DeepSearchUseCase) Run(
	ctx context.Context,
	sessionID, userInput string,
	sink domain.EventSink,
) (*domain.DraftResult, error) {
	userInput = strings.TrimSpace(userInput)
	if userInput == "" {
		return nil, domain.NewValidationError("userInput", "userInput 不能为空")
	}
	if strings.TrimSpace(sessionID) == "" {
		sessionID = uuid.NewString()
	}

	em := newEmitter(sessionID, sink)
	uc.tracker.Publish(ctx, domain.SessionEvent{
		SessionID: sessionID,
		Kind:      domain.SessionStarted,
		Phase:     domain.PhaseProgress,
		Query:     userInput,
	})

	result, err := uc.run(ctx, em, userInput)
	if err != nil {
		failPipeline(ctx, em, uc.tracker, err)
		return nil, err
	}
	return result, nil
}

func (uc *DeepSearchUseCase) run(ctx context.Context, em *emitter, userInput string) (*domain.DraftResult, error) {
	keywords, err := uc.keywordStage(ctx, em, userInput)
	if err != nil {
		return nil, err
	}
	uc.tracker.Publish(ctx, domain.SessionEvent{
		SessionID: em.sessionID,
		Kind:      domain.SessionProgress,
		Phase:     domain.PhaseProgress,
		Keywords:  keywords,
		Progress:  em.log.Snapshot(),
	})

	outcomes, err := uc.searchStage(ctx, em, userInput, keywords)
	if err != nil {
		return nil, err
	}

	timer := startStage(uc.observer, pipelineDeepSearch, domain.PhaseAggregate)
	if err := em.progress(domain.PhaseAggregate, domain.ProgressRunning, "正在汇总搜索结果", ""); err != nil {
		return nil, err
	}
	in := draftInput{query: userInput, keywords: keywords}
	flat := make([]domain.SearchSnippet, 0)
	for _, outcome := range outcomes {
		if len(outcome.snippets) > 0 {
			in.snippets = append(in.snippets, outcome.snippets)
			flat = append(flat, outcome.snippets...)
		}
		if strings.TrimSpace(outcome.analysis) != "" {
			in.analyses = append(in.analyses, outcome.analysis)
		}
	}
	timer.done(nil)
	summary := fmt.Sprintf("汇总 %d 条摘要, %d 条分析", len(flat), len(in.analyses))
	if err := em.progress(domain.PhaseAggregate, domain.ProgressCompleted, summary, ""); err != nil {
		return nil, err
	}

	streamer := draftStreamer{
		llm:         uc.llm,
		prompt:      uc.prompts.CrossAnalysis,
		model:       uc.cfg.Model,
		temperature: uc.cfg.Temperature,
		tracker:     uc.tracker,
		observer:    uc.observer,
	}
	draft, err := streamer.stream(ctx, pipelineDeepSearch, em, in)
	if err != nil {
		return nil, err
	}

	result := &domain.DraftResult{
		SessionID: em.sessionID,
		Query:     userInput,
		Markdown:  draft,
		Keywords:  keywords,
		Snippets:  flat,
		Analyses:  in.analyses,
	}
	if err := em.send(domain.DeepSearchEvent{Type: domain.EventDraftComplete, Draft: result}); err != nil {
		return nil, err
	}
	uc.tracker.Publish(ctx, domain.SessionEvent{
		SessionID: em.sessionID,
		Kind:      domain.SessionDraftReady,
		Phase:     domain.PhaseDraftConfirm,
		Keywords:  keywords,
		Draft:     draft,
		Progress:  em.log.Snapshot(),
	})
	return result, nil
}

func (uc *DeepSearchUseCase) keywordStage(ctx context.Context, em *emitter, userInput string) ([]domain.KeywordResult, error) {
	timer := startStage(uc.observer, pipelineDeepSearch, domain.PhaseKeywords)
	if err := em.progress(domain.PhaseKeywords, domain.ProgressRunning, "正在生成搜索关键词", ""); err != nil {
		return nil, err
	}
	keywords, genErr := generateKeywords(ctx, uc.llm, uc.prompts.KeywordGeneration, uc.cfg.Model, userInput)
	timer.done(genErr)
	if genErr != nil {
		if err := em.progress(domain.PhaseKeywords, domain.ProgressError, "关键词生成失败, 使用原始输入", genErr.Error()); err != nil {
			return nil, err
		}
		return keywords, nil
	}
	names := make([]string, 0, len(keywords))
	for _, k := range keywords {
		names = append(names, k.Keyword)
	}
	msg := fmt.Sprintf("已生成 %d 个关键词", len(keywords))
	if err := em.progress(domain.PhaseKeywords, domain.ProgressCompleted, msg, strings.Join(names, ", ")); err != nil {
		return nil, err
	}
	return keywords, nil
}

// searchStage fans out one branch per keyword. Branches never fail the stage; a
// failed branch contributes nothing. Completion is counted under the emitter lock so
// the reported N/total only grows and the completed event is sent once.
func (uc *DeepSearchUseCase) searchStage(
	ctx context.Context,
	em *emitter,
	userInput string,
	keywords []domain.KeywordResult,
) ([]keywordOutcome, error) {
	timer := startStage(uc.observer, pipelineDeepSearch, domain.PhaseSearch)
	total := len(keywords)
	if err := em.progress(domain.PhaseSearch, domain.ProgressRunning, fmt.Sprintf("正在搜索 0/%d", total), ""); err != nil {
		return nil, err
	}

	outcomes := make([]keywordOutcome, total)
	var (
		done     int
		failures []string
		countMu  sync.Mutex
	)

	g := new(errgroup.Group)
	g.SetLimit(uc.cfg.Fanout)
	for i, kw := range keywords {
		g.Go(func() error {
			if em.failure() != nil || ctx.Err() != nil {
				return nil
			}
			outcome := uc.searchKeyword(ctx, userInput, kw.Keyword)
			outcomes[i] = outcome

			countMu.Lock()
			defer countMu.Unlock()
			done++
			if outcome.err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", kw.Keyword, outcome.err))
				_ = em.progress(
					domain.BranchPhase(domain.PhaseSearch, kw.Keyword),
					domain.ProgressError,
					fmt.Sprintf("关键词「%s」处理失败", kw.Keyword),
					outcome.err.Error(),
				)
			}
			details := strings.Join(failures, "; ")
			if done < total {
				_ = em.progress(domain.PhaseSearch, domain.ProgressRunning, fmt.Sprintf("已完成 %d/%d", done, total), details)
			} else {
				_ = em.progress(domain.PhaseSearch, domain.ProgressCompleted, fmt.Sprintf("搜索完成 %d/%d", done, total), details)
			}
			return nil
		})
	}
	_ = g.Wait()
	timer.done(nil)

	if err := em.failure(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (uc *DeepSearchUseCase) searchKeyword(ctx context.Context, userInput, keyword string) keywordOutcome {
	branchCtx, cancel := context.WithTimeout(ctx, uc.cfg.BranchTimeout)
	defer cancel()

	snippets, err := uc.searcher.Search(branchCtx, keyword, uc.cfg.SnippetsPerKeyword)
	if err != nil {
		return keywordOutcome{err: fmt.Errorf("search: %w", err)}
	}
	if len(snippets) > uc.cfg.SnippetsPerKeyword {
		snippets = snippets[:uc.cfg.SnippetsPerKeyword]
	}
	if len(snippets) == 0 {
		return keywordOutcome{}
	}

	system := domain.RenderPrompt(uc.prompts.SnippetAnalysis, map[string]string{
		"keyword": keyword,
		"query":   userInput,
	})
	analysis, err := uc.llm.Complete(branchCtx, ports.CompletionRequest{
		Model:       uc.cfg.Model,
		System:      system,
		Messages:    []domain.ChatMessage{{Role: domain.RoleUser, Content: formatSnippets(userInput, keyword, snippets)}},
		Temperature: uc.cfg.Temperature,
	})
	if err != nil {
		return keywordOutcome{snippets: snippets, err: fmt.Errorf("analyze: %w", err)}
	}
	return keywordOutcome{snippets: snippets, analysis: strings.TrimSpace(analysis)}
}

func formatSnippets(userInput, keyword string, snippets []domain.SearchSnippet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "用户问题: %s\n", userInput)
	fmt.Fprintf(&b, "关键词: %s\n", keyword)
	for i, s := range snippets {
		fmt.Fprintf(&b, "%d. %s\n%s\n%s\n", i+1, s.Title, s.URL, s.Snippet)
	}
	return b.String()
}
