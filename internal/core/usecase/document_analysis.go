package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
	"github.com/kirillkom/bookshelf-aibot/internal/core/ports"
)

const maxDocumentRunes = 12000

type DocumentAnalysisUseCase struct {
	llm      ports.LanguageModel
	prompts  domain.PromptSet
	tracker  *SessionTracker
	observer ports.StageObserver
	cfg      DeepSearchConfig
}

func NewDocumentAnalysisUseCase(
	llm ports.LanguageModel,
	prompts domain.PromptSet,
	tracker *SessionTracker,
	observer ports.StageObserver,
	cfg DeepSearchConfig,
) *DocumentAnalysisUseCase {
	return &DocumentAnalysisUseCase{
		llm:      llm,
		prompts:  prompts,
		tracker:  tracker,
		observer: observer,
		cfg:      cfg.withDefaults(),
	}
}

func (uc *DocumentAnalysisUseCase) Run(
	ctx context.Context,
	sessionID string,
	documents []domain.AnalysisDocument,
	sink domain.EventSink,
) (*domain.DraftResult, error) {
	docs := make([]domain.AnalysisDocument, 0, len(documents))
	for _, doc := range documents {
		if strings.TrimSpace(doc.Content) == "" {
			continue
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil, domain.NewValidationError("documents", "documents 不能为空")
	}
	if strings.TrimSpace(sessionID) == "" {
		sessionID = uuid.NewString()
	}

	names := make([]string, 0, len(docs))
	for _, doc := range docs {
		names = append(names, documentName(doc))
	}
	query := "文档分析: " + strings.Join(names, ", ")

	em := newEmitter(sessionID, sink)
	uc.tracker.Publish(ctx, domain.SessionEvent{
		SessionID: sessionID,
		Kind:      domain.SessionStarted,
		Phase:     domain.PhaseProgress,
		Query:     query,
	})

	result, err := uc.run(ctx, em, query, docs)
	if err != nil {
		failPipeline(ctx, em, uc.tracker, err)
		return nil, err
	}
	return result, nil
}

func (uc *DocumentAnalysisUseCase) run(
	ctx context.Context,
	em *emitter,
	query string,
	docs []domain.AnalysisDocument,
) (*domain.DraftResult, error) {
	analyses, err := uc.analyzeStage(ctx, em, docs)
	if err != nil {
		return nil, err
	}

	timer := startStage(uc.observer, pipelineDocuments, domain.PhaseAggregate)
	if err := em.progress(domain.PhaseAggregate, domain.ProgressRunning, "正在汇总文档分析", ""); err != nil {
		return nil, err
	}
	timer.done(nil)
	if err := em.progress(domain.PhaseAggregate, domain.ProgressCompleted, fmt.Sprintf("汇总 %d 份文档分析", len(analyses)), ""); err != nil {
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
	draft, err := streamer.stream(ctx, pipelineDocuments, em, draftInput{query: query, analyses: analyses})
	if err != nil {
		return nil, err
	}

	result := &domain.DraftResult{
		SessionID: em.sessionID,
		Query:     query,
		Markdown:  draft,
		Analyses:  analyses,
	}
	if err := em.send(domain.DeepSearchEvent{Type: domain.EventDraftComplete, Draft: result}); err != nil {
		return nil, err
	}
	uc.tracker.Publish(ctx, domain.SessionEvent{
		SessionID: em.sessionID,
		Kind:      domain.SessionDraftReady,
		Phase:     domain.PhaseDraftConfirm,
		Draft:     draft,
		Progress:  em.log.Snapshot(),
	})
	return result, nil
}

// analyzeStage analyses every document independently. A failed document yields a
// placeholder analysis carrying the error so the draft still accounts for it.
func (uc *DocumentAnalysisUseCase) analyzeStage(
	ctx context.Context,
	em *emitter,
	docs []domain.AnalysisDocument,
) ([]string, error) {
	timer := startStage(uc.observer, pipelineDocuments, domain.PhaseDocuments)
	total := len(docs)
	if err := em.progress(domain.PhaseDocuments, domain.ProgressRunning, fmt.Sprintf("正在分析文档 0/%d", total), ""); err != nil {
		return nil, err
	}

	analyses := make([]string, total)
	var (
		done    int
		countMu sync.Mutex
	)
	g := new(errgroup.Group)
	g.SetLimit(uc.cfg.Fanout)
	for i, doc := range docs {
		g.Go(func() error {
			if em.failure() != nil || ctx.Err() != nil {
				return nil
			}
			analysis, err := uc.analyzeDocument(ctx, doc)
			if err != nil {
				analysis = fmt.Sprintf("《%s》分析失败: %v", documentName(doc), err)
			}
			analyses[i] = analysis

			countMu.Lock()
			defer countMu.Unlock()
			done++
			if err != nil {
				_ = em.progress(
					domain.BranchPhase(domain.PhaseDocuments, documentName(doc)),
					domain.ProgressError,
					fmt.Sprintf("文档《%s》分析失败", documentName(doc)),
					err.Error(),
				)
			}
			if done < total {
				_ = em.progress(domain.PhaseDocuments, domain.ProgressRunning, fmt.Sprintf("已完成 %d/%d", done, total), "")
			} else {
				_ = em.progress(domain.PhaseDocuments, domain.ProgressCompleted, fmt.Sprintf("文档分析完成 %d/%d", done, total), "")
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
	return analyses, nil
}

func (uc *DocumentAnalysisUseCase) analyzeDocument(ctx context.Context, doc domain.AnalysisDocument) (string, error) {
	docCtx, cancel := context.WithTimeout(ctx, uc.cfg.BranchTimeout)
	defer cancel()

	out, err := uc.llm.Complete(docCtx, ports.CompletionRequest{
		Model:       uc.cfg.Model,
		System:      domain.RenderPrompt(uc.prompts.DocumentAnalysis, map[string]string{"document_name": documentName(doc)}),
		Messages:    []domain.ChatMessage{{Role: domain.RoleUser, Content: truncateRunes(doc.Content, maxDocumentRunes)}},
		Temperature: uc.cfg.Temperature,
	})
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("empty analysis")
	}
	return fmt.Sprintf("《%s》%s", documentName(doc), out), nil
}

func documentName(doc domain.AnalysisDocument) string {
	if name := strings.TrimSpace(doc.Name); name != "" {
		return name
	}
	if id := strings.TrimSpace(doc.ID); id != "" {
		return id
	}
	return "未命名文档"
}
