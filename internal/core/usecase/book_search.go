package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
	"github.com/kirillkom/bookshelf-aibot/internal/core/ports"
)

type BookSearchConfig struct {
	TopK               int
	PerQueryTopK       int
	MinRating          float64
	ResponseFormat     string
	SelectionThreshold float64
	SelectionMax       int
}

func (c BookSearchConfig) withDefaults() BookSearchConfig {
	if c.TopK <= 0 {
		c.TopK = 12
	}
	if c.ResponseFormat == "" {
		c.ResponseFormat = "json"
	}
	if c.SelectionThreshold <= 0 {
		c.SelectionThreshold = domain.DefaultSelectionThreshold
	}
	if c.SelectionMax <= 0 {
		c.SelectionMax = domain.DefaultSelectionMax
	}
	return c
}

type BookSearchUseCase struct {
	retriever ports.BookRetriever
	tracker   *SessionTracker
	cfg       BookSearchConfig
}

func NewBookSearchUseCase(retriever ports.BookRetriever, tracker *SessionTracker, cfg BookSearchConfig) *BookSearchUseCase {
	return &BookSearchUseCase{retriever: retriever, tracker: tracker, cfg: cfg.withDefaults()}
}

func (uc *BookSearchUseCase) SearchText(ctx context.Context, query string, topK int) (*domain.RetrievalResultData, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.NewValidationError("query", "query 不能为空")
	}
	if topK <= 0 {
		topK = uc.cfg.TopK
	}
	result, err := uc.retriever.TextSearch(ctx, domain.TextSearchRequest{
		Query:          query,
		TopK:           topK,
		ResponseFormat: uc.cfg.ResponseFormat,
		MinRating:      uc.cfg.MinRating,
	})
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	return result, nil
}

func (uc *BookSearchUseCase) SearchDraft(ctx context.Context, req domain.DraftBookSearchRequest) (*domain.DraftBookSearchResult, error) {
	draft := strings.TrimSpace(req.DraftMarkdown)
	if draft == "" {
		return nil, domain.NewValidationError("draftMarkdown", "draftMarkdown 不能为空")
	}
	uc.tracker.Publish(ctx, domain.SessionEvent{
		SessionID: req.SessionID,
		Kind:      domain.SessionBookSearch,
		Phase:     domain.PhaseBookSearch,
		Query:     strings.TrimSpace(req.UserInput),
		Draft:     draft,
	})

	result, err := uc.multiQuery(ctx, draft, req.TopK, req.MinRating)
	if err != nil {
		return nil, err
	}
	suggested := domain.SelectForInterpretation(result.Books, req.SelectedIDs, uc.cfg.SelectionThreshold, uc.cfg.SelectionMax)

	ids := make([]string, 0, len(suggested))
	for _, b := range suggested {
		ids = append(ids, b.ID)
	}
	uc.tracker.Publish(ctx, domain.SessionEvent{
		SessionID:       req.SessionID,
		Kind:            domain.SessionBooksFound,
		Phase:           domain.PhaseBookSelection,
		SelectedBookIDs: ids,
	})
	return &domain.DraftBookSearchResult{Result: result, Suggested: suggested}, nil
}

func (uc *BookSearchUseCase) multiQuery(ctx context.Context, draft string, topK int, minRating *float64) (*domain.RetrievalResultData, error) {
	if topK <= 0 {
		topK = uc.cfg.TopK
	}
	rating := uc.cfg.MinRating
	if minRating != nil {
		rating = *minRating
	}
	result, err := uc.retriever.MultiQuerySearch(ctx, domain.MultiQueryRequest{
		MarkdownText:   draft,
		TopK:           topK,
		ResponseFormat: uc.cfg.ResponseFormat,
		MinRating:      rating,
		PerQueryTopK:   uc.cfg.PerQueryTopK,
	})
	if err != nil {
		return nil, fmt.Errorf("multi query search: %w", err)
	}
	return result, nil
}

// selectBooks applies the interpretation selection with the configured limits.
func (uc *BookSearchUseCase) selectBooks(books []domain.BookInfo, selectedIDs []string) []domain.BookInfo {
	return domain.SelectForInterpretation(books, selectedIDs, uc.cfg.SelectionThreshold, uc.cfg.SelectionMax)
}
