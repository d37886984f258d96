package usecase

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
	"github.com/kirillkom/bookshelf-aibot/internal/core/ports"
)

type ReplyConfig struct {
	Model        string
	Temperature  float64
	HistoryLimit int
}

func (c ReplyConfig) withDefaults() ReplyConfig {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 10
	}
	return c
}

type InterpretationUseCase struct {
	llm     ports.LanguageModel
	prompts domain.PromptSet
	tracker *SessionTracker
	cfg     ReplyConfig
}

func NewInterpretationUseCase(
	llm ports.LanguageModel,
	prompts domain.PromptSet,
	tracker *SessionTracker,
	cfg ReplyConfig,
) *InterpretationUseCase {
	return &InterpretationUseCase{llm: llm, prompts: prompts, tracker: tracker, cfg: cfg.withDefaults()}
}

func (uc *InterpretationUseCase) Interpret(ctx context.Context, req domain.InterpretationRequest, w io.Writer) error {
	query := strings.TrimSpace(req.OriginalQuery)
	if query == "" {
		query, _ = domain.LatestUserMessage(req.Messages)
	}
	if query == "" {
		return domain.NewValidationError("originalQuery", "originalQuery 或 messages 不能为空")
	}
	return uc.stream(ctx, req.SessionID, interpretationInput{
		query:    query,
		books:    req.SelectedBooks,
		messages: req.Messages,
	}, w)
}

type interpretationInput struct {
	query    string
	draft    string
	books    []domain.BookInfo
	messages []domain.ChatMessage
}

func (uc *InterpretationUseCase) stream(ctx context.Context, sessionID string, in interpretationInput, w io.Writer) error {
	ids := make([]string, 0, len(in.books))
	for _, b := range in.books {
		ids = append(ids, b.ID)
	}
	uc.tracker.Publish(ctx, domain.SessionEvent{
		SessionID:       sessionID,
		Kind:            domain.SessionReport,
		Phase:           domain.PhaseReportStreaming,
		SelectedBookIDs: ids,
	})

	system := domain.RenderPrompt(uc.prompts.Interpretation, map[string]string{
		"query": in.query,
		"draft": in.draft,
		"books": formatBooks(in.books),
	})
	messages := domain.RecentMessages(in.messages, uc.cfg.HistoryLimit)
	if len(messages) == 0 {
		messages = []domain.ChatMessage{{Role: domain.RoleUser, Content: in.query}}
	}
	if err := streamReply(ctx, uc.llm, ports.CompletionRequest{
		Model:       uc.cfg.Model,
		System:      system,
		Messages:    messages,
		Temperature: uc.cfg.Temperature,
	}, w); err != nil {
		return err
	}

	uc.tracker.Publish(ctx, domain.SessionEvent{
		SessionID: sessionID,
		Kind:      domain.SessionCompleted,
		Phase:     domain.PhaseCompleted,
	})
	return nil
}

func streamReply(ctx context.Context, llm ports.LanguageModel, req ports.CompletionRequest, w io.Writer) error {
	_, err := llm.Stream(ctx, req, func(chunk string) error {
		if chunk == "" {
			return nil
		}
		_, werr := io.WriteString(w, chunk)
		return werr
	})
	if err != nil {
		return fmt.Errorf("stream reply: %w", err)
	}
	return nil
}

func formatBooks(books []domain.BookInfo) string {
	if len(books) == 0 {
		return "(没有找到相关图书)"
	}
	var b strings.Builder
	for i, book := range books {
		fmt.Fprintf(&b, "%d. 《%s》", i+1, book.Title)
		if book.Author != "" {
			fmt.Fprintf(&b, " 作者: %s", book.Author)
		}
		if book.Rating != nil {
			fmt.Fprintf(&b, " 评分: %.1f", *book.Rating)
		}
		if book.CallNumber != "" {
			fmt.Fprintf(&b, " 索书号: %s", book.CallNumber)
		}
		b.WriteString("\n")
		if desc := strings.TrimSpace(book.Description); desc != "" {
			fmt.Fprintf(&b, "   简介: %s\n", truncateRunes(desc, 300))
		}
		if len(book.Highlights) > 0 {
			fmt.Fprintf(&b, "   亮点: %s\n", strings.Join(book.Highlights, "; "))
		}
	}
	return b.String()
}
