package usecase

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
	"github.com/kirillkom/bookshelf-aibot/internal/core/ports"
)

type ChatUseCase struct {
	classifier     ports.IntentClassifier
	books          *BookSearchUseCase
	interpretation *InterpretationUseCase
	llm            ports.LanguageModel
	prompts        domain.PromptSet
	cfg            ReplyConfig
}

func NewChatUseCase(
	classifier ports.IntentClassifier,
	books *BookSearchUseCase,
	interpretation *InterpretationUseCase,
	llm ports.LanguageModel,
	prompts domain.PromptSet,
	cfg ReplyConfig,
) *ChatUseCase {
	return &ChatUseCase{
		classifier:     classifier,
		books:          books,
		interpretation: interpretation,
		llm:            llm,
		prompts:        prompts,
		cfg:            cfg.withDefaults(),
	}
}

// Prepare decides intent, mode and retrieval before any reply byte is written.
func (uc *ChatUseCase) Prepare(ctx context.Context, req domain.ChatRequest) (*domain.ChatPlan, error) {
	if strings.TrimSpace(string(req.Mode)) == "" {
		return nil, domain.NewValidationError("mode", "mode 不能为空")
	}
	if _, ok := domain.ParseChatMode(string(req.Mode)); !ok {
		return nil, domain.NewValidationError("mode", fmt.Sprintf("不支持的 mode: %s", req.Mode))
	}
	if len(req.Messages) == 0 {
		return nil, domain.NewValidationError("messages", "messages 不能为空")
	}
	lastUser, ok := domain.LatestUserMessage(req.Messages)
	if !ok {
		return nil, domain.NewValidationError("messages", "messages 中至少需要一条用户消息")
	}

	mode, _ := domain.ParseChatMode(string(req.Mode))
	req.Mode = mode
	intent := domain.IntentForMode(mode)
	if mode == domain.ChatModeAuto {
		intent = uc.classifier.Classify(ctx, lastUser, req.PreviousMode())
	}

	plan := &domain.ChatPlan{
		Request:    req,
		Intent:     intent,
		Resolution: domain.ResolveMode(intent.Intent, req.Draft() != ""),
		LastUser:   lastUser,
	}

	switch plan.Resolution.Mode {
	case domain.ChatModeTextSearch:
		result, err := uc.books.SearchText(ctx, lastUser, 0)
		if err != nil {
			return nil, err
		}
		plan.Retrieval = result
		plan.Books = result.Books
	case domain.ChatModeDeepSearch:
		result, err := uc.books.multiQuery(ctx, req.Draft(), 0, nil)
		if err != nil {
			return nil, err
		}
		var selected []string
		if req.DeepMetadata != nil {
			selected = req.DeepMetadata.SelectedIDs
		}
		plan.Retrieval = result
		plan.Books = uc.books.selectBooks(result.Books, selected)
	}
	return plan, nil
}

func (uc *ChatUseCase) Stream(ctx context.Context, plan *domain.ChatPlan, w io.Writer) error {
	if plan == nil {
		return domain.WrapError(domain.ErrInvalidInput, "chat stream", fmt.Errorf("plan is required"))
	}
	history := domain.RecentMessages(plan.Request.Messages, uc.cfg.HistoryLimit)

	switch plan.Resolution.Mode {
	case domain.ChatModeDeepSearch:
		meta := plan.Request.DeepMetadata
		query, sessionID := plan.LastUser, ""
		if meta != nil {
			sessionID = meta.SessionID
			if q := strings.TrimSpace(meta.OriginalQuery); q != "" {
				query = q
			}
		}
		return uc.interpretation.stream(ctx, sessionID, interpretationInput{
			query:    query,
			draft:    plan.Request.Draft(),
			books:    plan.Books,
			messages: plan.Request.Messages,
		}, w)
	case domain.ChatModeTextSearch:
		system := domain.RenderPrompt(uc.prompts.TextRecommendation, map[string]string{
			"query": plan.LastUser,
			"books": formatBooks(plan.Books),
		})
		return streamReply(ctx, uc.llm, ports.CompletionRequest{
			Model:       uc.cfg.Model,
			System:      system,
			Messages:    history,
			Temperature: uc.cfg.Temperature,
		}, w)
	default:
		return streamReply(ctx, uc.llm, ports.CompletionRequest{
			Model:       uc.cfg.Model,
			System:      uc.prompts.Chat,
			Messages:    history,
			Temperature: uc.cfg.Temperature,
		}, w)
	}
}
