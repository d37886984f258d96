package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
	"github.com/kirillkom/bookshelf-aibot/internal/core/ports"
)

const maxKeywords = 6

// generateKeywords always returns at least one keyword. The error reports a failed
// model call; the keywords are then the fallback.
func generateKeywords(
	ctx context.Context,
	llm ports.LanguageModel,
	prompt, model, userInput string,
) ([]domain.KeywordResult, error) {
	raw, err := llm.Complete(ctx, ports.CompletionRequest{
		Model:    model,
		System:   domain.RenderPrompt(prompt, map[string]string{"max_keywords": fmt.Sprint(maxKeywords)}),
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: userInput}},
	})
	if err != nil {
		return fallbackKeywords(userInput), fmt.Errorf("generate keywords: %w", err)
	}
	keywords, ok := parseKeywords(raw)
	if !ok {
		return fallbackKeywords(userInput), nil
	}
	return keywords, nil
}

func fallbackKeywords(userInput string) []domain.KeywordResult {
	return []domain.KeywordResult{{
		Keyword:  strings.TrimSpace(userInput),
		Reason:   "使用原始输入作为关键词",
		Priority: domain.PriorityHigh,
	}}
}

func parseKeywords(raw string) ([]domain.KeywordResult, bool) {
	cleaned := extractJSONArray(stripCodeFence(raw))
	var items []domain.KeywordResult
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		return nil, false
	}
	out := make([]domain.KeywordResult, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		item.Keyword = strings.TrimSpace(item.Keyword)
		if item.Keyword == "" {
			continue
		}
		key := strings.ToLower(item.Keyword)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		item.Reason = strings.TrimSpace(item.Reason)
		item.Priority = normalizePriority(item.Priority)
		out = append(out, item)
		if len(out) == maxKeywords {
			break
		}
	}
	return out, len(out) > 0
}

func normalizePriority(p domain.Priority) domain.Priority {
	switch domain.Priority(strings.ToLower(strings.TrimSpace(string(p)))) {
	case domain.PriorityHigh:
		return domain.PriorityHigh
	case domain.PriorityLow:
		return domain.PriorityLow
	default:
		return domain.PriorityMedium
	}
}
