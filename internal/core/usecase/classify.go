package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
	"github.com/kirillkom/bookshelf-aibot/internal/core/ports"
)

const (
	continuationConfidence = 0.85
	fallbackConfidence     = 0.5
)

// continuationCues must match the whole message; a cue inside a longer request is a new query.
var continuationCues = map[string]struct{}{
	"继续推荐": {}, "再来一些": {}, "还有吗": {}, "还有呢": {}, "继续": {}, "接着": {}, "接着推荐": {},
	"continue": {}, "go on": {}, "more": {}, "keep going": {},
}

type IntentClassifierUseCase struct {
	llm     ports.LanguageModel
	prompts domain.PromptSet
	model   string
}

func NewIntentClassifierUseCase(llm ports.LanguageModel, prompts domain.PromptSet, model string) *IntentClassifierUseCase {
	return &IntentClassifierUseCase{llm: llm, prompts: prompts, model: model}
}

// Classify never fails: any model or parse failure falls back to simple_search.
func (uc *IntentClassifierUseCase) Classify(
	ctx context.Context,
	utterance string,
	previousMode domain.ChatMode,
) domain.IntentClassificationResult {
	utterance = strings.TrimSpace(utterance)
	if previousMode == domain.ChatModeDeepSearch && isContinuation(utterance) {
		return domain.IntentClassificationResult{
			Intent:     domain.IntentDeepSearch,
			Confidence: continuationConfidence,
			Reason:     "continuation of the previous deep search",
			Source:     domain.IntentSourceRule,
		}
	}

	raw, err := uc.llm.Complete(ctx, ports.CompletionRequest{
		Model:    uc.model,
		System:   uc.prompts.IntentClassifier,
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: utterance}},
		JSON:     true,
	})
	if err != nil {
		return classifierFallback(fmt.Sprintf("classifier call failed: %v", err))
	}
	result, err := parseClassification(raw)
	if err != nil {
		return classifierFallback(fmt.Sprintf("classifier output unreadable: %v", err))
	}
	return result
}

func classifierFallback(reason string) domain.IntentClassificationResult {
	return domain.IntentClassificationResult{
		Intent:     domain.IntentSimpleSearch,
		Confidence: fallbackConfidence,
		Reason:     reason,
		Source:     domain.IntentSourceModel,
	}
}

func isContinuation(utterance string) bool {
	msg := strings.ToLower(strings.TrimSpace(utterance))
	msg = strings.TrimRight(msg, " \t。！？!?.,，、~～…")
	msg = strings.TrimPrefix(msg, "请")
	msg = strings.TrimPrefix(msg, "please ")
	msg = strings.TrimSuffix(msg, "吧")
	msg = strings.TrimSuffix(msg, " please")
	msg = strings.Join(strings.Fields(msg), " ")
	_, ok := continuationCues[msg]
	return ok
}

func parseClassification(raw string) (domain.IntentClassificationResult, error) {
	cleaned := stripCodeFence(raw)
	if cleaned == "" {
		return domain.IntentClassificationResult{}, fmt.Errorf("empty classifier response")
	}

	if strings.Contains(cleaned, "{") {
		var payload struct {
			Intent     string   `json:"intent"`
			Confidence *float64 `json:"confidence"`
			Reason     string   `json:"reason"`
		}
		if err := json.Unmarshal([]byte(extractJSONObject(cleaned)), &payload); err != nil {
			return domain.IntentClassificationResult{}, fmt.Errorf("unmarshal classifier json: %w", err)
		}
		intent, ok := domain.ParseIntent(payload.Intent)
		if !ok {
			return domain.IntentClassificationResult{}, fmt.Errorf("unknown intent %q", payload.Intent)
		}
		confidence := 0.7
		if payload.Confidence != nil {
			confidence = clamp01(*payload.Confidence)
		}
		return domain.IntentClassificationResult{
			Intent:     intent,
			Confidence: confidence,
			Reason:     strings.TrimSpace(payload.Reason),
			Source:     domain.IntentSourceModel,
		}, nil
	}

	label := strings.Trim(strings.TrimSpace(cleaned), "\"'`.。")
	intent, ok := domain.ParseIntent(label)
	if !ok {
		return domain.IntentClassificationResult{}, fmt.Errorf("unknown intent label %q", truncateRunes(label, 40))
	}
	return domain.IntentClassificationResult{
		Intent:     intent,
		Confidence: 0.7,
		Reason:     "bare label from classifier",
		Source:     domain.IntentSourceModel,
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
