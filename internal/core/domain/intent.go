package domain

import "strings"

type Intent string

const (
	IntentSimpleSearch Intent = "simple_search"
	IntentDeepSearch   Intent = "deep_search"
	IntentOther        Intent = "other"
)

type IntentSource string

const (
	IntentSourceRule  IntentSource = "rule"
	IntentSourceModel IntentSource = "model"
)

type IntentClassificationResult struct {
	Intent     Intent       `json:"intent"`
	Confidence float64      `json:"confidence"`
	Reason     string       `json:"reason"`
	Source     IntentSource `json:"source"`
}

// ParseIntent accepts the canonical labels plus hyphenated spellings.
func ParseIntent(raw string) (Intent, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch Intent(normalized) {
	case IntentSimpleSearch:
		return IntentSimpleSearch, true
	case IntentDeepSearch:
		return IntentDeepSearch, true
	case IntentOther:
		return IntentOther, true
	default:
		return "", false
	}
}

// IntentForMode is the rule-sourced intent of an explicitly chosen mode.
func IntentForMode(mode ChatMode) IntentClassificationResult {
	result := IntentClassificationResult{Confidence: 1, Source: IntentSourceRule, Reason: "mode chosen by client"}
	switch mode {
	case ChatModeDeepSearch:
		result.Intent = IntentDeepSearch
	case ChatModeTextSearch:
		result.Intent = IntentSimpleSearch
	default:
		result.Intent = IntentOther
	}
	return result
}

// ResolveMode maps an intent to the mode a turn runs in. Deep search needs a
// confirmed draft; without one it is downgraded to text search.
func ResolveMode(intent Intent, hasDraft bool) ModeResolution {
	switch intent {
	case IntentDeepSearch:
		if hasDraft {
			return ModeResolution{Mode: ChatModeDeepSearch}
		}
		return ModeResolution{Mode: ChatModeTextSearch, Downgraded: true}
	case IntentSimpleSearch:
		return ModeResolution{Mode: ChatModeTextSearch}
	default:
		return ModeResolution{Mode: ChatModeChat}
	}
}
