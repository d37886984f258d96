package domain

import "strings"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type ChatMode string

const (
	ChatModeAuto       ChatMode = "auto"
	ChatModeTextSearch ChatMode = "text-search"
	ChatModeDeepSearch ChatMode = "deep-search"
	ChatModeChat       ChatMode = "chat"
)

func ParseChatMode(raw string) (ChatMode, bool) {
	switch ChatMode(strings.ToLower(strings.TrimSpace(raw))) {
	case ChatModeAuto:
		return ChatModeAuto, true
	case ChatModeTextSearch:
		return ChatModeTextSearch, true
	case ChatModeDeepSearch, "deep":
		return ChatModeDeepSearch, true
	case ChatModeChat:
		return ChatModeChat, true
	default:
		return "", false
	}
}

// DeepMetadata is the client's snapshot of a deep-search session sent along a chat turn.
type DeepMetadata struct {
	SessionID     string          `json:"sessionId,omitempty"`
	PreviousMode  string          `json:"previousMode,omitempty"`
	OriginalQuery string          `json:"originalQuery,omitempty"`
	DraftMarkdown string          `json:"draftMarkdown,omitempty"`
	Keywords      []KeywordResult `json:"keywords,omitempty"`
	SelectedIDs   []string        `json:"selectedIds,omitempty"`
}

type ChatRequest struct {
	Mode          ChatMode      `json:"mode"`
	Messages      []ChatMessage `json:"messages"`
	DraftMarkdown string        `json:"draft_markdown,omitempty"`
	DeepMetadata  *DeepMetadata `json:"deep_metadata,omitempty"`
}

// Draft returns the draft markdown from the request body or its deep metadata.
func (r ChatRequest) Draft() string {
	if draft := strings.TrimSpace(r.DraftMarkdown); draft != "" {
		return draft
	}
	if r.DeepMetadata != nil {
		return strings.TrimSpace(r.DeepMetadata.DraftMarkdown)
	}
	return ""
}

func (r ChatRequest) PreviousMode() ChatMode {
	if r.DeepMetadata == nil {
		return ""
	}
	mode, _ := ParseChatMode(r.DeepMetadata.PreviousMode)
	return mode
}

// ModeResolution is the mode a chat turn actually runs in.
type ModeResolution struct {
	Mode       ChatMode `json:"mode"`
	Downgraded bool     `json:"downgraded"`
}

// ChatPlan is everything decided for a chat turn before the reply starts streaming.
type ChatPlan struct {
	Request    ChatRequest
	Intent     IntentClassificationResult
	Resolution ModeResolution
	LastUser   string
	Retrieval  *RetrievalResultData
	Books      []BookInfo
}

// LatestUserMessage returns the newest non-empty user message.
func LatestUserMessage(messages []ChatMessage) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if !strings.EqualFold(string(messages[i].Role), string(RoleUser)) {
			continue
		}
		if content := strings.TrimSpace(messages[i].Content); content != "" {
			return content, true
		}
	}
	return "", false
}

// RecentMessages keeps the last limit user/assistant messages.
func RecentMessages(messages []ChatMessage, limit int) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, msg := range messages {
		role := Role(strings.ToLower(strings.TrimSpace(string(msg.Role))))
		if role != RoleUser && role != RoleAssistant {
			continue
		}
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		out = append(out, ChatMessage{Role: role, Content: msg.Content})
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
