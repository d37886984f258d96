package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
	"github.com/kirillkom/bookshelf-aibot/internal/core/ports"
)

// SessionTracker publishes session events best-effort. A nil tracker or publisher is a no-op.
type SessionTracker struct {
	publisher ports.SessionPublisher
	now       func() time.Time
}

func NewSessionTracker(publisher ports.SessionPublisher) *SessionTracker {
	return &SessionTracker{publisher: publisher, now: func() time.Time { return time.Now().UTC() }}
}

func (t *SessionTracker) Publish(ctx context.Context, event domain.SessionEvent) {
	if t == nil || t.publisher == nil || event.SessionID == "" {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = t.now()
	}
	if err := t.publisher.PublishSessionEvent(ctx, event); err != nil {
		slog.Warn("session_event_publish_failed",
			"session_id", event.SessionID,
			"kind", event.Kind,
			"error", err.Error(),
		)
	}
}
