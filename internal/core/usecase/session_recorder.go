package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
	"github.com/kirillkom/bookshelf-aibot/internal/core/ports"
)

// SessionRecorderUseCase folds session events into stored sessions.
type SessionRecorderUseCase struct {
	repo ports.SessionRepository
}

func NewSessionRecorderUseCase(repo ports.SessionRepository) *SessionRecorderUseCase {
	return &SessionRecorderUseCase{repo: repo}
}

func (uc *SessionRecorderUseCase) Record(ctx context.Context, event domain.SessionEvent) error {
	if strings.TrimSpace(event.SessionID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record session event", fmt.Errorf("session id is required"))
	}

	session, err := uc.repo.GetByID(ctx, event.SessionID)
	if err != nil {
		if !domain.IsKind(err, domain.ErrNotFound) {
			return fmt.Errorf("load session: %w", err)
		}
		session = domain.NewDeepSearchSession(event.SessionID, event.Query, event.OccurredAt)
	}

	if err := session.Apply(event); err != nil {
		return fmt.Errorf("apply %s event: %w", event.Kind, err)
	}
	if err := uc.repo.Save(ctx, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (uc *SessionRecorderUseCase) GetSession(ctx context.Context, id string) (*domain.DeepSearchSession, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get session", fmt.Errorf("session id is required"))
	}
	return uc.repo.GetByID(ctx, id)
}
