package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
	"github.com/kirillkom/bookshelf-aibot/internal/core/ports"
)

type SessionRepository struct {
	db *sql.DB
}

var _ ports.SessionRepository = (*SessionRepository)(nil)

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *SessionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS aibot_sessions (
	id TEXT PRIMARY KEY,
	phase TEXT NOT NULL,
	query TEXT NOT NULL DEFAULT '',
	draft_markdown TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	payload JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_aibot_sessions_phase ON aibot_sessions(phase);
CREATE INDEX IF NOT EXISTS idx_aibot_sessions_updated_at ON aibot_sessions(updated_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// sessionPayload holds the list-shaped session fields stored as one JSONB column.
type sessionPayload struct {
	Keywords        []domain.KeywordResult `json:"keywords,omitempty"`
	SelectedBookIDs []string               `json:"selectedBookIds,omitempty"`
	Progress        []domain.ProgressEvent `json:"progress,omitempty"`
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.DeepSearchSession, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, phase, query, draft_markdown, error_message, payload, created_at, updated_at
FROM aibot_sessions
WHERE id = $1
`, id)

	var session domain.DeepSearchSession
	var phase string
	var payloadRaw []byte
	err := row.Scan(
		&session.ID, &phase, &session.Query, &session.DraftMarkdown, &session.Error,
		&payloadRaw, &session.CreatedAt, &session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get session", fmt.Errorf("session %s", id))
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	session.Phase = domain.SessionPhase(phase)

	if len(payloadRaw) > 0 {
		var payload sessionPayload
		if err := json.Unmarshal(payloadRaw, &payload); err != nil {
			return nil, fmt.Errorf("unmarshal session payload: %w", err)
		}
		session.Keywords = payload.Keywords
		session.SelectedBookIDs = payload.SelectedBookIDs
		session.Progress = payload.Progress
	}
	return &session, nil
}

func (r *SessionRepository) Save(ctx context.Context, session *domain.DeepSearchSession) error {
	if session == nil || session.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "save session", fmt.Errorf("session id is required"))
	}
	payloadJSON, err := json.Marshal(sessionPayload{
		Keywords:        session.Keywords,
		SelectedBookIDs: session.SelectedBookIDs,
		Progress:        session.Progress,
	})
	if err != nil {
		return fmt.Errorf("marshal session payload: %w", err)
	}

	now := time.Now().UTC()
	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := session.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO aibot_sessions (
	id, phase, query, draft_markdown, error_message, payload, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
	phase = EXCLUDED.phase,
	query = EXCLUDED.query,
	draft_markdown = EXCLUDED.draft_markdown,
	error_message = EXCLUDED.error_message,
	payload = EXCLUDED.payload,
	updated_at = EXCLUDED.updated_at
`,
		session.ID, string(session.Phase), session.Query, session.DraftMarkdown, session.Error,
		payloadJSON, createdAt, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}
