package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ajones1923/cart-intelligence-agent/internal/core/domain"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// SessionRepository persists conversation turns. Recent turns feed
// follow-up questions as prior context; nothing here is required for a
// single-shot query, so the service runs without a database when no
// DSN is configured.
type SessionRepository struct {
	db *sql.DB
}

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
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS session_turns (
	id         UUID PRIMARY KEY,
	session_id TEXT NOT NULL,
	question   TEXT NOT NULL,
	answer     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)
`)
	if err != nil {
		return fmt.Errorf("ensure session schema: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
CREATE INDEX IF NOT EXISTS idx_session_turns_session_created
ON session_turns (session_id, created_at)
`)
	if err != nil {
		return fmt.Errorf("ensure session index: %w", err)
	}
	return nil
}

func (r *SessionRepository) AppendTurn(ctx context.Context, sessionID, question, answer string) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO session_turns (id, session_id, question, answer, created_at)
VALUES ($1, $2, $3, $4, $5)
`, uuid.NewString(), sessionID, question, answer, time.Now().UTC())
	if err != nil {
		return domain.WrapError(domain.ErrStorageFailure, "append session turn", err)
	}
	return nil
}

// RecentContext renders the last turns of a session, oldest first, as
// "Q: ...\nA: ..." blocks ready to prepend to a follow-up question.
func (r *SessionRepository) RecentContext(ctx context.Context, sessionID string, limit int) (string, error) {
	if limit <= 0 {
		return "", nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT question, answer
FROM session_turns
WHERE session_id = $1
ORDER BY created_at DESC
LIMIT $2
`, sessionID, limit)
	if err != nil {
		return "", domain.WrapError(domain.ErrStorageFailure, "load session turns", err)
	}
	defer rows.Close()

	type turn struct{ question, answer string }
	turns := make([]turn, 0, limit)
	for rows.Next() {
		var tr turn
		if err := rows.Scan(&tr.question, &tr.answer); err != nil {
			return "", domain.WrapError(domain.ErrStorageFailure, "scan session turn", err)
		}
		turns = append(turns, tr)
	}
	if err := rows.Err(); err != nil {
		return "", domain.WrapError(domain.ErrStorageFailure, "iterate session turns", err)
	}

	// SQL gave newest-first; render chronologically.
	var blocks []string
	for i := len(turns) - 1; i >= 0; i-- {
		blocks = append(blocks, fmt.Sprintf("Q: %s\nA: %s", turns[i].question, turns[i].answer))
	}
	return strings.Join(blocks, "\n\n"), nil
}
