package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"qarag/types"

	"github.com/jackc/pgx/v5"
)

func (p *PostgresStore) CreateSession(ctx context.Context, chatType types.ChatType) (*types.Session, error) {
	query := `
		INSERT INTO chat_sessions (session_name, chat_type)
		VALUES ($1, $2)
		RETURNING session_id, session_name, chat_type, created_at
	`
	var s types.Session
	err := p.executor(ctx).QueryRow(ctx, query, DefaultSessionName, string(chatType)).Scan(&s.ID, &s.Name, &s.ChatType, &s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &s, nil
}

func (p *PostgresStore) GetSession(ctx context.Context, sessionID int64) (*types.Session, error) {
	query := `
		SELECT session_id, session_name, chat_type, created_at
		FROM chat_sessions
		WHERE session_id = $1
	`
	var s types.Session
	err := p.executor(ctx).QueryRow(ctx, query, sessionID).Scan(&s.ID, &s.Name, &s.ChatType, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %d: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session %d: %w", sessionID, err)
	}
	return &s, nil
}

// RenameIfNew names a session after its first question, once.
func (p *PostgresStore) RenameIfNew(ctx context.Context, sessionID int64, firstQuestion string) error {
	name := SessionName(firstQuestion)
	if name == "" {
		return nil
	}
	query := `
		UPDATE chat_sessions
		SET session_name = $2
		WHERE session_id = $1 AND session_name = $3
	`
	if _, err := p.executor(ctx).Exec(ctx, query, sessionID, name, DefaultSessionName); err != nil {
		return fmt.Errorf("failed to rename session %d: %w", sessionID, err)
	}
	return nil
}

func (p *PostgresStore) ListSessions(ctx context.Context, chatType types.ChatType) ([]types.Session, error) {
	query := `
		SELECT session_id, session_name, chat_type, created_at
		FROM chat_sessions
		WHERE chat_type = $1
		ORDER BY created_at DESC, session_id DESC
	`
	rows, err := p.executor(ctx).Query(ctx, query, string(chatType))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []types.Session
	for rows.Next() {
		var s types.Session
		if err := rows.Scan(&s.ID, &s.Name, &s.ChatType, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SessionName trims a question to the display length of a session title.
func SessionName(question string) string {
	runes := []rune(strings.TrimSpace(question))
	if len(runes) > sessionNameRunes {
		runes = runes[:sessionNameRunes]
	}
	return string(runes)
}
