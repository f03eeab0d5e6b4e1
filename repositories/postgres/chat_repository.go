package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/docchat/models"
	"github.com/upb/docchat/repositories"
)

// ChatRepository implements the repositories.ChatRepository interface
type ChatRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *DB, logger *zap.Logger) repositories.ChatRepository {
	return &ChatRepository{db: db, logger: logger}
}

const chatColumns = `id, user_id, title, created_at, updated_at`

func scanChat(row interface{ Scan(...interface{}) error }) (*models.Chat, error) {
	chat := &models.Chat{}
	err := row.Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt)
	return chat, err
}

// Create creates a new chat
func (r *ChatRepository) Create(ctx context.Context, chat *models.Chat) error {
	query := `
		INSERT INTO chats (id, user_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		chat.ID, chat.UserID, chat.Title, chat.CreatedAt, chat.UpdatedAt)
	if err != nil {
		return mapWriteError("failed to create chat", err)
	}

	r.logger.Debug("chat created", zap.String("id", chat.ID.String()))
	return nil
}

// GetByID retrieves a chat by ID
func (r *ChatRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE id = $1`

	chat, err := scanChat(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chat %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return chat, nil
}

// ListByUser retrieves a user's chats, most recently active first
func (r *ChatRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Chat, error) {
	query := `
		SELECT ` + chatColumns + `
		FROM chats
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	var chats []*models.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat rows: %w", err)
	}
	return chats, nil
}

// Touch bumps updated_at so the chat sorts first in history
func (r *ChatRepository) Touch(ctx context.Context, id uuid.UUID) error {
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx,
		`UPDATE chats SET updated_at = $2 WHERE id = $1`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to touch chat: %w", err)
	}
	return requireAffected(result, "chat "+id.String())
}

// Delete deletes a chat; its messages go with it
func (r *ChatRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, `DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	if err := requireAffected(result, "chat "+id.String()); err != nil {
		return err
	}

	r.logger.Debug("chat deleted", zap.String("id", id.String()))
	return nil
}

// DeleteByUser deletes every chat owned by userID
func (r *ChatRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	if _, err := GetExecutor(ctx, r.db).ExecContext(ctx, `DELETE FROM chats WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete chats: %w", err)
	}
	return nil
}

// Count returns the number of chats
func (r *ChatRepository) Count(ctx context.Context) (int, error) {
	return countRows(GetExecutor(ctx, r.db), ctx, `SELECT COUNT(*) FROM chats`)
}
