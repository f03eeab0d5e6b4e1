package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/docchat/models"
	"github.com/upb/docchat/repositories"
)

// MessageRepository implements the repositories.MessageRepository interface
type MessageRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *DB, logger *zap.Logger) repositories.MessageRepository {
	return &MessageRepository{db: db, logger: logger}
}

// Create appends a message
func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	query := `
		INSERT INTO messages (id, chat_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		message.ID, message.ChatID, message.Role, message.Content, message.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	r.logger.Debug("message created",
		zap.String("chat_id", message.ChatID.String()),
		zap.String("role", string(message.Role)))
	return nil
}

// ListByChat returns the chat's messages in the order they were written
func (r *MessageRepository) ListByChat(ctx context.Context, chatID uuid.UUID) ([]*models.Message, error) {
	query := `
		SELECT id, chat_id, role, content, created_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m := &models.Message{}
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}

// DeleteByChat deletes all messages of a chat
func (r *MessageRepository) DeleteByChat(ctx context.Context, chatID uuid.UUID) error {
	if _, err := GetExecutor(ctx, r.db).ExecContext(ctx, `DELETE FROM messages WHERE chat_id = $1`, chatID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}

// DeleteByUser deletes all messages in chats owned by userID
func (r *MessageRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	query := `DELETE FROM messages WHERE chat_id IN (SELECT id FROM chats WHERE user_id = $1)`
	if _, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}

// Count returns the number of messages
func (r *MessageRepository) Count(ctx context.Context) (int, error) {
	return countRows(GetExecutor(ctx, r.db), ctx, `SELECT COUNT(*) FROM messages`)
}
