// Package chat owns conversations: it persists questions and answers for the
// stream coordinator and serves chat history.
package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/docchat/internal/rag"
	"github.com/upb/docchat/models"
	"github.com/upb/docchat/repositories"
	"github.com/upb/docchat/services"
)

// Store implements rag.ChatStore on top of the chat and message repositories.
type Store struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	logger   *zap.Logger
}

var _ rag.ChatStore = (*Store)(nil)

// NewStore creates a Store
func NewStore(chats repositories.ChatRepository, messages repositories.MessageRepository, logger *zap.Logger) *Store {
	return &Store{chats: chats, messages: messages, logger: logger}
}

// ResolveChat returns chatID when userID owns it, or creates a new chat when
// chatID is uuid.Nil. A chat owned by someone else is reported as not found.
func (s *Store) ResolveChat(ctx context.Context, userID, chatID uuid.UUID, title string) (uuid.UUID, error) {
	if chatID != uuid.Nil {
		if _, err := s.owned(ctx, userID, chatID); err != nil {
			return uuid.Nil, err
		}
		return chatID, nil
	}

	chat := models.NewChat(userID, title)
	if err := s.chats.Create(ctx, chat); err != nil {
		return uuid.Nil, services.WrapInternal("failed to create chat", err)
	}
	s.logger.Debug("chat started", zap.String("chat_id", chat.ID.String()), zap.String("user_id", userID.String()))
	return chat.ID, nil
}

// SaveMessage appends a message and bumps the chat in history order
func (s *Store) SaveMessage(ctx context.Context, chatID uuid.UUID, role, content string) error {
	r := models.MessageRole(role)
	if !r.Valid() {
		return fmt.Errorf("unknown message role %q", role)
	}
	if err := s.messages.Create(ctx, models.NewMessage(chatID, r, content)); err != nil {
		return fmt.Errorf("save %s message: %w", role, err)
	}
	if err := s.chats.Touch(ctx, chatID); err != nil {
		s.logger.Warn("failed to bump chat", zap.String("chat_id", chatID.String()), zap.Error(err))
	}
	return nil
}

func (s *Store) owned(ctx context.Context, userID, chatID uuid.UUID) (*models.Chat, error) {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrChatNotFound
		}
		return nil, services.WrapInternal("failed to load chat", err)
	}
	if chat.UserID != userID {
		return nil, services.ErrChatNotFound
	}
	return chat, nil
}
