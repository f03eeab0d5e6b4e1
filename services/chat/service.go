package chat

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/docchat/internal/rag"
	"github.com/upb/docchat/models"
	"github.com/upb/docchat/services"
)

// DefaultHistoryLimit caps chat history listings
const DefaultHistoryLimit = 50

// Asker answers one question into a sink
type Asker interface {
	Run(ctx context.Context, req rag.QueryRequest, sink rag.Sink) (rag.Outcome, error)
}

// Service exposes the chat operations of the HTTP API
type Service struct {
	store  *Store
	asker  Asker
	logger *zap.Logger
}

// NewService creates a chat service. asker is normally a *rag.Coordinator
// built over store.
func NewService(store *Store, asker Asker, logger *zap.Logger) *Service {
	return &Service{store: store, asker: asker, logger: logger}
}

// Ask streams an answer into sink. Errors are domain errors.
func (s *Service) Ask(ctx context.Context, req rag.QueryRequest, sink rag.Sink) (rag.Outcome, error) {
	out, err := s.asker.Run(ctx, req, sink)
	if err == nil {
		return out, nil
	}

	var domainErr *services.DomainError
	switch {
	case errors.Is(err, rag.ErrEmptyMessage):
		return out, services.ErrEmptyMessage
	case errors.As(err, &domainErr):
		return out, err
	case errors.Is(err, rag.ErrStreamInterrupted):
		return out, err
	default:
		return out, services.WrapInternal("failed to answer question", err)
	}
}

// History lists the user's chats, most recent first
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Chat, error) {
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	chats, err := s.store.chats.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, services.WrapInternal("failed to list chats", err)
	}
	if chats == nil {
		chats = []*models.Chat{}
	}
	return chats, nil
}

// Messages returns the messages of a chat the user owns
func (s *Service) Messages(ctx context.Context, userID, chatID uuid.UUID) ([]*models.Message, error) {
	if _, err := s.store.owned(ctx, userID, chatID); err != nil {
		return nil, err
	}
	msgs, err := s.store.messages.ListByChat(ctx, chatID)
	if err != nil {
		return nil, services.WrapInternal("failed to list messages", err)
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	return msgs, nil
}

// Delete removes a chat the user owns together with its messages
func (s *Service) Delete(ctx context.Context, userID, chatID uuid.UUID) error {
	if _, err := s.store.owned(ctx, userID, chatID); err != nil {
		return err
	}
	if err := s.store.messages.DeleteByChat(ctx, chatID); err != nil {
		return services.WrapInternal("failed to delete messages", err)
	}
	if err := s.store.chats.Delete(ctx, chatID); err != nil {
		return services.WrapInternal("failed to delete chat", err)
	}
	s.logger.Info("chat deleted", zap.String("chat_id", chatID.String()), zap.String("user_id", userID.String()))
	return nil
}
