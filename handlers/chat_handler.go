package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/docchat/internal/rag"
	"github.com/upb/docchat/middleware"
	"github.com/upb/docchat/models"
	"github.com/upb/docchat/utils"
)

// ChatService is the chat API used by ChatHandler
type ChatService interface {
	Ask(ctx context.Context, req rag.QueryRequest, sink rag.Sink) (rag.Outcome, error)
	History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Chat, error)
	Messages(ctx context.Context, userID, chatID uuid.UUID) ([]*models.Message, error)
	Delete(ctx context.Context, userID, chatID uuid.UUID) error
}

// QueryRequest is the body of POST /api/chat/query. An empty chat_id starts
// a new chat.
type QueryRequest struct {
	Message string `json:"message"`
	ChatID  string `json:"chat_id,omitempty"`
}

// ChatHandler serves chat queries and chat history
type ChatHandler struct {
	chats  ChatService
	logger *zap.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(chats ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{chats: chats, logger: logger}
}

// HandleQuery handles POST /api/chat/query. The answer is streamed as
// newline-delimited JSON: one metadata record, then response increments.
// Errors raised before the first record are ordinary JSON error responses.
func (h *ChatHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req QueryRequest
	if err := decodeRequest(w, r, &req); err != nil {
		HandleDecodeError(w, r, err, h.logger)
		return
	}

	var chatID uuid.UUID
	if strings.TrimSpace(req.ChatID) != "" {
		id, err := utils.ParseUUID(req.ChatID, "chat_id")
		if err != nil {
			HandleValidationError(w, r, err, h.logger)
			return
		}
		chatID = id
	}

	sink, err := utils.NewNDJSONWriter(w)
	if err != nil {
		h.logger.Error("streaming unsupported", zap.String("request_id", requestID), zap.Error(err))
		_ = utils.WriteError(w, r, http.StatusInternalServerError, "Streaming not supported", nil)
		return
	}

	out, err := h.chats.Ask(ctx, rag.QueryRequest{UserID: userID, ChatID: chatID, Message: req.Message}, sink)
	if err != nil {
		switch {
		case sink.Started():
			// headers are committed; the client sees a truncated stream
			h.logger.Warn("answer stream ended early",
				zap.String("request_id", requestID),
				zap.String("chat_id", out.ChatID.String()),
				zap.String("state", string(out.State)),
				zap.Error(err))
		case errors.Is(err, rag.ErrStreamInterrupted):
			h.logger.Info("client left before the answer started",
				zap.String("request_id", requestID),
				zap.Error(err))
		default:
			HandleServiceError(w, r, err, h.logger)
		}
		return
	}

	h.logger.Debug("answer streamed",
		zap.String("request_id", requestID),
		zap.String("chat_id", out.ChatID.String()),
		zap.Int("answer_bytes", len(out.Answer)),
		zap.Bool("persisted", out.Persisted))
}

// HandleHistory handles GET /api/chat/history
func (h *ChatHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit, offset, err := pagination(r)
	if err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}

	chats, err := h.chats.History(r.Context(), userID, limit, offset)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	if err := utils.WriteOK(w, chats); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleMessages handles GET /api/chat/{chatID}/messages
func (h *ChatHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	chatID, err := pathUUID(r, "chatID")
	if err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}

	msgs, err := h.chats.Messages(r.Context(), userID, chatID)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	if err := utils.WriteOK(w, msgs); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleDelete handles DELETE /api/chat/{chatID}
func (h *ChatHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	chatID, err := pathUUID(r, "chatID")
	if err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}

	if err := h.chats.Delete(r.Context(), userID, chatID); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}
