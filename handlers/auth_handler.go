package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/docchat/middleware"
	"github.com/upb/docchat/models"
	"github.com/upb/docchat/services/accounts"
	"github.com/upb/docchat/utils"
)

// AccountService is the account API used by AuthHandler
type AccountService interface {
	Register(ctx context.Context, in accounts.Credentials) (*models.User, error)
	Login(ctx context.Context, in accounts.Credentials) (*accounts.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// AuthHandler serves registration, login and the current-user lookup
type AuthHandler struct {
	accounts AccountService
	logger   *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(accounts AccountService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, logger: logger}
}

// HandleRegister handles POST /api/auth/register and logs the new user in
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var creds accounts.Credentials
	if err := decodeRequest(w, r, &creds); err != nil {
		HandleDecodeError(w, r, err, h.logger)
		return
	}

	if _, err := h.accounts.Register(ctx, creds); err != nil {
		h.logger.Info("registration rejected",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.Error(err))
		HandleServiceError(w, r, err, h.logger)
		return
	}

	session, err := h.accounts.Login(ctx, creds)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	if err := utils.WriteCreated(w, session); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleLogin handles POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var creds accounts.Credentials
	if err := decodeRequest(w, r, &creds); err != nil {
		HandleDecodeError(w, r, err, h.logger)
		return
	}

	session, err := h.accounts.Login(ctx, creds)
	if err != nil {
		h.logger.Info("login rejected",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.String("username", creds.Username))
		HandleServiceError(w, r, err, h.logger)
		return
	}
	if err := utils.WriteOK(w, session); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleMe handles GET /api/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	user, err := h.accounts.Get(r.Context(), userID)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	if err := utils.WriteOK(w, user); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}
