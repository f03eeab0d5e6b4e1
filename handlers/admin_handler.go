package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/docchat/middleware"
	"github.com/upb/docchat/models"
	"github.com/upb/docchat/services/accounts"
	"github.com/upb/docchat/services/admin"
	"github.com/upb/docchat/utils"
)

// AdminService is the account administration API used by AdminHandler
type AdminService interface {
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
	CreateUser(ctx context.Context, in accounts.Credentials, isAdmin bool) (*models.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, in admin.UserUpdate) (*models.User, error)
	ResetPassword(ctx context.Context, id uuid.UUID, in admin.PasswordReset) error
	DeleteUser(ctx context.Context, actorID, id uuid.UUID) error
	Stats(ctx context.Context, perUser bool) (*models.Stats, error)
}

// DocumentAdministration is the cross-user document API
type DocumentAdministration interface {
	ListAll(ctx context.Context, limit, offset int) ([]*models.Document, error)
	DeleteAny(ctx context.Context, docID uuid.UUID) error
}

// CreateUserRequest is the body of POST /api/admin/users
type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin"`
}

// AdminHandler serves the administrator endpoints
type AdminHandler struct {
	admin     AdminService
	documents DocumentAdministration
	logger    *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(adminSvc AdminService, documents DocumentAdministration, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{admin: adminSvc, documents: documents, logger: logger}
}

// HandleListUsers handles GET /api/admin/users
func (h *AdminHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}
	users, err := h.admin.ListUsers(r.Context(), limit, offset)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	if err := utils.WriteOK(w, users); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleCreateUser handles POST /api/admin/users
func (h *AdminHandler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeRequest(w, r, &req); err != nil {
		HandleDecodeError(w, r, err, h.logger)
		return
	}
	user, err := h.admin.CreateUser(r.Context(), accounts.Credentials{Username: req.Username, Password: req.Password}, req.IsAdmin)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	if err := utils.WriteCreated(w, user); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleUpdateUser handles PATCH /api/admin/users/{userID}
func (h *AdminHandler) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "userID")
	if err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}
	var req admin.UserUpdate
	if err := decodeRequest(w, r, &req); err != nil {
		HandleDecodeError(w, r, err, h.logger)
		return
	}
	user, err := h.admin.UpdateUser(r.Context(), id, req)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	if err := utils.WriteOK(w, user); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleResetPassword handles PUT /api/admin/users/{userID}/password
func (h *AdminHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "userID")
	if err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}
	var req admin.PasswordReset
	if err := decodeRequest(w, r, &req); err != nil {
		HandleDecodeError(w, r, err, h.logger)
		return
	}
	if err := h.admin.ResetPassword(r.Context(), id, req); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}

// HandleDeleteUser handles DELETE /api/admin/users/{userID}
func (h *AdminHandler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "userID")
	if err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}
	if err := h.admin.DeleteUser(r.Context(), actorID, id); err != nil {
		h.logger.Info("user deletion rejected",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.String("user_id", id.String()),
			zap.Error(err))
		HandleServiceError(w, r, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}

// HandleListDocuments handles GET /api/admin/documents
func (h *AdminHandler) HandleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}
	docs, err := h.documents.ListAll(r.Context(), limit, offset)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	if err := utils.WriteOK(w, docs); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleDeleteDocument handles DELETE /api/admin/documents/{documentID}
func (h *AdminHandler) HandleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "documentID")
	if err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}
	if err := h.documents.DeleteAny(r.Context(), id); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}

// HandleStats handles GET /api/admin/stats?per_user=true
func (h *AdminHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	perUser := false
	if v := r.URL.Query().Get("per_user"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			HandleValidationError(w, r, &utils.ValidationError{
				Message: "invalid per_user",
				Fields:  map[string]string{"per_user": "per_user must be a boolean"},
			}, h.logger)
			return
		}
		perUser = b
	}
	stats, err := h.admin.Stats(r.Context(), perUser)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	if err := utils.WriteOK(w, stats); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}
