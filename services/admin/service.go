// Package admin implements the administrator operations: account management,
// cascading account deletion and usage statistics.
package admin

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/docchat/internal/auth"
	"github.com/upb/docchat/models"
	"github.com/upb/docchat/repositories"
	"github.com/upb/docchat/services"
	"github.com/upb/docchat/services/accounts"
	"github.com/upb/docchat/utils"
)

// DocumentRemover drops every document a user owns
type DocumentRemover interface {
	DeleteAllForUser(ctx context.Context, userID uuid.UUID) error
}

// UserUpdate changes username and/or admin flag; nil fields are left alone
type UserUpdate struct {
	Username *string `json:"username,omitempty" validate:"omitempty,min=3,max=50"`
	IsAdmin  *bool   `json:"is_admin,omitempty"`
}

// PasswordReset is the reset-password payload
type PasswordReset struct {
	Password string `json:"password" validate:"required,min=6,max=128"`
}

// Service implements the admin operations
type Service struct {
	repos     *repositories.Repositories
	txMgr     repositories.TransactionManager
	accounts  *accounts.Service
	documents DocumentRemover
	logger    *zap.Logger
}

// NewService creates an admin service. txMgr may be nil, in which case the
// relational part of a cascade runs without a transaction.
func NewService(
	repos *repositories.Repositories,
	txMgr repositories.TransactionManager,
	accountsSvc *accounts.Service,
	documents DocumentRemover,
	logger *zap.Logger,
) *Service {
	return &Service{repos: repos, txMgr: txMgr, accounts: accountsSvc, documents: documents, logger: logger}
}

// ListUsers pages through accounts
func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	users, err := s.repos.Users.List(ctx, limit, offset)
	if err != nil {
		return nil, services.WrapInternal("failed to list users", err)
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}

// CreateUser creates an account, optionally an administrator
func (s *Service) CreateUser(ctx context.Context, in accounts.Credentials, isAdmin bool) (*models.User, error) {
	return s.accounts.CreateUser(ctx, in, isAdmin)
}

// UpdateUser renames an account or changes its admin flag
func (s *Service) UpdateUser(ctx context.Context, id uuid.UUID, in UserUpdate) (*models.User, error) {
	if in.Username != nil {
		trimmed := strings.TrimSpace(*in.Username)
		in.Username = &trimmed
	}
	if err := utils.ValidateStruct(in); err != nil {
		return nil, services.WrapValidation("invalid user update", err)
	}

	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Username != nil {
		user.Username = *in.Username
	}
	if in.IsAdmin != nil {
		user.IsAdmin = *in.IsAdmin
	}
	user.UpdatedAt = time.Now().UTC()

	if err := s.repos.Users.Update(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, services.ErrDuplicateUsername
		}
		return nil, services.WrapInternal("failed to update user", err)
	}
	s.logger.Info("user updated", zap.String("user_id", id.String()), zap.Bool("is_admin", user.IsAdmin))
	return user, nil
}

// ResetPassword replaces an account's password
func (s *Service) ResetPassword(ctx context.Context, id uuid.UUID, in PasswordReset) error {
	if err := utils.ValidateStruct(in); err != nil {
		return services.WrapValidation("invalid password", err)
	}
	user, err := s.getUser(ctx, id)
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return services.WrapInternal("failed to hash password", err)
	}
	user.PasswordHash = hash
	user.UpdatedAt = time.Now().UTC()
	if err := s.repos.Users.Update(ctx, user); err != nil {
		return services.WrapInternal("failed to update password", err)
	}
	s.logger.Info("password reset", zap.String("user_id", id.String()))
	return nil
}

// DeleteUser removes chunks and documents, then messages, chats and the
// account itself. actorID may not delete their own account.
func (s *Service) DeleteUser(ctx context.Context, actorID, id uuid.UUID) error {
	if actorID == id {
		return services.ErrCannotDeleteSelf
	}
	if _, err := s.getUser(ctx, id); err != nil {
		return err
	}

	if err := s.documents.DeleteAllForUser(ctx, id); err != nil {
		return err
	}

	cascade := func(ctx context.Context) error {
		if err := s.repos.Messages.DeleteByUser(ctx, id); err != nil {
			return err
		}
		if err := s.repos.Chats.DeleteByUser(ctx, id); err != nil {
			return err
		}
		return s.repos.Users.Delete(ctx, id)
	}

	var err error
	if s.txMgr != nil {
		err = s.txMgr.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
			return cascade(ctx)
		})
	} else {
		err = cascade(ctx)
	}
	if err != nil {
		return services.WrapInternal("failed to delete user", err)
	}

	s.logger.Info("user deleted", zap.String("user_id", id.String()), zap.String("actor_id", actorID.String()))
	return nil
}

// Stats counts users, documents, chats and messages. With perUser set it
// also counts indexed chunks for every account.
func (s *Service) Stats(ctx context.Context, perUser bool) (*models.Stats, error) {
	var (
		stats models.Stats
		err   error
	)
	if stats.Users, err = s.repos.Users.Count(ctx); err != nil {
		return nil, services.WrapInternal("failed to count users", err)
	}
	if stats.Documents, err = s.repos.Documents.Count(ctx); err != nil {
		return nil, services.WrapInternal("failed to count documents", err)
	}
	if stats.Chats, err = s.repos.Chats.Count(ctx); err != nil {
		return nil, services.WrapInternal("failed to count chats", err)
	}
	if stats.Messages, err = s.repos.Messages.Count(ctx); err != nil {
		return nil, services.WrapInternal("failed to count messages", err)
	}

	if perUser {
		users, err := s.repos.Users.List(ctx, stats.Users, 0)
		if err != nil {
			return nil, services.WrapInternal("failed to list users", err)
		}
		stats.ChunksPerUser = make(map[uuid.UUID]int, len(users))
		for _, u := range users {
			n, err := s.repos.Chunks.CountByUser(ctx, u.ID)
			if err != nil {
				return nil, services.WrapExternal("failed to count chunks", err)
			}
			stats.ChunksPerUser[u.ID] = n
		}
	}
	return &stats, nil
}

func (s *Service) getUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.repos.Users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrUserNotFound
		}
		return nil, services.WrapInternal("failed to load user", err)
	}
	return user, nil
}
