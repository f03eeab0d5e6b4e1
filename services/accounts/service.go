// Package accounts registers users, authenticates them and issues tokens.
package accounts

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
	"github.com/upb/docchat/utils"
)

// TokenIssuer signs access tokens
type TokenIssuer interface {
	Issue(p auth.Principal) (string, time.Time, error)
}

// Credentials is the register and login payload
type Credentials struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6,max=128"`
}

// Session is the result of a successful login
type Session struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        *models.User `json:"user"`
}

// Service handles account lifecycle
type Service struct {
	users  repositories.UserRepository
	tokens TokenIssuer
	logger *zap.Logger
}

// NewService creates an account service
func NewService(users repositories.UserRepository, tokens TokenIssuer, logger *zap.Logger) *Service {
	return &Service{users: users, tokens: tokens, logger: logger}
}

// Register creates a regular account
func (s *Service) Register(ctx context.Context, in Credentials) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	return s.create(ctx, in, false)
}

// CreateUser creates an account with an explicit admin flag
func (s *Service) CreateUser(ctx context.Context, in Credentials, isAdmin bool) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	return s.create(ctx, in, isAdmin)
}

func (s *Service) create(ctx context.Context, in Credentials, isAdmin bool) (*models.User, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, services.WrapValidation("invalid credentials payload", err)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, services.WrapInternal("failed to hash password", err)
	}

	user := models.NewUser(in.Username, hash, isAdmin)
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, services.ErrDuplicateUsername
		}
		return nil, services.WrapInternal("failed to create user", err)
	}

	s.logger.Info("account created",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
		zap.Bool("is_admin", isAdmin))
	return user, nil
}

// Login checks credentials and issues a token
func (s *Service) Login(ctx context.Context, in Credentials) (*Session, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(in.Username))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrInvalidCredentials
		}
		return nil, services.WrapInternal("failed to load user", err)
	}

	if err := auth.CheckPassword(user.PasswordHash, in.Password); err != nil {
		s.logger.Info("login rejected", zap.String("username", user.Username))
		return nil, services.ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(auth.Principal{
		UserID:   user.ID,
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
	})
	if err != nil {
		return nil, services.WrapInternal("failed to issue token", err)
	}

	return &Session{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
		User:        user,
	}, nil
}

// Get returns a user by id
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrUserNotFound
		}
		return nil, services.WrapInternal("failed to load user", err)
	}
	return user, nil
}

// EnsureAdmin creates the bootstrap administrator when it does not exist yet.
// An empty username disables bootstrapping.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" {
		return nil
	}

	existing, err := s.users.GetByUsername(ctx, username)
	switch {
	case err == nil:
		if !existing.IsAdmin {
			s.logger.Warn("bootstrap admin username belongs to a non-admin account", zap.String("username", username))
		}
		return nil
	case !errors.Is(err, repositories.ErrNotFound):
		return services.WrapInternal("failed to look up bootstrap admin", err)
	}

	if _, err := s.create(ctx, Credentials{Username: username, Password: password}, true); err != nil {
		return err
	}
	s.logger.Info("bootstrap admin created", zap.String("username", username))
	return nil
}
