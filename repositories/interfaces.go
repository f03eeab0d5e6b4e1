package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/upb/docchat/internal/rag"
	"github.com/upb/docchat/models"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a unique constraint rejects a write
var ErrDuplicate = errors.New("duplicate record")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UserRepository handles user data operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context) (int, error)
}

// ChatRepository handles chat data operations
type ChatRepository interface {
	Create(ctx context.Context, chat *models.Chat) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Chat, error)

	// ListByUser returns chats newest first
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Chat, error)

	// Touch bumps updated_at
	Touch(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
	Count(ctx context.Context) (int, error)
}

// MessageRepository handles message data operations
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error

	// ListByChat returns messages oldest first
	ListByChat(ctx context.Context, chatID uuid.UUID) ([]*models.Message, error)
	DeleteByChat(ctx context.Context, chatID uuid.UUID) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
	Count(ctx context.Context) (int, error)
}

// DocumentRepository handles document record operations
type DocumentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	GetByUserAndFilename(ctx context.Context, userID uuid.UUID, filename string) (*models.Document, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Document, error)
	ListAll(ctx context.Context, limit, offset int) ([]*models.Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
	Count(ctx context.Context) (int, error)
}

// Repositories groups every repository the services depend on
type Repositories struct {
	Users     UserRepository
	Chats     ChatRepository
	Messages  MessageRepository
	Documents DocumentRepository
	Chunks    rag.VectorIndex
}
