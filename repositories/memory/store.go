package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/upb/docchat/models"
	"github.com/upb/docchat/repositories"
)

// Store holds users, chats, messages and documents behind one lock so that
// cross-table deletes stay consistent.
type Store struct {
	mu        sync.RWMutex
	users     map[uuid.UUID]models.User
	chats     map[uuid.UUID]models.Chat
	messages  map[uuid.UUID][]models.Message
	documents map[uuid.UUID]models.Document
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:     make(map[uuid.UUID]models.User),
		chats:     make(map[uuid.UUID]models.Chat),
		messages:  make(map[uuid.UUID][]models.Message),
		documents: make(map[uuid.UUID]models.Document),
	}
}

// Repositories returns every repository backed by s plus a fresh chunk index.
func (s *Store) Repositories() *repositories.Repositories {
	return &repositories.Repositories{
		Users:     UserRepository{s},
		Chats:     ChatRepository{s},
		Messages:  MessageRepository{s},
		Documents: DocumentRepository{s},
		Chunks:    NewChunkRepository(),
	}
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// UserRepository implements repositories.UserRepository.
type UserRepository struct{ s *Store }

func (r UserRepository) Create(ctx context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if u.Username == user.Username {
			return fmt.Errorf("failed to create user: %w", repositories.ErrDuplicate)
		}
	}
	r.s.users[user.ID] = *user
	return nil
}

func (r UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
	}
	return &u, nil
}

func (r UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", username, repositories.ErrNotFound)
}

func (r UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*models.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		u := u
		out = append(out, &u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Username < out[j].Username
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return page(out, limit, offset), nil
}

func (r UserRepository) Update(ctx context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[user.ID]; !ok {
		return fmt.Errorf("user %s: %w", user.ID, repositories.ErrNotFound)
	}
	for id, u := range r.s.users {
		if id != user.ID && u.Username == user.Username {
			return fmt.Errorf("failed to update user: %w", repositories.ErrDuplicate)
		}
	}
	r.s.users[user.ID] = *user
	return nil
}

func (r UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[id]; !ok {
		return fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
	}
	delete(r.s.users, id)
	return nil
}

func (r UserRepository) Count(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.users), nil
}

// ChatRepository implements repositories.ChatRepository.
type ChatRepository struct{ s *Store }

func (r ChatRepository) Create(ctx context.Context, chat *models.Chat) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.chats[chat.ID] = *chat
	return nil
}

func (r ChatRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.chats[id]
	if !ok {
		return nil, fmt.Errorf("chat %s: %w", id, repositories.ErrNotFound)
	}
	return &c, nil
}

func (r ChatRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Chat, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*models.Chat
	for _, c := range r.s.chats {
		if c.UserID == userID {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return page(out, limit, offset), nil
}

func (r ChatRepository) Touch(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.chats[id]
	if !ok {
		return fmt.Errorf("chat %s: %w", id, repositories.ErrNotFound)
	}
	c.UpdatedAt = time.Now().UTC()
	r.s.chats[id] = c
	return nil
}

func (r ChatRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.chats[id]; !ok {
		return fmt.Errorf("chat %s: %w", id, repositories.ErrNotFound)
	}
	delete(r.s.chats, id)
	delete(r.s.messages, id)
	return nil
}

func (r ChatRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, c := range r.s.chats {
		if c.UserID == userID {
			delete(r.s.chats, id)
			delete(r.s.messages, id)
		}
	}
	return nil
}

func (r ChatRepository) Count(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.chats), nil
}

// MessageRepository implements repositories.MessageRepository.
type MessageRepository struct{ s *Store }

func (r MessageRepository) Create(ctx context.Context, message *models.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.chats[message.ChatID]; !ok {
		return fmt.Errorf("chat %s: %w", message.ChatID, repositories.ErrNotFound)
	}
	r.s.messages[message.ChatID] = append(r.s.messages[message.ChatID], *message)
	return nil
}

func (r MessageRepository) ListByChat(ctx context.Context, chatID uuid.UUID) ([]*models.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	stored := r.s.messages[chatID]
	out := make([]*models.Message, len(stored))
	for i := range stored {
		m := stored[i]
		out[i] = &m
	}
	return out, nil
}

func (r MessageRepository) DeleteByChat(ctx context.Context, chatID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.messages, chatID)
	return nil
}

func (r MessageRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, c := range r.s.chats {
		if c.UserID == userID {
			delete(r.s.messages, id)
		}
	}
	return nil
}

func (r MessageRepository) Count(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n := 0
	for _, msgs := range r.s.messages {
		n += len(msgs)
	}
	return n, nil
}

// DocumentRepository implements repositories.DocumentRepository.
type DocumentRepository struct{ s *Store }

func (r DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, d := range r.s.documents {
		if d.UserID == doc.UserID && d.Filename == doc.Filename {
			return fmt.Errorf("failed to create document: %w", repositories.ErrDuplicate)
		}
	}
	r.s.documents[doc.ID] = *doc
	return nil
}

func (r DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	d, ok := r.s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, repositories.ErrNotFound)
	}
	return &d, nil
}

func (r DocumentRepository) GetByUserAndFilename(ctx context.Context, userID uuid.UUID, filename string) (*models.Document, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, d := range r.s.documents {
		if d.UserID == userID && d.Filename == filename {
			return &d, nil
		}
	}
	return nil, fmt.Errorf("document %q: %w", filename, repositories.ErrNotFound)
}

func (r DocumentRepository) sorted(keep func(models.Document) bool) []*models.Document {
	var out []*models.Document
	for _, d := range r.s.documents {
		if keep(d) {
			d := d
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].Filename < out[j].Filename
		}
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	return out
}

func (r DocumentRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Document, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.sorted(func(d models.Document) bool { return d.UserID == userID }), nil
}

func (r DocumentRepository) ListAll(ctx context.Context, limit, offset int) ([]*models.Document, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return page(r.sorted(func(models.Document) bool { return true }), limit, offset), nil
}

func (r DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.documents[id]; !ok {
		return fmt.Errorf("document %s: %w", id, repositories.ErrNotFound)
	}
	delete(r.s.documents, id)
	return nil
}

func (r DocumentRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, d := range r.s.documents {
		if d.UserID == userID {
			delete(r.s.documents, id)
		}
	}
	return nil
}

func (r DocumentRepository) Count(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.documents), nil
}
