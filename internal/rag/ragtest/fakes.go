// Package ragtest provides deterministic fakes for the rag ports.
package ragtest

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/upb/docchat/internal/rag"
)

// ErrUnavailable is returned by fakes configured to fail.
var ErrUnavailable = errors.New("service unavailable")

// HashEmbeddings embeds text as a normalised bag of hashed lower-case words.
// Texts sharing words land close together under cosine distance.
type HashEmbeddings struct {
	Dimension int
	// Fail, when set, makes Embed return ErrUnavailable for matching texts.
	Fail func(text string) bool

	mu    sync.Mutex
	calls int
}

func (h *HashEmbeddings) Embed(ctx context.Context, text string) ([]float32, error) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.Fail != nil && h.Fail(text) {
		return nil, ErrUnavailable
	}

	vec := make([]float32, h.Dimension)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if word == "" {
			continue
		}
		f := fnv.New32a()
		_, _ = f.Write([]byte(word))
		vec[int(f.Sum32())%h.Dimension]++
	}

	var norm float64
	for _, x := range vec {
		norm += float64(x) * float64(x)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

// Calls returns how many times Embed was invoked.
func (h *HashEmbeddings) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

// ScriptedModel is a LanguageModel that always produces the same increments.
type ScriptedModel struct {
	Increments []string
	// CompleteErr and StreamErr fail the respective call up front.
	CompleteErr error
	StreamErr   error
	// FailAfter, when positive, makes the stream fail with ErrUnavailable
	// after that many increments.
	FailAfter int
	// FailFirst makes the stream fail with ErrUnavailable before any increment.
	FailFirst bool

	mu      sync.Mutex
	prompts []string
}

func (m *ScriptedModel) Complete(ctx context.Context, prompt string, _ rag.GenerationOptions) (string, error) {
	m.record(prompt)
	if m.CompleteErr != nil {
		return "", m.CompleteErr
	}
	return strings.Join(m.Increments, ""), nil
}

func (m *ScriptedModel) Stream(ctx context.Context, prompt string, _ rag.GenerationOptions) (rag.TokenStream, error) {
	m.record(prompt)
	if m.StreamErr != nil {
		return nil, m.StreamErr
	}
	return &scriptedStream{parts: m.Increments, failAfter: m.FailAfter, failFirst: m.FailFirst}, nil
}

// Prompts returns every prompt the model received.
func (m *ScriptedModel) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

func (m *ScriptedModel) record(prompt string) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
}

type scriptedStream struct {
	parts     []string
	failAfter int
	failFirst bool
	pos       int
	closed    bool
}

func (s *scriptedStream) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.closed {
		return "", io.EOF
	}
	if s.failFirst || (s.failAfter > 0 && s.pos >= s.failAfter) {
		return "", ErrUnavailable
	}
	if s.pos >= len(s.parts) {
		return "", io.EOF
	}
	part := s.parts[s.pos]
	s.pos++
	return part, nil
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

// Message is a message saved through ChatStore.
type Message struct {
	ChatID  uuid.UUID
	Role    string
	Content string
}

// ChatStore records chats and messages in memory.
type ChatStore struct {
	ResolveErr error
	// FailRole makes SaveMessage fail for messages with that role.
	FailRole string

	mu       sync.Mutex
	owners   map[uuid.UUID]uuid.UUID
	titles   map[uuid.UUID]string
	messages []Message
}

func NewChatStore() *ChatStore {
	return &ChatStore{
		owners: make(map[uuid.UUID]uuid.UUID),
		titles: make(map[uuid.UUID]string),
	}
}

func (s *ChatStore) ResolveChat(ctx context.Context, userID, chatID uuid.UUID, title string) (uuid.UUID, error) {
	if s.ResolveErr != nil {
		return uuid.Nil, s.ResolveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if chatID != uuid.Nil {
		if owner, ok := s.owners[chatID]; !ok || owner != userID {
			return uuid.Nil, errors.New("chat not found")
		}
		return chatID, nil
	}
	id := uuid.New()
	s.owners[id] = userID
	s.titles[id] = title
	return id, nil
}

func (s *ChatStore) SaveMessage(ctx context.Context, chatID uuid.UUID, role, content string) error {
	if s.FailRole == role {
		return ErrUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, Message{ChatID: chatID, Role: role, Content: content})
	return nil
}

// Messages returns saved messages in insertion order.
func (s *ChatStore) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// Title returns the title a chat was created with.
func (s *ChatStore) Title(chatID uuid.UUID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.titles[chatID]
}

// Sink collects records sent by the coordinator.
type Sink struct {
	// DisconnectAfter, when positive, makes Send fail once that many records
	// have been accepted, simulating a caller that went away.
	DisconnectAfter int
	// OnSend runs after each accepted record.
	OnSend func(n int)

	mu      sync.Mutex
	records []any
}

var ErrDisconnected = errors.New("client disconnected")

func (s *Sink) Send(ctx context.Context, record any) error {
	s.mu.Lock()
	if s.DisconnectAfter > 0 && len(s.records) >= s.DisconnectAfter {
		s.mu.Unlock()
		return ErrDisconnected
	}
	s.records = append(s.records, record)
	n := len(s.records)
	s.mu.Unlock()

	if s.OnSend != nil {
		s.OnSend(n)
	}
	return nil
}

// Records returns everything sent so far.
func (s *Sink) Records() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.records...)
}
