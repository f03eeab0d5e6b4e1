package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/docchat/internal/observability"
)

// State is the lifecycle position of one streamed answer.
type State string

const (
	StateStarted      State = "started"
	StateMetadataSent State = "metadata_sent"
	StateStreaming    State = "streaming"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
)

const defaultPersistTimeout = 10 * time.Second

var (
	ErrEmptyMessage      = errors.New("message must not be empty")
	ErrStreamInterrupted = errors.New("answer stream interrupted")
)

// Sink receives the records of an answer stream. Send must deliver the
// record to the caller before returning; an error means the caller is gone.
type Sink interface {
	Send(ctx context.Context, record any) error
}

// MetadataRecord is the first record of every stream.
type MetadataRecord struct {
	ChatID       uuid.UUID         `json:"chat_id"`
	RelevantDocs []RetrievalResult `json:"relevant_docs"`
	Degraded     bool              `json:"degraded,omitempty"`
}

// ResponseRecord carries one answer increment.
type ResponseRecord struct {
	Response string `json:"response"`
}

// QueryRequest is one question. ChatID is uuid.Nil to start a new chat.
type QueryRequest struct {
	UserID  uuid.UUID
	ChatID  uuid.UUID
	Message string
}

// Outcome describes how a Run ended. Persisted is true only when the
// assistant message was saved.
type Outcome struct {
	ChatID    uuid.UUID
	State     State
	Answer    string
	Persisted bool
}

// Coordinator runs the question-to-streamed-answer flow.
type Coordinator struct {
	chats          ChatStore
	retriever      *Retriever
	generator      *Generator
	topK           int
	persistTimeout time.Duration
	log            *observability.ContextLogger
	metrics        observability.Metrics
}

func NewCoordinator(chats ChatStore, retriever *Retriever, generator *Generator, topK int, logger *zap.Logger, metrics observability.Metrics) *Coordinator {
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &Coordinator{
		chats:          chats,
		retriever:      retriever,
		generator:      generator,
		topK:           topK,
		persistTimeout: defaultPersistTimeout,
		log:            observability.NewContextLogger(logger),
		metrics:        metrics,
	}
}

// Run resolves the chat and saves the question, sends a MetadataRecord with
// the retrieved chunks, then forwards each generated increment as a
// ResponseRecord. The complete answer is saved once after the stream ends
// normally. Cancellation, a failing sink or a failing upstream stop the
// stream and nothing is saved for the assistant.
//
// Any returned error comes with Outcome.State == StateFailed. Whether
// records already reached the caller is known only to the sink.
func (c *Coordinator) Run(ctx context.Context, req QueryRequest, sink Sink) (out Outcome, err error) {
	out.State = StateStarted
	defer func() {
		c.metrics.StreamFinished(string(out.State))
	}()

	fail := func(err error) (Outcome, error) {
		out.State = StateFailed
		out.Answer = ""
		return out, err
	}

	if strings.TrimSpace(req.Message) == "" {
		return fail(ErrEmptyMessage)
	}

	chatID, err := c.chats.ResolveChat(ctx, req.UserID, req.ChatID, ChatTitle(req.Message))
	if err != nil {
		return fail(fmt.Errorf("resolve chat: %w", err))
	}
	out.ChatID = chatID
	ctx = observability.WithFields(ctx, zap.String("chat_id", chatID.String()))

	if err := c.chats.SaveMessage(ctx, chatID, RoleUser, req.Message); err != nil {
		return fail(fmt.Errorf("save question: %w", err))
	}

	retrieval := c.retriever.Retrieve(ctx, req.Message, req.UserID, c.topK)
	docs := retrieval.Results
	if docs == nil {
		docs = []RetrievalResult{}
	}
	if err := sink.Send(ctx, MetadataRecord{ChatID: chatID, RelevantDocs: docs, Degraded: retrieval.Degraded}); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrStreamInterrupted, err))
	}
	out.State = StateMetadataSent

	stream := c.generator.Stream(ctx, req.Message, retrieval.Results)
	defer stream.Close()
	out.State = StateStreaming

	var answer strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			c.log.Info(ctx, "answer stream cancelled", zap.Int("discarded_bytes", answer.Len()))
			return fail(fmt.Errorf("%w: %v", ErrStreamInterrupted, err))
		}

		inc, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			c.log.Warn(ctx, "answer stream failed", zap.Int("discarded_bytes", answer.Len()), zap.Error(err))
			return fail(fmt.Errorf("%w: %v", ErrStreamInterrupted, err))
		}
		if inc == "" {
			continue
		}
		if err := sink.Send(ctx, ResponseRecord{Response: inc}); err != nil {
			c.log.Info(ctx, "caller went away mid-answer", zap.Int("discarded_bytes", answer.Len()), zap.Error(err))
			return fail(fmt.Errorf("%w: %v", ErrStreamInterrupted, err))
		}
		answer.WriteString(inc)
	}

	out.State = StateCompleted
	out.Answer = answer.String()
	if out.Answer == "" {
		return out, nil
	}

	// The caller has the whole answer; saving must not depend on it staying
	// connected.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.persistTimeout)
	defer cancel()
	if err := c.chats.SaveMessage(persistCtx, chatID, RoleAssistant, out.Answer); err != nil {
		c.log.Error(ctx, "assistant message lost after completed stream",
			zap.Int("answer_bytes", len(out.Answer)),
			zap.Error(err),
		)
		c.metrics.AssistantMessageLost()
		return out, nil
	}
	out.Persisted = true
	return out, nil
}
