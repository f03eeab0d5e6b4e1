package rag

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/upb/docchat/internal/observability"
)

// DefaultGenerationOptions match the sampling used for chat answers.
var DefaultGenerationOptions = GenerationOptions{Temperature: 0.7, TopP: 0.9, MaxTokens: 1000}

// Generator turns a question and its grounding chunks into an answer.
type Generator struct {
	model     LanguageModel
	opts      GenerationOptions
	maxChunks int
	logger    *zap.Logger
	metrics   observability.Metrics
}

func NewGenerator(model LanguageModel, opts GenerationOptions, maxChunks int, logger *zap.Logger, metrics observability.Metrics) *Generator {
	if maxChunks <= 0 {
		maxChunks = DefaultMaxGroundingChunks
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &Generator{model: model, opts: opts, maxChunks: maxChunks, logger: logger, metrics: metrics}
}

// Generate returns the full answer. Model errors are returned as an
// apologetic answer rather than an error.
func (g *Generator) Generate(ctx context.Context, question string, chunks []RetrievalResult) string {
	start := time.Now()
	answer, err := g.model.Complete(ctx, BuildPrompt(question, chunks, g.maxChunks), g.opts)
	g.metrics.ObserveGeneration("single", time.Since(start))
	if err != nil {
		g.logger.Error("generation failed", zap.Error(err))
		return FailureMessage(err)
	}
	return answer
}

// Stream starts a streaming answer. If the model cannot start a stream, or
// its stream fails before producing any text, the answer is the apologetic
// message as a single increment. Errors after text was produced surface from
// Next.
func (g *Generator) Stream(ctx context.Context, question string, chunks []RetrievalResult) TokenStream {
	stream, err := g.model.Stream(ctx, BuildPrompt(question, chunks, g.maxChunks), g.opts)
	if err != nil {
		g.logger.Error("generation stream failed to start", zap.Error(err))
		return NewStaticStream(FailureMessage(err))
	}
	return &answerStream{TokenStream: stream, start: time.Now(), logger: g.logger, metrics: g.metrics}
}

type answerStream struct {
	TokenStream
	start    time.Time
	logger   *zap.Logger
	metrics  observability.Metrics
	produced bool
	apology  bool
	observed bool
}

func (s *answerStream) Next(ctx context.Context) (string, error) {
	if s.apology {
		return "", io.EOF
	}
	inc, err := s.TokenStream.Next(ctx)
	switch {
	case err == io.EOF:
		if !s.observed {
			s.observed = true
			s.metrics.ObserveGeneration("stream", time.Since(s.start))
		}
	case err != nil:
		if s.produced || ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		s.logger.Error("generation stream failed before any text", zap.Error(err))
		s.apology = true
		return FailureMessage(err), nil
	case inc != "":
		s.produced = true
	}
	return inc, err
}

// NewStaticStream returns a TokenStream over fixed increments.
func NewStaticStream(parts ...string) TokenStream {
	return &staticStream{parts: parts}
}

type staticStream struct {
	parts []string
	pos   int
}

func (s *staticStream) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.pos >= len(s.parts) {
		return "", io.EOF
	}
	s.pos++
	return s.parts[s.pos-1], nil
}

func (s *staticStream) Close() error {
	s.pos = len(s.parts)
	return nil
}
