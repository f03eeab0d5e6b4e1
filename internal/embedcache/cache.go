// Package embedcache memoises embedding lookups. Identical chunk texts and
// repeated questions hit an in-process LRU first and an optional shared
// Redis store second.
package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/upb/docchat/internal/rag"
)

// Service is a caching rag.EmbeddingService decorator. Only successful
// lookups are cached; cache failures fall through to the wrapped service.
type Service struct {
	next   rag.EmbeddingService
	model  string
	local  *lru.Cache[string, []float32]
	shared Store
	logger *zap.Logger
}

// New wraps next. model namespaces keys so switching embedding models never
// serves stale vectors. shared may be nil.
func New(next rag.EmbeddingService, model string, size int, shared Store, logger *zap.Logger) (*Service, error) {
	if size <= 0 {
		size = 4096
	}
	local, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create L1 cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{next: next, model: model, local: local, shared: shared, logger: logger}, nil
}

func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	key := s.key(text)

	if vec, ok := s.local.Get(key); ok {
		return vec, nil
	}

	if s.shared != nil {
		vec, err := s.shared.Get(ctx, key)
		switch {
		case err == nil:
			s.local.Add(key, vec)
			return vec, nil
		case !errors.Is(err, ErrCacheMiss):
			s.logger.Warn("embedding cache read failed", zap.Error(err))
		}
	}

	vec, err := s.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	s.local.Add(key, vec)
	if s.shared != nil {
		if err := s.shared.Set(ctx, key, vec); err != nil {
			s.logger.Warn("embedding cache write failed", zap.Error(err))
		}
	}
	return vec, nil
}

// Len is the number of vectors held in process.
func (s *Service) Len() int {
	return s.local.Len()
}

func (s *Service) key(text string) string {
	sum := sha256.Sum256([]byte(s.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
