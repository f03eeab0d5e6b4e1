package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/upb/docchat/services/providers"
)

const maxLineBytes = 1 << 20

// ndjsonStream reads /api/generate streaming output one line per Next.
type ndjsonStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	logger  *zap.Logger

	closeOnce sync.Once
	done      bool
}

func newNDJSONStream(body io.ReadCloser, logger *zap.Logger) *ndjsonStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &ndjsonStream{body: body, scanner: scanner, logger: logger}
}

// Next returns the next non-empty increment. Lines that are not valid JSON
// or carry no text are skipped. Cancelling ctx closes the body so a blocked
// read returns promptly.
func (s *ndjsonStream) Next(ctx context.Context) (string, error) {
	if s.done {
		return "", io.EOF
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var chunk generateResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			s.logger.Debug("skipping malformed stream line", zap.Int("bytes", len(line)), zap.Error(err))
			continue
		}
		if chunk.Error != "" {
			s.done = true
			return "", providers.NewProviderError(providerName, "MODEL_ERROR", chunk.Error, 0, false, nil)
		}
		if chunk.Done {
			s.done = true
			if chunk.Response == "" {
				return "", io.EOF
			}
			return chunk.Response, nil
		}
		if chunk.Response == "" {
			continue
		}
		return chunk.Response, nil
	}

	s.done = true
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.scanner.Err(); err != nil {
		return "", providers.NewProviderError(providerName, "STREAM_ERROR", "reading generate stream failed", 0, true, err)
	}
	return "", io.EOF
}

func (s *ndjsonStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
	})
	return err
}
