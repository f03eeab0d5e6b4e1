package rag

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200

	// sentenceLookback bounds how far back from a raw boundary the chunker
	// looks for sentence punctuation.
	sentenceLookback = 100
)

// ErrInvalidChunking is returned for size/overlap combinations that would
// not make progress.
var ErrInvalidChunking = errors.New("invalid chunking parameters")

// Span is one chunk together with the rune offsets of the untrimmed window
// it was cut from.
type Span struct {
	Start int
	End   int
	Text  string
}

// Chunker splits text into overlapping segments that prefer to end on
// sentence punctuation. Offsets are measured in runes.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker validates the parameters. overlap must be smaller than size.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidChunking, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidChunking, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split returns the non-empty, whitespace-trimmed chunks of text.
func (c *Chunker) Split(text string) []string {
	spans := c.Spans(text)
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.Text
	}
	return out
}

// Spans is Split with the source offsets of each chunk.
func (c *Chunker) Spans(text string) []Span {
	runes := []rune(text)
	n := len(runes)

	var spans []Span
	for start := 0; start < n; {
		end := start + c.size
		if end >= n {
			end = n
		} else {
			end = c.sentenceEnd(runes, start, end)
		}

		if chunk := strings.TrimFunc(string(runes[start:end]), unicode.IsSpace); chunk != "" {
			spans = append(spans, Span{Start: start, End: end, Text: chunk})
		}
		if end == n {
			break
		}
		start = end - c.overlap
	}
	return spans
}

// sentenceEnd moves end back to just after the nearest '.', '!' or '?' in
// the lookback window. The window never reaches so far back that the next
// start would fail to advance.
func (c *Chunker) sentenceEnd(runes []rune, start, end int) int {
	floor := end - sentenceLookback
	if lowest := start + c.overlap; floor < lowest {
		floor = lowest
	}
	for i := end - 1; i >= floor; i-- {
		switch runes[i] {
		case '.', '!', '?':
			return i + 1
		}
	}
	return end
}
