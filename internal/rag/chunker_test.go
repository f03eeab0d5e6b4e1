package rag

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultChunker(t *testing.T) *Chunker {
	t.Helper()
	c, err := NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)
	return c
}

func TestNewChunker_RejectsNonAdvancingParameters(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{name: "zero size", size: 0, overlap: 0},
		{name: "overlap equals size", size: 100, overlap: 100},
		{name: "overlap exceeds size", size: 100, overlap: 150},
		{name: "negative overlap", size: 100, overlap: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChunker(tt.size, tt.overlap)
			assert.ErrorIs(t, err, ErrInvalidChunking)
		})
	}
}

func TestChunker_ShortAndBlankText(t *testing.T) {
	c := defaultChunker(t)

	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split(" \n\t  \n"))

	chunks := c.Split("  A short note. Nothing more.  ")
	require.Len(t, chunks, 1)
	assert.Equal(t, "A short note. Nothing more.", chunks[0])

	exact := strings.Repeat("x", DefaultChunkSize)
	assert.Len(t, c.Split(exact), 1)
}

func TestChunker_SentenceBoundaries(t *testing.T) {
	// 2400 runes with punctuation at offsets 950 and 1700.
	text := strings.Repeat("a", 950) + "." + strings.Repeat("b", 749) + "." + strings.Repeat("c", 699)
	require.Len(t, text, 2400)

	spans := defaultChunker(t).Spans(text)
	require.Len(t, spans, 3)

	assert.Equal(t, 0, spans[0].Start)
	assert.Equal(t, 951, spans[0].End)
	assert.True(t, strings.HasSuffix(spans[0].Text, "."))

	assert.Equal(t, spans[0].End-DefaultChunkOverlap, spans[1].Start)
	assert.Equal(t, 1701, spans[1].End)
	assert.True(t, strings.HasSuffix(spans[1].Text, "."))

	assert.Equal(t, spans[1].End-DefaultChunkOverlap, spans[2].Start)
	assert.Equal(t, 2400, spans[2].End)
}

func TestChunker_NeverExceedsChunkSize(t *testing.T) {
	// The period sits just past the raw boundary, so it is not part of the window.
	text := strings.Repeat("a", 1000) + "." + strings.Repeat("b", 500)

	spans := defaultChunker(t).Spans(text)
	require.NotEmpty(t, spans)
	assert.Equal(t, 1000, spans[0].End)
	for _, s := range spans {
		assert.LessOrEqual(t, s.End-s.Start, DefaultChunkSize)
	}
}

func TestChunker_RawBoundaryWithoutPunctuation(t *testing.T) {
	text := strings.Repeat("z", 2500)

	spans := defaultChunker(t).Spans(text)
	require.Len(t, spans, 3)
	assert.Equal(t, 1000, spans[0].End)
	assert.Equal(t, 800, spans[1].Start)
	assert.Equal(t, 1800, spans[1].End)
	assert.Equal(t, 1600, spans[2].Start)
}

func TestChunker_PunctuationOutsideLookbackIgnored(t *testing.T) {
	text := strings.Repeat("a", 850) + "!" + strings.Repeat("b", 400)

	spans := defaultChunker(t).Spans(text)
	require.NotEmpty(t, spans)
	assert.Equal(t, 1000, spans[0].End)
}

func TestChunker_MultibyteRunes(t *testing.T) {
	c, err := NewChunker(10, 2)
	require.NoError(t, err)

	text := strings.Repeat("é", 25)
	for _, chunk := range c.Split(text) {
		assert.LessOrEqual(t, len([]rune(chunk)), 10)
		assert.True(t, strings.Trim(chunk, "é") == "")
	}
}

func TestChunker_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alphabet := []rune("abc de.f!g?h \n")

	params := []struct{ size, overlap int }{
		{DefaultChunkSize, DefaultChunkOverlap},
		{120, 100},
		{50, 0},
		{7, 6},
	}

	for _, p := range params {
		c, err := NewChunker(p.size, p.overlap)
		require.NoError(t, err)

		for iter := 0; iter < 50; iter++ {
			n := rng.Intn(5000)
			buf := make([]rune, n)
			for i := range buf {
				buf[i] = alphabet[rng.Intn(len(alphabet))]
			}
			text := string(buf)

			spans := c.Spans(text)

			advance := p.size - p.overlap - sentenceLookback
			if advance < 1 {
				advance = 1
			}
			assert.LessOrEqual(t, len(spans), n/advance+1)

			for i, s := range spans {
				assert.NotEmpty(t, s.Text)
				assert.Contains(t, text, s.Text)
				assert.LessOrEqual(t, s.End-s.Start, p.size)
				if i > 0 {
					assert.Greater(t, s.Start, spans[i-1].Start)
				}
			}
		}
	}
}
