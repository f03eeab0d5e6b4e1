// Package extract pulls plain text out of uploaded documents.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrUnsupportedType is returned for file extensions no loader handles.
var ErrUnsupportedType = errors.New("unsupported file type")

// Loader extracts text from one family of file formats.
type Loader interface {
	Load(ctx context.Context, path string) (string, error)
	SupportedExtensions() []string
}

// Extractor dispatches to a Loader by file extension.
type Extractor struct {
	loaders map[string]Loader
}

// New returns an Extractor for PDF, DOCX and plain-text files.
func New() *Extractor {
	e := &Extractor{loaders: make(map[string]Loader)}
	for _, l := range []Loader{PDFLoader{}, DOCXLoader{}, TextLoader{}} {
		e.Register(l)
	}
	return e
}

// Register adds or replaces the loader for its extensions.
func (e *Extractor) Register(l Loader) {
	for _, ext := range l.SupportedExtensions() {
		e.loaders[ext] = l
	}
}

// Supports reports whether filename has a known extension.
func (e *Extractor) Supports(filename string) bool {
	_, ok := e.loaders[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Extensions lists the accepted extensions.
func (e *Extractor) Extensions() []string {
	out := make([]string, 0, len(e.loaders))
	for ext := range e.loaders {
		out = append(out, ext)
	}
	return out
}

// Extract returns the trimmed text of the file at path.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	l, ok := e.loaders[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	text, err := l.Load(ctx, path)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", filepath.Base(path), err)
	}
	return strings.TrimSpace(text), nil
}

// TextLoader reads UTF-8 text and markdown files.
type TextLoader struct{}

func (TextLoader) Load(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", errors.New("file is not valid UTF-8 text")
	}
	return string(data), nil
}

func (TextLoader) SupportedExtensions() []string {
	return []string{".txt", ".md", ".markdown"}
}
