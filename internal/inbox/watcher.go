// Package inbox ingests documents dropped on disk. Files placed under
// <root>/<user-uuid>/ are uploaded for that user and removed once indexed.
package inbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/docchat/models"
	"github.com/upb/docchat/services/documents"
)

// DefaultSettle is how long a file must stay quiet before it is ingested.
const DefaultSettle = 500 * time.Millisecond

// Uploader ingests one document for a user
type Uploader interface {
	Upload(ctx context.Context, userID uuid.UUID, filename string, r io.Reader) (*documents.UploadResult, error)
}

// Filter reports whether a filename has a supported format
type Filter interface {
	Supports(filename string) bool
}

// UserLookup resolves inbox directory owners
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Watcher watches the inbox tree
type Watcher struct {
	root    string
	uploads Uploader
	filter  Filter
	users   UserLookup
	settle  time.Duration
	logger  *zap.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher creates the inbox root if needed and starts an fsnotify watcher on it.
func NewWatcher(root string, uploads Uploader, filter Filter, users UserLookup, settle time.Duration, logger *zap.Logger) (*Watcher, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create inbox: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(root); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch inbox: %w", err)
	}
	if settle <= 0 {
		settle = DefaultSettle
	}

	return &Watcher{
		root:    filepath.Clean(root),
		uploads: uploads,
		filter:  filter,
		users:   users,
		settle:  settle,
		logger:  logger,
		watcher: fw,
	}, nil
}

// Run processes inbox events until ctx is cancelled. Files already present
// when Run starts are ingested too.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	ready := make(chan string, 64)
	pending := make(map[string]*time.Timer)
	schedule := func(path string) {
		if t, ok := pending[path]; ok {
			t.Reset(w.settle)
			return
		}
		pending[path] = time.AfterFunc(w.settle, func() {
			select {
			case ready <- path:
			case <-ctx.Done():
			}
		})
	}
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	entries, err := os.ReadDir(w.root)
	if err != nil {
		return fmt.Errorf("failed to read inbox: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			w.addUserDir(filepath.Join(w.root, e.Name()), schedule)
		}
	}

	w.logger.Info("inbox watcher started", zap.String("root", w.root))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("inbox watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event, schedule)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("inbox watcher error", zap.Error(err))

		case path := <-ready:
			delete(pending, path)
			w.ingest(ctx, path)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event, schedule func(string)) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	parent := filepath.Dir(event.Name)
	if parent == w.root {
		info, err := os.Stat(event.Name)
		if err == nil && info.IsDir() {
			w.addUserDir(event.Name, schedule)
		}
		return
	}
	if filepath.Dir(parent) == w.root && w.wanted(event.Name) {
		schedule(event.Name)
	}
}

// addUserDir watches a user directory and queues the files already in it.
func (w *Watcher) addUserDir(dir string, schedule func(string)) {
	if _, err := uuid.Parse(filepath.Base(dir)); err != nil {
		w.logger.Debug("ignoring inbox directory", zap.String("dir", dir))
		return
	}
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Warn("failed to watch inbox directory", zap.String("dir", dir), zap.Error(err))
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Warn("failed to read inbox directory", zap.String("dir", dir), zap.Error(err))
		return
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if !e.IsDir() && w.wanted(path) {
			schedule(path)
		}
	}
}

func (w *Watcher) wanted(path string) bool {
	name := filepath.Base(path)
	return !strings.HasPrefix(name, ".") && w.filter.Supports(name)
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	logger := w.logger.With(zap.String("path", path))

	userID, err := uuid.Parse(filepath.Base(filepath.Dir(path)))
	if err != nil {
		return
	}
	if _, err := w.users.GetByID(ctx, userID); err != nil {
		logger.Warn("inbox owner not found", zap.String("user_id", userID.String()), zap.Error(err))
		return
	}

	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to open inbox file", zap.Error(err))
		}
		return
	}
	result, err := w.uploads.Upload(ctx, userID, filepath.Base(path), f)
	_ = f.Close()
	if err != nil {
		logger.Error("inbox ingestion failed", zap.Error(err))
		return
	}

	if err := os.Remove(path); err != nil {
		logger.Warn("failed to remove ingested file", zap.Error(err))
	}
	logger.Info("inbox document ingested",
		zap.String("user_id", userID.String()),
		zap.String("document_id", result.Document.ID.String()),
		zap.Int("chunks", result.Chunks))
}
