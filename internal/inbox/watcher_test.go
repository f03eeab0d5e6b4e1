package inbox

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/upb/docchat/internal/extract"
	"github.com/upb/docchat/models"
	"github.com/upb/docchat/repositories/memory"
	"github.com/upb/docchat/services/documents"
)

type upload struct {
	userID   uuid.UUID
	filename string
	body     string
}

type recordingUploader struct {
	mu      sync.Mutex
	uploads []upload
	err     error
}

func (u *recordingUploader) Upload(ctx context.Context, userID uuid.UUID, filename string, r io.Reader) (*documents.UploadResult, error) {
	body, _ := io.ReadAll(r)
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return nil, u.err
	}
	u.uploads = append(u.uploads, upload{userID: userID, filename: filename, body: string(body)})
	return &documents.UploadResult{Document: &models.Document{ID: uuid.New(), UserID: userID, Filename: filename}, Chunks: 1}, nil
}

func (u *recordingUploader) snapshot() []upload {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]upload(nil), u.uploads...)
}

type fixture struct {
	root     string
	userID   uuid.UUID
	uploader *recordingUploader
}

func startWatcher(t *testing.T, before func(f *fixture)) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	repos := memory.NewStore().Repositories()
	user := &models.User{ID: uuid.New(), Username: "alice", PasswordHash: "x"}
	require.NoError(t, repos.Users.Create(ctx, user))

	f := &fixture{root: t.TempDir(), userID: user.ID, uploader: &recordingUploader{}}
	if before != nil {
		before(f)
	}

	w, err := NewWatcher(f.root, f.uploader, extract.New(), repos.Users, 20*time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return f
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
}

func TestWatcher_IngestsExistingFiles(t *testing.T) {
	var path string
	f := startWatcher(t, func(f *fixture) {
		path = filepath.Join(f.root, f.userID.String(), "notes.txt")
		writeFile(t, path, "already here")
	})

	require.Eventually(t, func() bool { return len(f.uploader.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	got := f.uploader.snapshot()[0]
	assert.Equal(t, f.userID, got.userID)
	assert.Equal(t, "notes.txt", got.filename)
	assert.Equal(t, "already here", got.body)

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_IngestsNewUserDirectory(t *testing.T) {
	f := startWatcher(t, nil)

	dir := filepath.Join(f.root, f.userID.String())
	require.NoError(t, os.Mkdir(dir, 0o750))
	// let the watcher pick up the new directory
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "report.md"), "# Report")

	require.Eventually(t, func() bool { return len(f.uploader.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "report.md", f.uploader.snapshot()[0].filename)
}

func TestWatcher_SkipsUnwantedFiles(t *testing.T) {
	stranger := uuid.New()
	var kept []string
	f := startWatcher(t, func(f *fixture) {
		userDir := filepath.Join(f.root, f.userID.String())
		kept = []string{
			filepath.Join(userDir, "image.png"),
			filepath.Join(userDir, ".hidden.txt"),
			filepath.Join(f.root, "not-a-user", "doc.txt"),
			filepath.Join(f.root, stranger.String(), "doc.txt"),
		}
		for _, p := range kept {
			writeFile(t, p, "content")
		}
		writeFile(t, filepath.Join(userDir, "ok.txt"), "content")
	})

	require.Eventually(t, func() bool { return len(f.uploader.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	uploads := f.uploader.snapshot()
	require.Len(t, uploads, 1)
	assert.Equal(t, "ok.txt", uploads[0].filename)
	for _, p := range kept {
		assert.FileExists(t, p)
	}
}

func TestWatcher_KeepsFileOnFailure(t *testing.T) {
	var path string
	f := startWatcher(t, func(f *fixture) {
		f.uploader.err = assert.AnError
		path = filepath.Join(f.root, f.userID.String(), "notes.txt")
		writeFile(t, path, strings.Repeat("x", 10))
	})

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, f.uploader.snapshot())
	assert.FileExists(t, path)
}
