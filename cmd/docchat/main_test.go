package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/upb/docchat/middleware"
)

func TestInitLogger(t *testing.T) {
	t.Run("default json logger", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "info")
		t.Setenv("LOG_FORMAT", "json")

		logger, err := initLogger()
		require.NoError(t, err)
		require.NotNil(t, logger)
	})

	t.Run("development console logger", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "debug")
		t.Setenv("LOG_FORMAT", "console")

		logger, err := initLogger()
		require.NoError(t, err)
		require.NotNil(t, logger)
	})

	t.Run("invalid log level", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "invalid")
		t.Setenv("LOG_FORMAT", "json")

		logger, err := initLogger()
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("defaults when not set", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "")
		t.Setenv("LOG_FORMAT", "")

		logger, err := initLogger()
		require.NoError(t, err)
		require.NotNil(t, logger)
	})
}

func TestRun(t *testing.T) {
	t.Run("invalid config fails fast", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "production")
		t.Setenv("JWT_SECRET", "")
		t.Setenv("STORAGE_BACKEND", "memory")

		err := run(context.Background(), zaptest.NewLogger(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load config")
	})

	t.Run("memory backend serves until cancelled", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "development")
		t.Setenv("STORAGE_BACKEND", "memory")
		t.Setenv("JWT_SECRET", "test-secret")
		t.Setenv("SERVER_HOST", "127.0.0.1")
		t.Setenv("PORT", "0")
		t.Setenv("METRICS_ENABLED", "false")
		t.Setenv("REDIS_ADDR", "")
		t.Setenv("INBOX_DIR", t.TempDir())
		t.Setenv("UPLOAD_DIR", t.TempDir())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- run(ctx, zaptest.NewLogger(t)) }()

		time.Sleep(200 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("run did not return after cancellation")
		}
	})
}

func TestPruneLimiterStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pruneLimiter(ctx, middleware.NewRateLimiter(60, 5, zaptest.NewLogger(t)))
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruneLimiter did not stop")
	}
}
