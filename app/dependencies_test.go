package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/upb/docchat/config"
	"github.com/upb/docchat/internal/observability"
	"github.com/upb/docchat/services/accounts"
)

// fakeOllama answers embeddings with a fixed vector
func fakeOllama(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embeddings":
			vec := make([]float32, dim)
			vec[0] = 1
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"embedding": vec})
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "development",
		Database:    config.DatabaseConfig{Backend: config.BackendMemory},
		Auth: config.AuthConfig{
			JWTSecret:              "test-secret",
			TokenTTL:               30 * time.Minute,
			Issuer:                 "docchat",
			BootstrapAdminUsername: "root",
			BootstrapAdminPassword: "rootpass",
		},
		Ollama: config.OllamaConfig{
			BaseURL:           fakeOllama(t, 8).URL,
			EmbeddingModel:    "nomic-embed-text",
			ChatModel:         "llama3",
			EmbeddingTimeout:  time.Second,
			GenerationTimeout: time.Second,
		},
		RAG: config.RAGConfig{
			ChunkSize:          200,
			ChunkOverlap:       20,
			TopK:               5,
			MaxGroundingChunks: 3,
			EmbeddingDimension: 8,
			EmbeddingCacheSize: 16,
		},
		Upload:    config.UploadConfig{Dir: t.TempDir(), MaxBytes: 1 << 20},
		RateLimit: config.RateLimitConfig{QueriesPerMinute: 30, Burst: 5},
		Redis:     config.RedisConfig{TTL: time.Hour},
	}
}

func TestNewDependencies(t *testing.T) {
	t.Run("memory backend wires every service", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		t.Cleanup(func() { _ = deps.Close(ctx) })

		assert.Nil(t, deps.DB)
		assert.Nil(t, deps.SQLDB())
		assert.Nil(t, deps.Redis)
		assert.Nil(t, deps.Registry)
		assert.IsType(t, observability.NopMetrics{}, deps.Metrics)
		require.NotNil(t, deps.Repos)
		assert.NotNil(t, deps.Coordinator)
		assert.NotNil(t, deps.Accounts)
		assert.NotNil(t, deps.Documents)
		assert.NotNil(t, deps.Chats)
		assert.NotNil(t, deps.Admin)
		assert.NotNil(t, deps.AuthMiddleware)
		assert.NotNil(t, deps.RateLimiter)
	})

	t.Run("redis and metrics when configured", func(t *testing.T) {
		ctx := context.Background()
		mr := miniredis.RunT(t)
		cfg := testConfig(t)
		cfg.Redis.Addr = mr.Addr()
		cfg.Observability.MetricsEnabled = true

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		t.Cleanup(func() { _ = deps.Close(ctx) })

		require.NotNil(t, deps.Redis)
		require.NotNil(t, deps.Registry)

		// ingesting embeds through the cache, which writes to redis
		user, err := deps.Accounts.Register(ctx, accounts.Credentials{Username: "alice", Password: "secret1"})
		require.NoError(t, err)
		_, err = deps.Documents.Upload(ctx, user.ID, "notes.txt", strings.NewReader("hello cached world"))
		require.NoError(t, err)
		assert.NotEmpty(t, mr.Keys())
	})

	t.Run("unreachable redis is not fatal", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.Redis.Addr = "127.0.0.1:1"

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		t.Cleanup(func() { _ = deps.Close(ctx) })
		assert.Nil(t, deps.Redis)
	})

	t.Run("invalid chunking is rejected", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.RAG.ChunkOverlap = cfg.RAG.ChunkSize

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize retrieval pipeline")
	})

	t.Run("database connection failure", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Database = config.DatabaseConfig{
			Backend:         config.BackendPostgres,
			Host:            "127.0.0.1",
			Port:            1,
			User:            "docchat",
			Database:        "docchat",
			SSLMode:         "disable",
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: time.Minute,
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})
}

func TestEnsureBootstrapAdmin(t *testing.T) {
	ctx := context.Background()
	deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(ctx) })

	require.NoError(t, deps.EnsureBootstrapAdmin(ctx))
	require.NoError(t, deps.EnsureBootstrapAdmin(ctx), "second run is a no-op")

	user, err := deps.Repos.Users.GetByUsername(ctx, "root")
	require.NoError(t, err)
	assert.True(t, user.IsAdmin)

	session, err := deps.Accounts.Login(ctx, accounts.Credentials{Username: "root", Password: "rootpass"})
	require.NoError(t, err)
	claims, err := deps.Tokens.ValidateToken(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.True(t, claims.HasRole("admin"))
}

func TestDependenciesClose(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Addr = mr.Addr()

	deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NoError(t, deps.Close(ctx))
}
