// Package app wires configuration, storage, model clients and services into
// one Dependencies value.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/upb/docchat/config"
	"github.com/upb/docchat/internal/auth"
	"github.com/upb/docchat/internal/embedcache"
	"github.com/upb/docchat/internal/extract"
	"github.com/upb/docchat/internal/observability"
	"github.com/upb/docchat/internal/rag"
	"github.com/upb/docchat/middleware"
	"github.com/upb/docchat/repositories"
	"github.com/upb/docchat/repositories/memory"
	"github.com/upb/docchat/repositories/postgres"
	"github.com/upb/docchat/services/accounts"
	"github.com/upb/docchat/services/admin"
	"github.com/upb/docchat/services/chat"
	"github.com/upb/docchat/services/documents"
	"github.com/upb/docchat/services/providers"
	"github.com/upb/docchat/services/providers/ollama"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	DB     *postgres.DB // nil on the memory backend
	Redis  *redis.Client

	// Repository Factory (postgres backend only)
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Repos     *repositories.Repositories
	TxManager repositories.TransactionManager

	// Model server and retrieval pipeline
	Ollama      *ollama.Adapter
	Coordinator *rag.Coordinator
	Ingestor    *rag.Ingestor

	// Observability
	Metrics  observability.Metrics
	Registry *prometheus.Registry

	// Auth
	Tokens         *auth.TokenManager
	AuthMiddleware *middleware.AuthMiddleware
	RateLimiter    *middleware.RateLimiter

	// Services
	Accounts  *accounts.Service
	Documents *documents.Service
	Chats     *chat.Service
	Admin     *admin.Service
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initMetrics(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := deps.initStorage(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.initCache(ctx, cfg)

	if err := deps.initPipeline(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize retrieval pipeline: %w", err)
	}

	if err := deps.initAuth(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	deps.initServices(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.String("storage", cfg.Database.Backend),
		zap.Bool("redis_cache", deps.Redis != nil),
		zap.Bool("metrics", deps.Registry != nil))
	return deps, nil
}

func (d *Dependencies) initMetrics(cfg *config.Config) error {
	if !cfg.Observability.MetricsEnabled {
		d.Metrics = observability.NopMetrics{}
		return nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := observability.NewPrometheusMetrics(reg)
	if err != nil {
		return err
	}
	d.Registry = reg
	d.Metrics = m
	return nil
}

// initStorage opens PostgreSQL and prepares the schema, or falls back to the
// in-memory store on the memory backend
func (d *Dependencies) initStorage(ctx context.Context, cfg *config.Config) error {
	if cfg.Database.Backend == config.BackendMemory {
		d.Repos = memory.NewStore().Repositories()
		d.Logger.Warn("using in-memory storage, data is lost on restart")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}
	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.PingContext(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := d.DB.InitSchema(ctx, cfg.RAG.EmbeddingDimension); err != nil {
		_ = factory.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.Repos = factory.NewRepositories()
	d.TxManager = factory.GetTransactionManager()

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))
	return nil
}

// initCache connects the shared embedding cache. An unreachable Redis only
// disables the shared tier.
func (d *Dependencies) initCache(ctx context.Context, cfg *config.Config) {
	if cfg.Redis.Addr == "" {
		return
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		d.Logger.Warn("redis unavailable, shared embedding cache disabled",
			zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		_ = client.Close()
		return
	}
	d.Redis = client
}

func (d *Dependencies) initPipeline(cfg *config.Config) error {
	d.Ollama = ollama.NewAdapter(providers.ProviderConfig{
		BaseURL:        cfg.Ollama.BaseURL,
		EmbeddingModel: cfg.Ollama.EmbeddingModel,
		ChatModel:      cfg.Ollama.ChatModel,
		Timeout:        cfg.Ollama.GenerationTimeout,
		MaxRetries:     cfg.Ollama.MaxRetries,
	}, d.Logger.Named("ollama"))

	var shared embedcache.Store
	if d.Redis != nil {
		shared = embedcache.NewRedisStore(d.Redis, cfg.Redis.TTL)
	}
	cached, err := embedcache.New(d.Ollama, cfg.Ollama.EmbeddingModel, cfg.RAG.EmbeddingCacheSize, shared, d.Logger.Named("embedcache"))
	if err != nil {
		return err
	}

	chunker, err := rag.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return err
	}

	ragLogger := d.Logger.Named("rag")
	embedder := rag.NewEmbeddingClient(cached, cfg.RAG.EmbeddingDimension, cfg.Ollama.EmbeddingTimeout, ragLogger, d.Metrics)
	retriever := rag.NewRetriever(embedder, d.Repos.Chunks, cfg.RAG.TopK, ragLogger, d.Metrics)
	generator := rag.NewGenerator(d.Ollama, rag.GenerationOptions{
		Temperature: cfg.Ollama.Temperature,
		TopP:        cfg.Ollama.TopP,
		MaxTokens:   cfg.Ollama.MaxTokens,
	}, cfg.RAG.MaxGroundingChunks, ragLogger, d.Metrics)

	d.Ingestor = rag.NewIngestor(chunker, embedder, d.Repos.Chunks, ragLogger, d.Metrics)
	chatStore := chat.NewStore(d.Repos.Chats, d.Repos.Messages, d.Logger.Named("chat"))
	d.Coordinator = rag.NewCoordinator(chatStore, retriever, generator, cfg.RAG.TopK, ragLogger, d.Metrics)
	d.Chats = chat.NewService(chatStore, d.Coordinator, d.Logger.Named("chat"))
	return nil
}

func (d *Dependencies) initAuth(cfg *config.Config) error {
	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	if err != nil {
		return err
	}
	d.Tokens = tokens
	d.AuthMiddleware = middleware.NewAuthMiddleware(tokens, d.Logger)
	d.RateLimiter = middleware.NewRateLimiter(cfg.RateLimit.QueriesPerMinute, cfg.RateLimit.Burst, d.Logger)
	return nil
}

func (d *Dependencies) initServices(cfg *config.Config) {
	d.Accounts = accounts.NewService(d.Repos.Users, d.Tokens, d.Logger.Named("accounts"))
	d.Documents = documents.NewService(
		d.Repos.Documents,
		d.Repos.Chunks,
		d.Ingestor,
		extract.New(),
		cfg.Upload.Dir,
		cfg.Upload.MaxBytes,
		d.Logger.Named("documents"),
	)
	d.Admin = admin.NewService(d.Repos, d.TxManager, d.Accounts, d.Documents, d.Logger.Named("admin"))
}

// SQLDB returns the raw pool for health checks, nil on the memory backend
func (d *Dependencies) SQLDB() *sql.DB {
	if d.DB == nil {
		return nil
	}
	return d.DB.DB
}

// EnsureBootstrapAdmin creates the configured admin account when missing
func (d *Dependencies) EnsureBootstrapAdmin(ctx context.Context) error {
	username := d.Config.Auth.BootstrapAdminUsername
	if username == "" {
		return nil
	}
	return d.Accounts.EnsureAdmin(ctx, username, d.Config.Auth.BootstrapAdminPassword)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}
