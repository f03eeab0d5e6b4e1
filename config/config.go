package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Ollama        OllamaConfig
	RAG           RAGConfig
	Redis         RedisConfig
	Upload        UploadConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	Backend          string // postgres or memory
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// AuthConfig holds token signing and bootstrap account settings
type AuthConfig struct {
	JWTSecret              string
	TokenTTL               time.Duration
	Issuer                 string
	BootstrapAdminUsername string
	BootstrapAdminPassword string
}

// OllamaConfig holds the embedding and generation service settings
type OllamaConfig struct {
	BaseURL           string        `yaml:"base_url"`
	EmbeddingModel    string        `yaml:"embedding_model"`
	ChatModel         string        `yaml:"chat_model"`
	EmbeddingTimeout  time.Duration `yaml:"embedding_timeout"`
	GenerationTimeout time.Duration `yaml:"generation_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	Temperature       float64       `yaml:"temperature"`
	TopP              float64       `yaml:"top_p"`
	MaxTokens         int           `yaml:"max_tokens"`
}

// RAGConfig holds chunking and retrieval tunables
type RAGConfig struct {
	ChunkSize          int `yaml:"chunk_size"`
	ChunkOverlap       int `yaml:"chunk_overlap"`
	TopK               int `yaml:"top_k"`
	MaxGroundingChunks int `yaml:"max_grounding_chunks"`
	EmbeddingDimension int `yaml:"embedding_dimension"`
	EmbeddingCacheSize int `yaml:"embedding_cache_size"`
}

// RedisConfig holds the shared embedding cache settings. Empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// UploadConfig holds document storage settings. Empty InboxDir disables the inbox watcher.
type UploadConfig struct {
	Dir      string
	MaxBytes int64
	InboxDir string
}

// RateLimitConfig holds the per-user query limit
type RateLimitConfig struct {
	QueriesPerMinute int
	Burst            int
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

// overlay is the optional YAML file named by RAG_CONFIG_FILE
type overlay struct {
	Ollama *OllamaConfig `yaml:"ollama"`
	RAG    *RAGConfig    `yaml:"rag"`
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 5*time.Minute),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			AllowedOrigins:  getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: loadDatabaseConfig(),
		Auth: AuthConfig{
			JWTSecret:              getEnv("JWT_SECRET", ""),
			TokenTTL:               getEnvAsDuration("TOKEN_TTL", 30*time.Minute),
			Issuer:                 getEnv("JWT_ISSUER", "docchat"),
			BootstrapAdminUsername: getEnv("BOOTSTRAP_ADMIN_USERNAME", ""),
			BootstrapAdminPassword: getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),
		},
		Ollama: OllamaConfig{
			BaseURL:           getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			EmbeddingModel:    getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			ChatModel:         getEnv("CHAT_MODEL", "llama3"),
			EmbeddingTimeout:  getEnvAsDuration("EMBEDDING_TIMEOUT", 30*time.Second),
			GenerationTimeout: getEnvAsDuration("GENERATION_TIMEOUT", 60*time.Second),
			MaxRetries:        getEnvAsInt("OLLAMA_MAX_RETRIES", 2),
			Temperature:       getEnvAsFloat("GENERATION_TEMPERATURE", 0.7),
			TopP:              getEnvAsFloat("GENERATION_TOP_P", 0.9),
			MaxTokens:         getEnvAsInt("GENERATION_MAX_TOKENS", 1000),
		},
		RAG: RAGConfig{
			ChunkSize:          getEnvAsInt("CHUNK_SIZE", 1000),
			ChunkOverlap:       getEnvAsInt("CHUNK_OVERLAP", 200),
			TopK:               getEnvAsInt("RETRIEVAL_TOP_K", 5),
			MaxGroundingChunks: getEnvAsInt("MAX_GROUNDING_CHUNKS", 3),
			EmbeddingDimension: getEnvAsInt("EMBEDDING_DIMENSION", 768),
			EmbeddingCacheSize: getEnvAsInt("EMBEDDING_CACHE_SIZE", 4096),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			TTL:      getEnvAsDuration("REDIS_EMBEDDING_TTL", 24*time.Hour),
		},
		Upload: UploadConfig{
			Dir:      getEnv("UPLOAD_DIR", "uploads"),
			MaxBytes: int64(getEnvAsInt("MAX_UPLOAD_BYTES", 10<<20)),
			InboxDir: getEnv("INBOX_DIR", ""),
		},
		RateLimit: RateLimitConfig{
			QueriesPerMinute: getEnvAsInt("QUERIES_PER_MINUTE", 30),
			Burst:            getEnvAsInt("QUERIES_BURST", 5),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if path := getEnv("RAG_CONFIG_FILE", ""); path != "" {
		if err := cfg.applyOverlay(path); err != nil {
			return nil, err
		}
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// applyOverlay merges non-zero values from a YAML file over the environment
func (c *Config) applyOverlay(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var o overlay
	if err := yaml.Unmarshal(raw, &o); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if o.Ollama != nil {
		mergeString(&c.Ollama.BaseURL, o.Ollama.BaseURL)
		mergeString(&c.Ollama.EmbeddingModel, o.Ollama.EmbeddingModel)
		mergeString(&c.Ollama.ChatModel, o.Ollama.ChatModel)
		mergeDuration(&c.Ollama.EmbeddingTimeout, o.Ollama.EmbeddingTimeout)
		mergeDuration(&c.Ollama.GenerationTimeout, o.Ollama.GenerationTimeout)
		mergeInt(&c.Ollama.MaxRetries, o.Ollama.MaxRetries)
		mergeFloat(&c.Ollama.Temperature, o.Ollama.Temperature)
		mergeFloat(&c.Ollama.TopP, o.Ollama.TopP)
		mergeInt(&c.Ollama.MaxTokens, o.Ollama.MaxTokens)
	}
	if o.RAG != nil {
		mergeInt(&c.RAG.ChunkSize, o.RAG.ChunkSize)
		mergeInt(&c.RAG.ChunkOverlap, o.RAG.ChunkOverlap)
		mergeInt(&c.RAG.TopK, o.RAG.TopK)
		mergeInt(&c.RAG.MaxGroundingChunks, o.RAG.MaxGroundingChunks)
		mergeInt(&c.RAG.EmbeddingDimension, o.RAG.EmbeddingDimension)
		mergeInt(&c.RAG.EmbeddingCacheSize, o.RAG.EmbeddingCacheSize)
	}
	return nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	switch c.Database.Backend {
	case BackendPostgres:
	case BackendMemory:
		if !c.IsDevelopment() {
			return fmt.Errorf("memory storage backend is only allowed in development")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Database.Backend)
	}

	// Database validation (DATABASE_URL or DB_* vars)
	if c.Database.Backend == BackendPostgres && c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.Backend == BackendPostgres && c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.Auth.JWTSecret == "" {
		if !c.IsDevelopment() {
			return fmt.Errorf("JWT_SECRET is required outside development")
		}
		c.Auth.JWTSecret = "development-only-secret"
	}

	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive")
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, chunk size)")
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("retrieval top-k must be positive")
	}
	if c.RAG.EmbeddingDimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	backend := getEnv("STORAGE_BACKEND", BackendPostgres)
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			Backend:          backend,
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Backend:         backend,
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "docchat"),
		Password:        getEnv("DB_PASSWORD", "docchat"),
		Database:        getEnv("DB_NAME", "docchat"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8000)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func mergeFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

func mergeDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}
