// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (METROPOLIA_ prefix, plus DATABASE_URL)
//  2. Config file (config.yaml in the working directory or ~/.metropolia)
//  3. Default values
//
// A .env file in the working directory is loaded into the environment before
// viper reads it, so local development can keep credentials out of the shell.
//
// Error handling uses sentinel errors so callers can check causes with
// errors.Is().
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidChunking indicates the chunk size/overlap pair is invalid.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidEmbedderDimension indicates the embedder dimension does not
	// match the corpus schema.
	ErrInvalidEmbedderDimension = errors.New("incompatible embedder dimension")
)

// VectorDimension is the embedding dimensionality of the corpus schema.
// It must match the vector(384) column in db/migrations and the output of
// the configured embedding model (all-minilm).
const VectorDimension = 384

// Default model identifiers for the Ollama backend.
const (
	DefaultChatModel     = "llama3"
	DefaultEmbedderModel = "all-minilm"
)

// Config stores application configuration.
type Config struct {
	// HTTP server
	ListenAddr string `mapstructure:"listen_addr"`

	// Ollama backend (chat completion + embeddings)
	OllamaHost     string        `mapstructure:"ollama_host"`
	ChatModel      string        `mapstructure:"chat_model"`
	EmbedderModel  string        `mapstructure:"embedder_model"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// Retrieval
	TopK int `mapstructure:"top_k"`

	// Chunking
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`

	// Ingestion pacing (requests per second against the source site)
	CrawlRate float64 `mapstructure:"crawl_rate"`
	UserAgent string  `mapstructure:"user_agent"`

	// Storage (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`
}

// Load reads configuration from defaults, an optional config file, and the
// environment.
func Load() (*Config, error) {
	// Best effort: a missing .env file is not an error.
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("listen_addr", ":5000")
	v.SetDefault("ollama_host", "http://localhost:11434")
	v.SetDefault("chat_model", DefaultChatModel)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("request_timeout", 2*time.Minute)
	v.SetDefault("top_k", 3)
	v.SetDefault("chunk_size", 1000)
	v.SetDefault("chunk_overlap", 200)
	v.SetDefault("crawl_rate", 10.0)
	v.SetDefault("user_agent", "metropolia-assistant/1.0")
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "postgres")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_db_name", "metropolia")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.metropolia")

	v.SetEnvPrefix("METROPOLIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// DATABASE_URL, when present, overrides the individual postgres settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for values that would fail at runtime.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidPostgresDBName)
	}
	if !strings.HasPrefix(c.OllamaHost, "http://") && !strings.HasPrefix(c.OllamaHost, "https://") {
		return fmt.Errorf("%w: %q", ErrInvalidOllamaHost, c.OllamaHost)
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunking, c.ChunkSize, c.ChunkOverlap)
	}
	return nil
}
