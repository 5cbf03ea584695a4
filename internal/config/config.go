// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (MINNE_* prefix, DATABASE_URL shortcut)
//  2. Config file (~/.minne/config.yaml)
//  3. Default values
//
// Categories:
//   - Server: HTTP listen address
//   - Storage: PostgreSQL connection (see storage.go)
//   - Ollama: inference service host and request limits
//   - Chunking: chunk size and overlap for note splitting
//   - Retrieval: nearest-neighbor limit and distance threshold
//
// Validation uses sentinel errors so callers can test categories with
// errors.Is.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidListenAddr indicates the HTTP listen address is empty.
	ErrInvalidListenAddr = errors.New("invalid listen address")

	// ErrInvalidOllamaHost indicates the Ollama host is malformed.
	ErrInvalidOllamaHost = errors.New("invalid ollama host")

	// ErrInvalidChunkSize indicates the chunk size is out of range.
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrInvalidChunkOverlap indicates the chunk overlap is out of range.
	ErrInvalidChunkOverlap = errors.New("invalid chunk overlap")

	// ErrInvalidEmbedDimension indicates the embedding dimension is out of range.
	ErrInvalidEmbedDimension = errors.New("invalid embedding dimension")

	// ErrInvalidEmbedConcurrency indicates the embedding concurrency cap is out of range.
	ErrInvalidEmbedConcurrency = errors.New("invalid embedding concurrency")

	// ErrInvalidRetrievalLimit indicates the retrieval chunk limit is out of range.
	ErrInvalidRetrievalLimit = errors.New("invalid retrieval limit")

	// ErrInvalidMaxDistance indicates the retrieval distance threshold is out of range.
	ErrInvalidMaxDistance = errors.New("invalid max distance")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")
)

const (
	// DefaultChunkSize is the maximum chunk size in characters.
	DefaultChunkSize = 1200

	// DefaultChunkOverlap is the character overlap between consecutive
	// chunks from the same section.
	DefaultChunkOverlap = 150

	// DefaultEmbedConcurrency caps simultaneous in-flight embedding calls
	// so a large note cannot overload the inference service.
	DefaultEmbedConcurrency = 6

	// DefaultEmbedDimension is the vector dimensionality of the deployed
	// embedding model (nomic-embed-text produces 768). The chunks.embedding
	// column is created as vector(768); a deployment that changes this
	// setting also needs a schema migration altering the column and its
	// index to the new width.
	DefaultEmbedDimension = 768

	// DefaultRetrievalLimit is the result cap for nearest-neighbor search.
	DefaultRetrievalLimit = 8

	// DefaultMaxDistance is the cosine distance threshold beyond which
	// retrieved chunks are considered irrelevant.
	DefaultMaxDistance = 0.6
)

// Config holds the full application configuration.
type Config struct {
	// Server
	ListenAddr string

	// Ollama inference service
	OllamaHost       string
	OllamaTimeout    time.Duration
	EmbedRetries     int
	EmbedRetryBase   time.Duration
	EmbedRateLimit   float64 // requests/second against the inference service; 0 disables
	EmbedDimension   int
	EmbedConcurrency int

	// Chunking
	ChunkSize    int
	ChunkOverlap int

	// Retrieval
	RetrievalLimit int
	MaxDistance    float64

	// PostgreSQL
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDBName   string
	PostgresSSLMode  string
}

// Load reads configuration from the config file and environment.
// A missing config file is not an error; defaults apply.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".minne"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("MINNE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{
		ListenAddr:       v.GetString("server.listen"),
		OllamaHost:       v.GetString("ollama.host"),
		OllamaTimeout:    v.GetDuration("ollama.timeout"),
		EmbedRetries:     v.GetInt("ollama.embed_retries"),
		EmbedRetryBase:   v.GetDuration("ollama.embed_retry_base"),
		EmbedRateLimit:   v.GetFloat64("ollama.rate_limit"),
		EmbedDimension:   v.GetInt("embedding.dimension"),
		EmbedConcurrency: v.GetInt("embedding.concurrency"),
		ChunkSize:        v.GetInt("chunking.size"),
		ChunkOverlap:     v.GetInt("chunking.overlap"),
		RetrievalLimit:   v.GetInt("retrieval.limit"),
		MaxDistance:      v.GetFloat64("retrieval.max_distance"),
		PostgresHost:     v.GetString("postgres.host"),
		PostgresPort:     v.GetInt("postgres.port"),
		PostgresUser:     v.GetString("postgres.user"),
		PostgresPassword: v.GetString("postgres.password"),
		PostgresDBName:   v.GetString("postgres.dbname"),
		PostgresSSLMode:  v.GetString("postgres.sslmode"),
	}

	// DATABASE_URL overrides the individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("ollama.host", "http://localhost:11434")
	v.SetDefault("ollama.timeout", "120s")
	v.SetDefault("ollama.embed_retries", 3)
	v.SetDefault("ollama.embed_retry_base", "250ms")
	v.SetDefault("ollama.rate_limit", 0.0)
	v.SetDefault("embedding.dimension", DefaultEmbedDimension)
	v.SetDefault("embedding.concurrency", DefaultEmbedConcurrency)
	v.SetDefault("chunking.size", DefaultChunkSize)
	v.SetDefault("chunking.overlap", DefaultChunkOverlap)
	v.SetDefault("retrieval.limit", DefaultRetrievalLimit)
	v.SetDefault("retrieval.max_distance", DefaultMaxDistance)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "minne")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "minne")
	v.SetDefault("postgres.sslmode", "disable")
}

// Validate checks configuration ranges and returns a sentinel error for the
// first violation found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidListenAddr)
	}
	if !strings.HasPrefix(c.OllamaHost, "http://") && !strings.HasPrefix(c.OllamaHost, "https://") {
		return fmt.Errorf("%w: %q must start with http:// or https://", ErrInvalidOllamaHost, c.OllamaHost)
	}
	if c.ChunkSize < 100 || c.ChunkSize > 20000 {
		return fmt.Errorf("%w: %d not in [100, 20000]", ErrInvalidChunkSize, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: %d must be >= 0 and < chunk size %d", ErrInvalidChunkOverlap, c.ChunkOverlap, c.ChunkSize)
	}
	if c.EmbedDimension < 1 || c.EmbedDimension > 16000 {
		return fmt.Errorf("%w: %d not in [1, 16000]", ErrInvalidEmbedDimension, c.EmbedDimension)
	}
	if c.EmbedConcurrency < 1 || c.EmbedConcurrency > 64 {
		return fmt.Errorf("%w: %d not in [1, 64]", ErrInvalidEmbedConcurrency, c.EmbedConcurrency)
	}
	if c.RetrievalLimit < 1 || c.RetrievalLimit > 100 {
		return fmt.Errorf("%w: %d not in [1, 100]", ErrInvalidRetrievalLimit, c.RetrievalLimit)
	}
	if c.MaxDistance <= 0 || c.MaxDistance > 2 {
		return fmt.Errorf("%w: %v not in (0, 2]", ErrInvalidMaxDistance, c.MaxDistance)
	}
	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d not in [1, 65535]", ErrInvalidPostgresPort, c.PostgresPort)
	}
	return nil
}
