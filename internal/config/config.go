// Package config loads StudyFlow settings from built-in defaults, an optional
// YAML file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bull/studyflow/internal/study"
)

// Backends and providers.
const (
	IndexMemory = "memory"
	IndexQdrant = "qdrant"

	RepositorySQLite = "sqlite"
	RepositoryMemory = "memory"

	EmbeddingAuto   = "auto"
	EmbeddingOpenAI = "openai"
	EmbeddingHash   = "hash"

	EnrichmentAuto      = "auto"
	EnrichmentWikipedia = "wikipedia"
	EnrichmentTemplate  = "template"
)

// ChunkingConfig bounds chunk sizes in characters.
type ChunkingConfig struct {
	MinSize int `yaml:"min_size"`
	MaxSize int `yaml:"max_size"`
}

// SessionConfig configures review sessions.
type SessionConfig struct {
	Size int `yaml:"size"`
}

// OpenAIConfig holds OpenAI API settings shared by the embedder and generator.
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	EmbeddingModel string `yaml:"embedding_model"`
	ChatModel      string `yaml:"chat_model"`
	MaxTokens      int    `yaml:"max_tokens"`
}

// EmbeddingConfig selects the embedder. Provider "auto" uses OpenAI when an
// API key is configured and the hash embedder otherwise. Dimension 0 means
// the provider default.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"`
	Dimension   int    `yaml:"dimension"`
	Concurrency int    `yaml:"concurrency"`
	BatchSize   int    `yaml:"batch_size"`
	CacheSize   int    `yaml:"cache_size"`
}

// QdrantConfig contains connection details for Qdrant.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
}

// IndexConfig selects the similarity index backend.
type IndexConfig struct {
	Backend string       `yaml:"backend"`
	Qdrant  QdrantConfig `yaml:"qdrant"`
}

// EnrichmentConfig selects the knowledge enricher.
type EnrichmentConfig struct {
	Provider   string        `yaml:"provider"`
	BaseURL    string        `yaml:"base_url"`
	MaxQueries int           `yaml:"max_queries"`
	Timeout    time.Duration `yaml:"timeout"`
	Retries    int           `yaml:"retries"`
}

// StorageConfig locates documents and their metadata.
type StorageConfig struct {
	DataDir    string `yaml:"data_dir"`
	Repository string `yaml:"repository"`
}

// GitHubConfig configures document import from GitHub.
type GitHubConfig struct {
	Token   string `yaml:"token"`
	BaseURL string `yaml:"base_url"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Port int  `yaml:"port"`
	HTTP bool `yaml:"http"` // Serve over HTTP instead of stdio
}

// Config is the root configuration.
type Config struct {
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Session    SessionConfig    `yaml:"session"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Index      IndexConfig      `yaml:"index"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Storage    StorageConfig    `yaml:"storage"`
	GitHub     GitHubConfig     `yaml:"github"`
	Server     ServerConfig     `yaml:"server"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Chunking: ChunkingConfig{MinSize: 300, MaxSize: 800},
		Session:  SessionConfig{Size: 20},
		OpenAI: OpenAIConfig{
			EmbeddingModel: "text-embedding-3-small",
			ChatModel:      "gpt-4o-mini",
			MaxTokens:      4000,
		},
		Embedding: EmbeddingConfig{
			Provider:    EmbeddingAuto,
			Concurrency: 4,
			BatchSize:   64,
			CacheSize:   4096,
		},
		Index: IndexConfig{
			Backend: IndexMemory,
			Qdrant:  QdrantConfig{Host: "localhost", Port: 6334, Collection: "studyflow_chunks"},
		},
		Enrichment: EnrichmentConfig{
			Provider:   EnrichmentAuto,
			BaseURL:    "https://en.wikipedia.org",
			MaxQueries: 3,
			Timeout:    10 * time.Second,
			Retries:    2,
		},
		Storage: StorageConfig{DataDir: defaultDataDir(), Repository: RepositorySQLite},
		Server:  ServerConfig{Port: 8080},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "studyflow")
	}
	return ".studyflow"
}

// Load builds the configuration. An empty path or a missing file skips the
// YAML layer. Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: parse config %s: %v", study.ErrInvalidInput, path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&c.Index.Qdrant.Host, "QDRANT_HOST")
	setString(&c.Index.Qdrant.Collection, "QDRANT_COLLECTION")
	setString(&c.GitHub.Token, "GITHUB_TOKEN")
	setString(&c.Storage.DataDir, "STUDYFLOW_DATA_DIR")
	setString(&c.Storage.Repository, "STUDYFLOW_REPOSITORY")
	setString(&c.Index.Backend, "STUDYFLOW_INDEX_BACKEND")
	setString(&c.Embedding.Provider, "STUDYFLOW_EMBEDDING_PROVIDER")
	setString(&c.Enrichment.Provider, "STUDYFLOW_ENRICHMENT_PROVIDER")

	ints := []struct {
		dst *int
		key string
	}{
		{&c.Index.Qdrant.Port, "QDRANT_PORT"},
		{&c.Server.Port, "PORT"},
		{&c.Chunking.MinSize, "STUDYFLOW_CHUNK_MIN"},
		{&c.Chunking.MaxSize, "STUDYFLOW_CHUNK_MAX"},
		{&c.Session.Size, "STUDYFLOW_SESSION_SIZE"},
	}
	for _, e := range ints {
		if err := setInt(e.dst, e.key); err != nil {
			return err
		}
	}

	if v := os.Getenv("SERVER_MODE"); v != "" {
		c.Server.HTTP = v == "true"
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not an integer", study.ErrInvalidInput, key, v)
	}
	*dst = i
	return nil
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Chunking.MinSize > 0 && c.Chunking.MaxSize > 0, "chunk sizes must be positive")
	check(c.Chunking.MinSize <= c.Chunking.MaxSize, "chunking.min_size %d exceeds max_size %d", c.Chunking.MinSize, c.Chunking.MaxSize)
	check(c.Session.Size > 0, "session.size must be positive")
	check(c.Embedding.Dimension >= 0, "embedding.dimension must not be negative")
	check(c.Embedding.Concurrency > 0, "embedding.concurrency must be positive")
	check(c.Embedding.BatchSize > 0, "embedding.batch_size must be positive")
	check(c.Enrichment.MaxQueries > 0, "enrichment.max_queries must be positive")
	check(c.Enrichment.Retries >= 0, "enrichment.retries must not be negative")
	check(c.Server.Port > 0 && c.Server.Port <= 65535, "server.port %d out of range", c.Server.Port)
	check(c.Storage.DataDir != "", "storage.data_dir is required")

	check(slices.Contains([]string{IndexMemory, IndexQdrant}, c.Index.Backend), "unknown index backend %q", c.Index.Backend)
	check(slices.Contains([]string{RepositorySQLite, RepositoryMemory}, c.Storage.Repository), "unknown repository %q", c.Storage.Repository)
	check(slices.Contains([]string{EmbeddingAuto, EmbeddingOpenAI, EmbeddingHash}, c.Embedding.Provider), "unknown embedding provider %q", c.Embedding.Provider)
	check(slices.Contains([]string{EnrichmentAuto, EnrichmentWikipedia, EnrichmentTemplate}, c.Enrichment.Provider), "unknown enrichment provider %q", c.Enrichment.Provider)
	check(c.Embedding.Provider != EmbeddingOpenAI || c.OpenAI.APIKey != "", "embedding provider openai requires OPENAI_API_KEY")
	if c.Index.Backend == IndexQdrant {
		check(c.Index.Qdrant.Host != "", "index.qdrant.host is required")
		check(c.Index.Qdrant.Port > 0 && c.Index.Qdrant.Port <= 65535, "index.qdrant.port %d out of range", c.Index.Qdrant.Port)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", study.ErrInvalidInput, err)
	}
	return nil
}

// UseOpenAI reports whether the OpenAI-backed embedder and generator are used.
func (c *Config) UseOpenAI() bool {
	switch c.Embedding.Provider {
	case EmbeddingOpenAI:
		return true
	case EmbeddingHash:
		return false
	}
	return c.OpenAI.APIKey != ""
}

// UseWikipedia reports whether enrichment queries Wikipedia.
func (c *Config) UseWikipedia() bool {
	switch c.Enrichment.Provider {
	case EnrichmentWikipedia:
		return true
	case EnrichmentTemplate:
		return false
	}
	return c.UseOpenAI()
}
