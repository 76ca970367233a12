package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/studyflow/internal/study"
)

var envKeys = []string{
	"OPENAI_API_KEY", "OPENAI_BASE_URL", "QDRANT_HOST", "QDRANT_PORT", "QDRANT_COLLECTION",
	"GITHUB_TOKEN", "PORT", "SERVER_MODE",
	"STUDYFLOW_DATA_DIR", "STUDYFLOW_REPOSITORY", "STUDYFLOW_INDEX_BACKEND",
	"STUDYFLOW_EMBEDDING_PROVIDER", "STUDYFLOW_ENRICHMENT_PROVIDER",
	"STUDYFLOW_CHUNK_MIN", "STUDYFLOW_CHUNK_MAX", "STUDYFLOW_SESSION_SIZE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "studyflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Chunking.MinSize)
	assert.Equal(t, 800, cfg.Chunking.MaxSize)
	assert.Equal(t, 20, cfg.Session.Size)
	assert.Equal(t, IndexMemory, cfg.Index.Backend)
	assert.Equal(t, RepositorySQLite, cfg.Storage.Repository)
	assert.False(t, cfg.UseOpenAI())
	assert.False(t, cfg.UseWikipedia())

	missing, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, cfg, missing)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
chunking:
  min_size: 200
  max_size: 600
session:
  size: 12
index:
  backend: qdrant
  qdrant:
    host: qdrant.internal
enrichment:
  provider: wikipedia
  timeout: 3s
storage:
  data_dir: /var/lib/studyflow
`)
	t.Setenv("STUDYFLOW_CHUNK_MAX", "700")
	t.Setenv("QDRANT_PORT", "7000")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("SERVER_MODE", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Chunking.MinSize)
	assert.Equal(t, 700, cfg.Chunking.MaxSize)
	assert.Equal(t, 12, cfg.Session.Size)
	assert.Equal(t, IndexQdrant, cfg.Index.Backend)
	assert.Equal(t, "qdrant.internal", cfg.Index.Qdrant.Host)
	assert.Equal(t, 7000, cfg.Index.Qdrant.Port)
	assert.Equal(t, "studyflow_chunks", cfg.Index.Qdrant.Collection)
	assert.Equal(t, 3*time.Second, cfg.Enrichment.Timeout)
	assert.Equal(t, "/var/lib/studyflow", cfg.Storage.DataDir)
	assert.True(t, cfg.Server.HTTP)
	assert.True(t, cfg.UseOpenAI())
	assert.True(t, cfg.UseWikipedia())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "min above max", yaml: "chunking: {min_size: 900, max_size: 800}"},
		{name: "zero session", yaml: "session: {size: 0}"},
		{name: "unknown backend", yaml: "index: {backend: faiss}"},
		{name: "openai without key", yaml: "embedding: {provider: openai}"},
		{name: "malformed yaml", yaml: "chunking: [1, 2"},
		{name: "non-numeric env", env: map[string]string{"PORT": "eighty"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tt.yaml))
			assert.ErrorIs(t, err, study.ErrInvalidInput)
		})
	}
}

func TestProviderSelection(t *testing.T) {
	cfg := Default()
	cfg.OpenAI.APIKey = "sk-test"
	cfg.Embedding.Provider = EmbeddingHash
	assert.False(t, cfg.UseOpenAI())

	cfg.Enrichment.Provider = EnrichmentWikipedia
	assert.True(t, cfg.UseWikipedia())

	cfg.Enrichment.Provider = EnrichmentTemplate
	cfg.Embedding.Provider = EmbeddingAuto
	assert.True(t, cfg.UseOpenAI())
	assert.False(t, cfg.UseWikipedia())
}
