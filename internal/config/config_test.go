package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/coderag/internal/embedder"
	"github.com/dshills/coderag/internal/storage"
	"github.com/dshills/coderag/internal/vectorindex"
)

// clearEnv blanks every variable that Load consults
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		EnvLogLevel, EnvPersistDir, EnvCollection, EnvStore, EnvBackend, EnvTopK,
		embedder.EnvProvider, embedder.EnvModel, embedder.EnvOpenAIAPIKey, embedder.EnvJinaAPIKey,
	} {
		t.Setenv(k, "")
	}
}

func TestDefault(t *testing.T) {
	clearEnv(t)
	cfg := Default()

	assert.Equal(t, 1500, cfg.Chunking.ChunkSize)
	assert.Equal(t, 200, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, DefaultCollection, cfg.Index.Collection)
	assert.Equal(t, DefaultPersistDir, cfg.Index.PersistDir)
	assert.Equal(t, storage.KindFile, cfg.Index.Store)
	assert.Equal(t, vectorindex.BackendFlat, cfg.Index.Backend)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 1, cfg.Retrieval.ContextWindow)
	assert.Equal(t, embedder.ProviderLocal, cfg.Embedding.Provider)
	assert.Equal(t, embedder.DefaultBatchSize, cfg.Embedding.BatchSize)
	assert.Equal(t, "python", cfg.Indexing.CodeExtensions[".py"])
	assert.Contains(t, cfg.Indexing.DocExtensions, ".md")
	assert.Equal(t, time.Hour, cfg.CacheTTL())
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "coderag.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
chunking:
  chunk_size: 800
  chunk_overlap: 100
embedding:
  provider: openai
  model: text-embedding-3-large
index:
  collection: my_repo
  store: sqlite
  backend: graph
  persist_dir: /tmp/idx
  graph:
    m: 8
retrieval:
  top_k: 10
indexing:
  doc_extensions: [".md"]
`), 0o644))
	t.Setenv(embedder.EnvOpenAIAPIKey, "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, 800, cfg.Chunking.ChunkSize)
	assert.Equal(t, embedder.ProviderOpenAI, cfg.Embedding.Provider)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, "my_repo", cfg.Index.Collection)
	assert.Equal(t, filepath.Join("/tmp/idx", "coderag.db"), cfg.StoreLocation())
	assert.Equal(t, 8, cfg.GraphConfig().M)
	assert.Equal(t, 10, cfg.Retrieval.TopK)
	assert.Equal(t, []string{".md"}, cfg.IndexerConfig().DocExtensions)
	assert.Equal(t, "python", cfg.IndexerConfig().CodeExtensions[".py"], "unset sections keep defaults")
	assert.NoError(t, cfg.Validate())

	ec := cfg.EmbedderConfig()
	assert.Equal(t, "text-embedding-3-large", ec.Model)
	assert.Equal(t, "sk-test", ec.APIKey)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultCollection, cfg.Index.Collection)
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunking: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvCollection, "from_env")
	t.Setenv(EnvBackend, "graph")
	t.Setenv(EnvStore, "memory")
	t.Setenv(EnvTopK, "7")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(embedder.EnvJinaAPIKey, "jina-key")

	cfg := Default()
	assert.Equal(t, "from_env", cfg.Index.Collection)
	assert.Equal(t, vectorindex.BackendGraph, cfg.Index.Backend)
	assert.Equal(t, storage.KindMemory, cfg.Index.Store)
	assert.Equal(t, 7, cfg.Retrieval.TopK)
	assert.Equal(t, slog.LevelWarn, cfg.SlogLevel())
	assert.Equal(t, embedder.ProviderJina, cfg.Embedding.Provider)
	assert.Equal(t, "jina-key", cfg.Embedding.APIKey)

	t.Setenv(embedder.EnvProvider, "LOCAL")
	cfg = Default()
	assert.Equal(t, embedder.ProviderLocal, cfg.Embedding.Provider)
	assert.Empty(t, cfg.Embedding.APIKey)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap equals size", func(c *Config) { c.Chunking.ChunkOverlap = c.Chunking.ChunkSize }},
		{"negative size", func(c *Config) { c.Chunking.ChunkSize = -1 }},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "cohere" }},
		{"batch too large", func(c *Config) { c.Embedding.BatchSize = embedder.MaxBatchSize + 1 }},
		{"bad collection", func(c *Config) { c.Index.Collection = "../escape" }},
		{"unknown store", func(c *Config) { c.Index.Store = "redis" }},
		{"unknown backend", func(c *Config) { c.Index.Backend = "hnsw" }},
		{"non-positive top_k", func(c *Config) { c.Retrieval.TopK = -3 }},
		{"negative context window", func(c *Config) { c.Retrieval.ContextWindow = -1 }},
		{"bad log level", func(c *Config) { c.LogLevel = "chatty" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestSaveAndString(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.Embedding.APIKey = "secret-key"

	assert.NotContains(t, cfg.String(), "secret-key")
	assert.Contains(t, cfg.String(), "[REDACTED]")
	assert.Equal(t, "secret-key", cfg.Embedding.APIKey, "String does not mutate")

	path := filepath.Join(t.TempDir(), "nested", "coderag.yaml")
	require.NoError(t, Save(path, cfg))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "secret-key"))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Index, loaded.Index)
	assert.Equal(t, cfg.Chunking, loaded.Chunking)
}
