// Package config loads coderag settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/coderag/internal/chunker"
	"github.com/dshills/coderag/internal/embedder"
	"github.com/dshills/coderag/internal/indexer"
	"github.com/dshills/coderag/internal/storage"
	"github.com/dshills/coderag/internal/vectorindex"
)

// Environment variables that override file settings
const (
	EnvLogLevel   = "CODERAG_LOG_LEVEL"
	EnvPersistDir = "CODERAG_PERSIST_DIR"
	EnvCollection = "CODERAG_COLLECTION"
	EnvStore      = "CODERAG_STORE"
	EnvBackend    = "CODERAG_BACKEND"
	EnvTopK       = "CODERAG_TOP_K"
)

// Defaults
const (
	DefaultCollection    = "code_documentation"
	DefaultPersistDir    = "./coderag_index"
	DefaultTopK          = 5
	DefaultContextWindow = 1
	DefaultCacheSize     = 256
	DefaultCacheTTLSecs  = 3600
	DefaultLogLevel      = "info"
	DefaultFileName      = "coderag.yaml"
)

// ErrInvalid is wrapped by every Validate failure
var ErrInvalid = errors.New("invalid configuration")

// ChunkingConfig controls fragment sizes
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// EmbeddingConfig selects and configures the embedding provider
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model,omitempty"`
	APIKey    string `yaml:"api_key,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	Dimension int    `yaml:"dimension,omitempty"` // local provider only
	BatchSize int    `yaml:"batch_size"`
	CacheSize int    `yaml:"cache_size"`
}

// GraphConfig tunes the graph backend
type GraphConfig struct {
	M              int `yaml:"m"`
	EfConstruction int `yaml:"ef_construction"`
	EfSearch       int `yaml:"ef_search"`
}

// IndexConfig selects where and how vectors are stored
type IndexConfig struct {
	Collection string      `yaml:"collection"`
	PersistDir string      `yaml:"persist_dir"`
	Store      string      `yaml:"store"`
	Backend    string      `yaml:"backend"`
	Graph      GraphConfig `yaml:"graph"`
}

// RetrievalConfig holds query-time defaults
type RetrievalConfig struct {
	TopK          int `yaml:"top_k"`
	ContextWindow int `yaml:"context_window"`
	CacheSize     int `yaml:"cache_size"`
	CacheTTLSecs  int `yaml:"cache_ttl_secs"`
}

// IndexingConfig controls repository indexing
type IndexingConfig struct {
	Workers         int               `yaml:"workers,omitempty"`
	BatchSize       int               `yaml:"batch_size"`
	MaxFileSize     int64             `yaml:"max_file_size"`
	CodeExtensions  map[string]string `yaml:"code_extensions"`
	DocExtensions   []string          `yaml:"doc_extensions"`
	SkipDirs        []string          `yaml:"skip_dirs"`
	DisableSemantic bool              `yaml:"disable_semantic,omitempty"`
}

// Config is the root configuration
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Indexing  IndexingConfig  `yaml:"indexing"`
}

// Default returns the built-in configuration with environment overrides
// applied
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg
}

// Load reads a config from path. A missing file yields the defaults.
// Environment variables override file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg, nil
}

// LoadDefault tries ./coderag.yaml, then ~/.config/coderag/config.yaml, then
// falls back to the defaults. It returns the path used, or "" for defaults.
func LoadDefault() (*Config, string, error) {
	if _, err := os.Stat(DefaultFileName); err == nil {
		cfg, err := Load(DefaultFileName)
		return cfg, DefaultFileName, err
	}
	if userPath, err := defaultUserConfigPath(); err == nil {
		if _, err := os.Stat(userPath); err == nil {
			cfg, err := Load(userPath)
			return cfg, userPath, err
		}
	}
	return Default(), "", nil
}

// Save writes the config to path, creating directories as needed. The API
// key is never written.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out := *cfg
	out.Embedding.APIKey = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "coderag", "config.yaml"), nil
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	chunking := chunker.DefaultConfig()
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = chunking.ChunkSize
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = chunking.ChunkOverlap
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = embedder.DefaultBatchSize
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = embedder.DefaultCacheSize
	}
	if cfg.Index.Collection == "" {
		cfg.Index.Collection = DefaultCollection
	}
	if cfg.Index.PersistDir == "" {
		cfg.Index.PersistDir = DefaultPersistDir
	}
	if cfg.Index.Store == "" {
		cfg.Index.Store = storage.KindFile
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = vectorindex.BackendFlat
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = DefaultTopK
	}
	if cfg.Retrieval.ContextWindow == 0 {
		cfg.Retrieval.ContextWindow = DefaultContextWindow
	}
	if cfg.Retrieval.CacheSize == 0 {
		cfg.Retrieval.CacheSize = DefaultCacheSize
	}
	if cfg.Retrieval.CacheTTLSecs == 0 {
		cfg.Retrieval.CacheTTLSecs = DefaultCacheTTLSecs
	}
	if cfg.Indexing.BatchSize == 0 {
		cfg.Indexing.BatchSize = indexer.DefaultBatchSize
	}
	if cfg.Indexing.MaxFileSize == 0 {
		cfg.Indexing.MaxFileSize = indexer.DefaultMaxFileSize
	}
	if cfg.Indexing.CodeExtensions == nil {
		cfg.Indexing.CodeExtensions = make(map[string]string, len(indexer.DefaultCodeExtensions))
		for ext, lang := range indexer.DefaultCodeExtensions {
			cfg.Indexing.CodeExtensions[ext] = lang
		}
	}
	if cfg.Indexing.DocExtensions == nil {
		cfg.Indexing.DocExtensions = append([]string(nil), indexer.DefaultDocExtensions...)
	}
	if cfg.Indexing.SkipDirs == nil {
		cfg.Indexing.SkipDirs = append([]string(nil), indexer.DefaultSkipDirs...)
	}
}

// applyEnv overlays environment variables. The provider falls back to the
// embedder's detection (explicit variable, then API keys, then local) and the
// API key is read for whichever provider ends up selected.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvPersistDir); v != "" {
		cfg.Index.PersistDir = v
	}
	if v := os.Getenv(EnvCollection); v != "" {
		cfg.Index.Collection = v
	}
	if v := os.Getenv(EnvStore); v != "" {
		cfg.Index.Store = v
	}
	if v := os.Getenv(EnvBackend); v != "" {
		cfg.Index.Backend = v
	}
	if v := os.Getenv(EnvTopK); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.TopK = k
		}
	}

	if v := os.Getenv(embedder.EnvProvider); v != "" {
		cfg.Embedding.Provider = v
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = embedder.DetectProvider()
	}
	cfg.Embedding.Provider = strings.ToLower(cfg.Embedding.Provider)
	if v := os.Getenv(embedder.EnvModel); v != "" {
		cfg.Embedding.Model = v
	}
	if cfg.Embedding.APIKey == "" {
		switch cfg.Embedding.Provider {
		case embedder.ProviderOpenAI:
			cfg.Embedding.APIKey = os.Getenv(embedder.EnvOpenAIAPIKey)
		case embedder.ProviderJina:
			cfg.Embedding.APIKey = os.Getenv(embedder.EnvJinaAPIKey)
		}
	}
}

// Validate reports the first unusable setting
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive", ErrInvalid)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size)", ErrInvalid)
	}
	switch c.Embedding.Provider {
	case embedder.ProviderOpenAI, embedder.ProviderJina, embedder.ProviderLocal:
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalid, c.Embedding.Provider)
	}
	if c.Embedding.BatchSize < 0 || c.Embedding.BatchSize > embedder.MaxBatchSize {
		return fmt.Errorf("%w: embedding batch_size must be at most %d", ErrInvalid, embedder.MaxBatchSize)
	}
	if err := storage.ValidateName(c.Index.Collection); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	switch c.Index.Store {
	case storage.KindFile, storage.KindSQLite, storage.KindMemory:
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalid, c.Index.Store)
	}
	switch c.Index.Backend {
	case vectorindex.BackendFlat, vectorindex.BackendGraph:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Index.Backend)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive", ErrInvalid)
	}
	if c.Retrieval.ContextWindow < 0 {
		return fmt.Errorf("%w: context_window must not be negative", ErrInvalid)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// StoreLocation returns the location handed to storage.Open: the persist
// directory for file stores, a database file inside it for SQLite
func (c *Config) StoreLocation() string {
	if c.Index.Store == storage.KindSQLite {
		return filepath.Join(c.Index.PersistDir, "coderag.db")
	}
	return c.Index.PersistDir
}

// CacheTTL returns the retrieval cache lifetime
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Retrieval.CacheTTLSecs) * time.Second
}

// SlogLevel returns the configured log level, defaulting to info
func (c *Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// EmbedderConfig converts the embedding section for embedder.New
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:  c.Embedding.Provider,
		APIKey:    c.Embedding.APIKey,
		Model:     c.Embedding.Model,
		BaseURL:   c.Embedding.BaseURL,
		Dimension: c.Embedding.Dimension,
		CacheSize: c.Embedding.CacheSize,
	}
}

// IndexerConfig converts the indexing section for Indexer.IndexRepository
func (c *Config) IndexerConfig() *indexer.Config {
	return &indexer.Config{
		Workers:         c.Indexing.Workers,
		BatchSize:       c.Indexing.BatchSize,
		MaxFileSize:     c.Indexing.MaxFileSize,
		CodeExtensions:  c.Indexing.CodeExtensions,
		DocExtensions:   c.Indexing.DocExtensions,
		SkipDirs:        c.Indexing.SkipDirs,
		DisableSemantic: c.Indexing.DisableSemantic,
	}
}

// GraphConfig converts the graph section for vectorindex
func (c *Config) GraphConfig() vectorindex.GraphConfig {
	return vectorindex.GraphConfig{
		M:              c.Index.Graph.M,
		EfConstruction: c.Index.Graph.EfConstruction,
		EfSearch:       c.Index.Graph.EfSearch,
	}
}

// String renders the configuration as YAML with the API key redacted
func (c *Config) String() string {
	out := *c
	if out.Embedding.APIKey != "" {
		out.Embedding.APIKey = "[REDACTED]"
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}
