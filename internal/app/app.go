// Package app wires configuration into a ready-to-use retrieval context: one
// store, one embedder and one collection, shared by the indexer and the
// retriever.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dshills/coderag/internal/chunker"
	"github.com/dshills/coderag/internal/config"
	"github.com/dshills/coderag/internal/embedder"
	"github.com/dshills/coderag/internal/indexer"
	"github.com/dshills/coderag/internal/parser"
	"github.com/dshills/coderag/internal/retriever"
	"github.com/dshills/coderag/internal/storage"
	"github.com/dshills/coderag/internal/vectorindex"
	"github.com/dshills/coderag/pkg/types"
)

// Options overrides components New would otherwise build from the config.
// Overridden components are still closed by App.Close.
type Options struct {
	Store    storage.BlobStore
	Embedder embedder.Embedder
	Logger   *slog.Logger
}

// App owns the store, embedder and index; the retriever and indexer borrow
// the index
type App struct {
	cfg       *config.Config
	store     storage.BlobStore
	emb       embedder.Embedder
	index     *vectorindex.Index
	retriever *retriever.Retriever
	indexer   *indexer.Indexer
	log       *slog.Logger
}

// New validates cfg and opens the configured collection
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	a := &App{cfg: cfg, store: opts.Store, emb: opts.Embedder, log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.store == nil {
		if a.store, err = storage.Open(cfg.Index.Store, cfg.StoreLocation()); err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
	}
	if a.emb == nil {
		if a.emb, err = embedder.New(cfg.EmbedderConfig()); err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
	}

	a.index, err = vectorindex.Open(ctx, vectorindex.Options{
		Name:     cfg.Index.Collection,
		Store:    a.store,
		Embedder: embedder.NewService(a.emb, cfg.Embedding.BatchSize, log),
		Backend:  cfg.Index.Backend,
		Graph:    cfg.GraphConfig(),
		Logger:   log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", cfg.Index.Collection, err)
	}

	ch, err := chunker.New(chunker.Config{
		ChunkSize:    cfg.Chunking.ChunkSize,
		ChunkOverlap: cfg.Chunking.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}

	a.retriever = retriever.New(a.index, retriever.Options{
		CacheSize: cfg.Retrieval.CacheSize,
		CacheTTL:  cfg.CacheTTL(),
		Logger:    log,
	})
	a.indexer = indexer.New(a.index, ch, parser.New(), log)

	stats := a.index.Stats()
	log.Info("collection ready",
		"collection", stats.Name,
		"entries", stats.Count,
		"backend", stats.Backend,
		"provider", a.emb.Provider())
	return a, nil
}

// Config returns the configuration the app was built from
func (a *App) Config() *config.Config { return a.cfg }

// Index returns the owned collection
func (a *App) Index() *vectorindex.Index { return a.index }

// Retriever returns the retriever bound to the collection
func (a *App) Retriever() *retriever.Retriever { return a.retriever }

// Indexer returns the indexer bound to the collection
func (a *App) Indexer() *indexer.Indexer { return a.indexer }

// IndexRepository indexes root into the collection using the configured
// indexing settings
func (a *App) IndexRepository(ctx context.Context, root string) (*indexer.Statistics, error) {
	return a.indexer.IndexRepository(ctx, root, a.cfg.IndexerConfig())
}

// Retrieve runs a query with the configured default k when k is not positive.
// strategy may be empty for automatic selection.
func (a *App) Retrieve(ctx context.Context, query string, k int, strategy string) (*types.RetrievalResult, error) {
	if k <= 0 {
		k = a.cfg.Retrieval.TopK
	}
	var override *types.Strategy
	if strategy != "" {
		s, err := types.ParseStrategy(strategy)
		if err != nil {
			return nil, err
		}
		override = &s
	}
	return a.retriever.Retrieve(ctx, query, k, override)
}

// KeywordSearch reorders semantic candidates by how many query terms they
// contain. The scores are term counts.
func (a *App) KeywordSearch(ctx context.Context, query string, k int) ([]types.ScoredFragment, error) {
	if strings.TrimSpace(query) == "" {
		return nil, retriever.ErrEmptyQuery
	}
	if k <= 0 {
		k = a.cfg.Retrieval.TopK
	}
	return a.index.KeywordSearch(ctx, query, k, nil)
}

// windowKey identifies a fragment across chunk types
type windowKey struct {
	path      string
	chunkType types.ChunkType
	index     int
}

func keyOf(f *types.Fragment) windowKey {
	return windowKey{f.Metadata.FilePath, f.Metadata.ChunkType, f.Metadata.ChunkIndex}
}

// Expand returns the configured context window around each fragment, with
// neighbours already emitted for an earlier result skipped. A window is never
// empty: it holds at least its own fragment.
func (a *App) Expand(frags []types.Fragment) [][]types.Fragment {
	seen := make(map[windowKey]bool)
	out := make([][]types.Fragment, 0, len(frags))
	for _, f := range frags {
		var window []types.Fragment
		for _, n := range a.retriever.ContextWindow(f, a.cfg.Retrieval.ContextWindow) {
			key := keyOf(&n)
			if seen[key] && key != keyOf(&f) {
				continue
			}
			seen[key] = true
			window = append(window, n)
		}
		if len(window) == 0 {
			window = []types.Fragment{f}
		}
		out = append(out, window)
	}
	return out
}

// Stats describes the collection
func (a *App) Stats() vectorindex.Stats {
	return a.index.Stats()
}

// DeleteCollection removes the persisted collection and empties the index
func (a *App) DeleteCollection(ctx context.Context) error {
	if err := a.index.Delete(ctx); err != nil {
		return err
	}
	a.retriever.InvalidateCache()
	return nil
}

// Close releases the embedder and the store
func (a *App) Close() error {
	var errs []error
	if a.emb != nil {
		errs = append(errs, a.emb.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
