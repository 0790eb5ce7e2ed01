package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/coderag/internal/storage"
	"github.com/dshills/coderag/pkg/types"
)

// OverFetchFactor is how many candidates per requested result are fetched
// from backends without predicate pushdown before filtering
const OverFetchFactor = 3

// Embedder computes vectors for fragment contents and queries
type Embedder interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// describer is implemented by embedders that can name their provider/model
type describer interface {
	Provider() string
	Model() string
}

// Options configures an Index
type Options struct {
	Name     string            // collection name
	Store    storage.BlobStore // persistence medium
	Embedder Embedder
	Backend  string // BackendFlat or BackendGraph; ignored when a snapshot exists
	Graph    GraphConfig
	Logger   *slog.Logger
}

// Stats describes a collection
type Stats struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Backend   string    `json:"backend"`
	ScoreKind string    `json:"score_kind"`
	Count     int       `json:"count"`
	Dimension int       `json:"dimension"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Index is an append-only, filterable nearest-neighbour store bound to one
// named collection. Queries share the read lock; Add and Delete hold the
// write lock while mutating and re-serializing. A second concurrent writer
// fails fast with types.ErrIndexingInProgress.
type Index struct {
	opts Options
	log  *slog.Logger

	writer sync.Mutex // single-writer discipline, taken with TryLock

	mu        sync.RWMutex
	header    snapshotHeader
	fragments []types.Fragment // id == position
	backend   Backend

	// generation increments on every change to the contents
	generation uint64
}

// Open binds to the named collection, loading its snapshot when one exists.
// A missing snapshot yields an empty collection; a corrupt or incompatible
// one is an error.
func Open(ctx context.Context, opts Options) (*Index, error) {
	if err := storage.ValidateName(opts.Name); err != nil {
		return nil, err
	}
	if opts.Store == nil {
		return nil, errors.New("vectorindex: store is required")
	}
	if opts.Embedder == nil {
		return nil, errors.New("vectorindex: embedder is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Backend == "" {
		opts.Backend = BackendFlat
	}
	if _, err := NewBackend(opts.Backend, opts.Graph); err != nil {
		return nil, err
	}

	idx := &Index{opts: opts, log: opts.Logger}
	if err := idx.load(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

// load replaces the in-memory state with the persisted snapshot.
// Callers hold mu for writing (or have exclusive access).
func (i *Index) load(ctx context.Context) error {
	blob, err := i.opts.Store.Load(ctx, i.opts.Name)
	if errors.Is(err, storage.ErrNotFound) {
		i.reset()
		i.log.Info("created empty collection",
			"collection", i.opts.Name,
			"id", i.header.ID,
			"backend", i.header.Backend)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load collection %s: %w", i.opts.Name, err)
	}

	h, fragments, backend, err := decodeSnapshot(blob, i.opts.Graph)
	if err != nil {
		return fmt.Errorf("collection %s: %w", i.opts.Name, err)
	}
	if h.Backend != i.opts.Backend {
		i.log.Warn("snapshot backend overrides configured backend",
			"collection", i.opts.Name,
			"snapshot", h.Backend,
			"configured", i.opts.Backend)
	}
	if d, ok := i.opts.Embedder.(describer); ok && h.Provider != "" &&
		(d.Provider() != h.Provider || d.Model() != h.Model) {
		i.log.Warn("collection was built with a different embedding model",
			"collection", i.opts.Name,
			"built_with", h.Provider+"/"+h.Model,
			"current", d.Provider()+"/"+d.Model())
	}

	i.header = h
	i.fragments = fragments
	i.backend = backend
	i.generation++
	i.log.Info("loaded collection",
		"collection", h.Name,
		"id", h.ID,
		"entries", len(fragments),
		"backend", h.Backend)
	return nil
}

// reset starts a fresh collection with a new identity
func (i *Index) reset() {
	backend, _ := NewBackend(i.opts.Backend, i.opts.Graph)
	now := time.Now().UTC().Round(0)
	i.header = snapshotHeader{
		Format:    FormatVersion,
		ID:        uuid.NewString(),
		Name:      i.opts.Name,
		Backend:   backend.Name(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	i.fragments = nil
	i.backend = backend
	i.generation++
}

// Add embeds each fragment's content and appends the pairs, then rewrites
// the whole snapshot. Duplicates are appended, not merged. Embedding runs
// before the write lock is taken so queries keep working meanwhile.
func (i *Index) Add(ctx context.Context, fragments []types.Fragment) error {
	if len(fragments) == 0 {
		return nil
	}
	for n := range fragments {
		if err := fragments[n].Validate(); err != nil {
			return fmt.Errorf("fragment %d (%s): %w", n, fragments[n].Metadata.FilePath, err)
		}
	}

	if !i.writer.TryLock() {
		return types.ErrIndexingInProgress
	}
	defer i.writer.Unlock()

	texts := make([]string, len(fragments))
	for n := range fragments {
		texts[n] = fragments[n].Content
	}
	start := time.Now()
	vectors, err := i.opts.Embedder.EmbedMany(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed fragments: %w", err)
	}
	if len(vectors) != len(fragments) {
		return fmt.Errorf("embedder returned %d vectors for %d fragments", len(vectors), len(fragments))
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if _, err := checkDimensions(i.backend.Dimension(), vectors); err != nil {
		return err
	}

	prev, err := i.takeCheckpoint()
	if err != nil {
		return err
	}

	owned := make([]types.Fragment, len(fragments))
	for n := range fragments {
		owned[n] = types.Fragment{Content: fragments[n].Content, Metadata: fragments[n].Metadata.Clone()}
	}
	if err := i.backend.Add(vectors); err != nil {
		i.rollback(prev)
		return err
	}
	i.fragments = append(i.fragments, owned...)

	if err := i.save(ctx); err != nil {
		i.rollback(prev)
		return err
	}
	i.generation++

	i.log.Info("added fragments",
		"collection", i.opts.Name,
		"added", len(fragments),
		"entries", len(i.fragments),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// checkpoint is the in-memory state before an Add
type checkpoint struct {
	header  snapshotHeader
	count   int
	vectors [][]float32
	state   []byte
	backend string
}

// takeCheckpoint records the current state. Callers hold mu for writing.
func (i *Index) takeCheckpoint() (checkpoint, error) {
	state, err := i.backend.MarshalState()
	if err != nil {
		return checkpoint{}, err
	}
	vectors := make([][]float32, len(i.fragments))
	for id := range vectors {
		vectors[id] = i.backend.Vector(id)
	}
	return checkpoint{
		header:  i.header,
		count:   len(i.fragments),
		vectors: vectors,
		state:   state,
		backend: i.backend.Name(),
	}, nil
}

// rollback restores a checkpoint so memory matches what was last persisted.
// The collection keeps its identity. Callers hold mu for writing.
func (i *Index) rollback(c checkpoint) {
	i.header = c.header
	i.fragments = i.fragments[:c.count]

	backend, err := NewBackend(c.backend, i.opts.Graph)
	if err == nil {
		err = backend.Restore(c.vectors, c.state)
	}
	if err != nil {
		i.log.Error("failed to restore collection after write error",
			"collection", i.opts.Name,
			"error", err)
		return
	}
	i.backend = backend
}

// save re-serializes the full collection. Callers hold mu for writing.
func (i *Index) save(ctx context.Context) error {
	h := i.header
	h.Dimension = i.backend.Dimension()
	h.Count = len(i.fragments)
	h.UpdatedAt = time.Now().UTC().Round(0)
	if d, ok := i.opts.Embedder.(describer); ok {
		h.Provider = d.Provider()
		h.Model = d.Model()
	}

	blob, err := encodeSnapshot(h, i.fragments, i.backend)
	if err != nil {
		return err
	}
	if err := i.opts.Store.Save(ctx, i.opts.Name, blob); err != nil {
		return fmt.Errorf("failed to persist collection %s: %w", i.opts.Name, err)
	}
	i.header = h
	return nil
}

// Search returns up to k fragments most similar to query that match filter
func (i *Index) Search(ctx context.Context, query string, k int, filter types.Filter) ([]types.Fragment, error) {
	scored, err := i.SearchWithScore(ctx, query, k, filter)
	if err != nil {
		return nil, err
	}
	return types.Fragments(scored), nil
}

// SearchWithScore is Search with backend-native scores attached. The score
// semantics depend on the backend (see ScoreKind): cosine similarity for
// flat, squared L2 distance for graph. Scores from different backends are
// not comparable.
//
// With a filter, backends with pushdown filter while scanning; others
// over-fetch k*OverFetchFactor candidates and filter those, so fewer than k
// results may come back even when more matches exist.
func (i *Index) SearchWithScore(ctx context.Context, query string, k int, filter types.Filter) ([]types.ScoredFragment, error) {
	if k <= 0 || i.Len() == 0 {
		return nil, nil
	}

	vec, err := i.opts.Embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	if len(i.fragments) == 0 {
		return nil, nil
	}
	if len(vec) != i.backend.Dimension() {
		return nil, fmt.Errorf("%w: query has dimension %d, collection %s has %d",
			types.ErrIncompatibleIndex, len(vec), i.opts.Name, i.backend.Dimension())
	}

	var hits []Hit
	switch {
	case filter.Empty():
		hits = i.backend.Search(vec, k, nil)
	case i.backend.SupportsPushdown():
		hits = i.backend.Search(vec, k, func(id int) bool {
			return filter.Match(&i.fragments[id].Metadata)
		})
	default:
		candidates := i.backend.Search(vec, k*OverFetchFactor, nil)
		hits = make([]Hit, 0, k)
		for _, h := range candidates {
			if filter.Match(&i.fragments[h.ID].Metadata) {
				hits = append(hits, h)
				if len(hits) == k {
					break
				}
			}
		}
	}

	out := make([]types.ScoredFragment, len(hits))
	for n, h := range hits {
		out[n] = types.ScoredFragment{Fragment: i.fragmentCopy(h.ID), Score: h.Score}
	}

	i.log.Debug("search",
		"collection", i.opts.Name,
		"k", k,
		"filter", filter.String(),
		"results", len(out))
	return out, nil
}

// Lookup returns every fragment matching filter in insertion order without
// computing an embedding
func (i *Index) Lookup(filter types.Filter) []types.Fragment {
	i.mu.RLock()
	defer i.mu.RUnlock()

	var out []types.Fragment
	for id := range i.fragments {
		if filter.Match(&i.fragments[id].Metadata) {
			out = append(out, i.fragmentCopy(id))
		}
	}
	return out
}

// All returns every fragment in insertion order
func (i *Index) All() []types.Fragment {
	return i.Lookup(nil)
}

// Len returns the number of entries
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.fragments)
}

// Generation changes whenever entries are added, deleted or reloaded
func (i *Index) Generation() uint64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.generation
}

// ScoreKind reports how SearchWithScore scores order
func (i *Index) ScoreKind() types.ScoreKind {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.backend.ScoreKind()
}

// Stats returns the collection identity and size
func (i *Index) Stats() Stats {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return Stats{
		ID:        i.header.ID,
		Name:      i.header.Name,
		Backend:   i.backend.Name(),
		ScoreKind: i.backend.ScoreKind().String(),
		Count:     len(i.fragments),
		Dimension: i.backend.Dimension(),
		Provider:  i.header.Provider,
		Model:     i.header.Model,
		CreatedAt: i.header.CreatedAt,
		UpdatedAt: i.header.UpdatedAt,
	}
}

// Delete removes the persisted snapshot and empties the collection. The
// index stays usable as a fresh collection with a new identity.
func (i *Index) Delete(ctx context.Context) error {
	if !i.writer.TryLock() {
		return types.ErrIndexingInProgress
	}
	defer i.writer.Unlock()

	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.opts.Store.Delete(ctx, i.opts.Name); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", i.opts.Name, err)
	}
	old := i.header.ID
	i.reset()
	i.log.Info("deleted collection",
		"collection", i.opts.Name,
		"id", old)
	return nil
}

func (i *Index) fragmentCopy(id int) types.Fragment {
	f := i.fragments[id]
	return types.Fragment{Content: f.Content, Metadata: f.Metadata.Clone()}
}
