package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dshills/coderag/pkg/types"
)

const (
	// DefaultK is used when a caller asks for a non-positive result count
	DefaultK = 5
	// MaxK caps the result count
	MaxK = 100
	// DefaultCacheTTL bounds how long a cached result is served
	DefaultCacheTTL = time.Hour
)

// ErrEmptyQuery is returned for blank queries
var ErrEmptyQuery = errors.New("query cannot be empty")

// Re-ranking bonuses applied on the code_search path
const (
	bonusFunctionName = 0.2
	bonusClassName    = 0.2
	bonusLanguage     = 0.1
	bonusDocstring    = 0.05
)

// call-like tokens: identifier.identifier or identifier()
var apiTokenPattern = regexp.MustCompile(`\b\w+\.\w+\b|\b\w+\(\)`)

// Searcher is the part of the vector index the retriever borrows
type Searcher interface {
	SearchWithScore(ctx context.Context, query string, k int, filter types.Filter) ([]types.ScoredFragment, error)
	Lookup(filter types.Filter) []types.Fragment
	ScoreKind() types.ScoreKind
	// Generation changes whenever the index contents change
	Generation() uint64
}

// Options configures a Retriever
type Options struct {
	CacheSize int // 0 disables result caching
	CacheTTL  time.Duration
	Logger    *slog.Logger
}

// Retriever runs the retrieval path chosen for each query. It borrows the
// index and never closes it.
type Retriever struct {
	index Searcher
	cache *resultCache
	log   *slog.Logger
}

// New creates a Retriever over index
func New(index Searcher, opts Options) *Retriever {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Retriever{
		index: index,
		cache: newResultCache(opts.CacheSize, opts.CacheTTL),
		log:   opts.Logger,
	}
}

// Retrieve returns up to k fragments for query, highest relevance first.
// override, when non-nil, replaces the selected strategy.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, override *types.Strategy) (*types.RetrievalResult, error) {
	return r.RetrieveWithFilter(ctx, query, k, override, nil)
}

// RetrieveWithFilter is Retrieve with a caller-supplied base filter. The
// filter is applied to every index query; paths that filter on chunk_type
// override that key.
//
// An empty or missing index yields an empty result, not an error. Embedding
// failures and incompatible-index errors propagate.
func (r *Retriever) RetrieveWithFilter(ctx context.Context, query string, k int, override *types.Strategy, base types.Filter) (*types.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	k = clampK(k)

	strategy := Select(query)
	if override != nil {
		if _, err := types.ParseStrategy(override.String()); err != nil {
			return nil, err
		}
		strategy = *override
	}
	if r.index == nil {
		return &types.RetrievalResult{Strategy: strategy}, nil
	}

	var key [32]byte
	if r.cache != nil {
		key = cacheKey(r.index.Generation(), query, k, strategy, base)
		if cached, ok := r.cache.get(key); ok {
			r.log.Debug("retrieve", "strategy", strategy.String(), "k", k, "results", cached.Len(), "cache_hit", true)
			return cached, nil
		}
	}

	start := time.Now()
	enhanced := Enhance(query)

	var (
		result *types.RetrievalResult
		err    error
	)
	switch strategy {
	case types.StrategyCodeSearch:
		result, err = r.codeSearch(ctx, query, enhanced, k, base)
	case types.StrategyAPISearch:
		result, err = r.apiSearch(ctx, query, enhanced, k, base)
	case types.StrategyHybrid:
		result, err = r.hybridSearch(ctx, enhanced, k, base)
	default:
		result, err = r.generalSearch(ctx, enhanced, k, base)
	}
	if err != nil {
		return nil, fmt.Errorf("%s retrieval: %w", strategy, err)
	}
	result.Strategy = strategy

	r.log.Debug("retrieve",
		"strategy", strategy.String(),
		"k", k,
		"results", result.Len(),
		"duration_ms", time.Since(start).Milliseconds())

	if r.cache != nil {
		r.cache.put(key, result)
	}
	return result, nil
}

func clampK(k int) int {
	if k <= 0 {
		return DefaultK
	}
	if k > MaxK {
		return MaxK
	}
	return k
}

func (r *Retriever) search(ctx context.Context, query string, k int, filter types.Filter) ([]types.Fragment, error) {
	scored, err := r.index.SearchWithScore(ctx, query, k, filter)
	if err != nil {
		return nil, err
	}
	return types.Fragments(scored), nil
}

// codeSearch fetches 2k code fragments, re-ranks them against the raw query
// and keeps k. Backend scores are converted to relevance first so distance
// backends rank the same way as similarity backends.
func (r *Retriever) codeSearch(ctx context.Context, query, enhanced string, k int, base types.Filter) (*types.RetrievalResult, error) {
	scored, err := r.index.SearchWithScore(ctx, enhanced, k*2, base.WithChunkType(types.ChunkCode))
	if err != nil {
		return nil, err
	}
	kind := r.index.ScoreKind()
	for i := range scored {
		scored[i].Score = kind.Relevance(scored[i].Score)
	}

	ranked := Rerank(scored, query)
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	result := &types.RetrievalResult{
		Fragments: types.Fragments(ranked),
		Scores:    make([]float64, len(ranked)),
	}
	for i := range ranked {
		result.Scores[i] = ranked[i].Score
	}
	return result, nil
}

// apiSearch runs one k/2 query per call-like token plus one query at k,
// then keeps the first occurrence of each (file_path, chunk_index)
func (r *Retriever) apiSearch(ctx context.Context, query, enhanced string, k int, base types.Filter) (*types.RetrievalResult, error) {
	var candidates []types.Fragment

	if half := k / 2; half > 0 {
		for _, token := range apiTokens(query) {
			frags, err := r.search(ctx, token, half, base)
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, frags...)
		}
	}

	frags, err := r.search(ctx, enhanced, k, base)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, frags...)

	return &types.RetrievalResult{Fragments: dedupe(candidates, k)}, nil
}

// hybridSearch interleaves k/2 code and k/2 documentation fragments, code
// first
func (r *Retriever) hybridSearch(ctx context.Context, enhanced string, k int, base types.Filter) (*types.RetrievalResult, error) {
	half := k / 2
	if half == 0 {
		return &types.RetrievalResult{}, nil
	}

	code, err := r.search(ctx, enhanced, half, base.WithChunkType(types.ChunkCode))
	if err != nil {
		return nil, err
	}
	docs, err := r.search(ctx, enhanced, half, base.WithChunkType(types.ChunkDocumentation))
	if err != nil {
		return nil, err
	}

	return &types.RetrievalResult{Fragments: interleave(code, docs, k)}, nil
}

func (r *Retriever) generalSearch(ctx context.Context, enhanced string, k int, base types.Filter) (*types.RetrievalResult, error) {
	frags, err := r.search(ctx, enhanced, k, base)
	if err != nil {
		return nil, err
	}
	return &types.RetrievalResult{Fragments: frags}, nil
}

// apiTokens returns the distinct call-like tokens in query order
func apiTokens(query string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range apiTokenPattern.FindAllString(query, -1) {
		if !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}

// dedupe keeps the first fragment per key, up to limit
func dedupe(frags []types.Fragment, limit int) []types.Fragment {
	seen := make(map[types.FragmentKey]bool, len(frags))
	out := make([]types.Fragment, 0, limit)
	for i := range frags {
		key := frags[i].Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, frags[i])
		if len(out) == limit {
			break
		}
	}
	return out
}

func interleave(a, b []types.Fragment, limit int) []types.Fragment {
	out := make([]types.Fragment, 0, limit)
	for i := 0; len(out) < limit && (i < len(a) || i < len(b)); i++ {
		if i < len(a) {
			out = append(out, a[i])
		}
		if i < len(b) && len(out) < limit {
			out = append(out, b[i])
		}
	}
	return out
}

// Rerank adds metadata bonuses to higher-is-better base scores and sorts
// descending. Ties keep their input order. The input is not modified.
func Rerank(scored []types.ScoredFragment, query string) []types.ScoredFragment {
	q := strings.ToLower(query)
	out := make([]types.ScoredFragment, len(scored))
	copy(out, scored)

	for i := range out {
		m := &out[i].Fragment.Metadata
		bonus := 0.0
		if m.FunctionName != "" && strings.Contains(q, strings.ToLower(m.FunctionName)) {
			bonus += bonusFunctionName
		}
		if m.ClassName != "" && strings.Contains(q, strings.ToLower(m.ClassName)) {
			bonus += bonusClassName
		}
		if m.Language != "" && strings.Contains(q, strings.ToLower(m.Language)) {
			bonus += bonusLanguage
		}
		if m.Docstring != "" {
			bonus += bonusDocstring
		}
		out[i].Score += bonus
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// ContextWindow returns the fragments within windowSize positions of f in
// the same file and chunk type, in chunk order, f included. Missing
// neighbours are skipped; when nothing is found f is returned alone.
func (r *Retriever) ContextWindow(f types.Fragment, windowSize int) []types.Fragment {
	if r.index == nil || f.Metadata.FilePath == "" {
		return []types.Fragment{f}
	}
	if windowSize < 0 {
		windowSize = 0
	}

	base := types.Filter{types.KeyFilePath: f.Metadata.FilePath}.WithChunkType(f.Metadata.ChunkType)
	first := f.Metadata.ChunkIndex - windowSize
	if first < 0 {
		first = 0
	}

	var out []types.Fragment
	for i := first; i <= f.Metadata.ChunkIndex+windowSize; i++ {
		if found := r.index.Lookup(base.WithChunkIndex(i)); len(found) > 0 {
			out = append(out, found[0])
		}
	}
	if len(out) == 0 {
		return []types.Fragment{f}
	}
	return out
}

// InvalidateCache drops every cached result
func (r *Retriever) InvalidateCache() {
	if r.cache != nil {
		r.cache.purge()
	}
}
