package retriever

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/coderag/internal/storage"
	"github.com/dshills/coderag/internal/vectorindex"
	"github.com/dshills/coderag/pkg/types"
)

var _ Searcher = (*vectorindex.Index)(nil)

type searchCall struct {
	query  string
	k      int
	filter types.Filter
}

// fakeIndex returns its fragments in a fixed ranked order for every query
type fakeIndex struct {
	frags  []types.Fragment
	scores []float64 // parallel to frags; defaults to 1 - 0.01*rank
	kind   types.ScoreKind
	err    error
	gen    uint64

	mu    sync.Mutex
	calls []searchCall
}

func (f *fakeIndex) SearchWithScore(_ context.Context, query string, k int, filter types.Filter) ([]types.ScoredFragment, error) {
	f.mu.Lock()
	f.calls = append(f.calls, searchCall{query: query, k: k, filter: filter})
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	var out []types.ScoredFragment
	for i := range f.frags {
		if len(out) == k {
			break
		}
		if !filter.Match(&f.frags[i].Metadata) {
			continue
		}
		score := 1 - 0.01*float64(i)
		if f.scores != nil {
			score = f.scores[i]
		}
		out = append(out, types.ScoredFragment{Fragment: f.frags[i], Score: score})
	}
	return out, nil
}

func (f *fakeIndex) Lookup(filter types.Filter) []types.Fragment {
	var out []types.Fragment
	for i := range f.frags {
		if filter.Match(&f.frags[i].Metadata) {
			out = append(out, f.frags[i])
		}
	}
	return out
}

func (f *fakeIndex) ScoreKind() types.ScoreKind { return f.kind }
func (f *fakeIndex) Generation() uint64         { return f.gen }

func (f *fakeIndex) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func frag(path string, ct types.ChunkType, idx int, content string) types.Fragment {
	return types.Fragment{
		Content: content,
		Metadata: types.Metadata{
			FilePath:    path,
			Language:    "python",
			ChunkType:   ct,
			ChunkIndex:  idx,
			TotalChunks: 10,
		},
	}
}

func contents(frags []types.Fragment) []string {
	out := make([]string, len(frags))
	for i, f := range frags {
		out[i] = f.Content
	}
	return out
}

func strategyPtr(s types.Strategy) *types.Strategy { return &s }

func TestRerank(t *testing.T) {
	plain := frag("a.py", types.ChunkCode, 0, "plain")
	named := frag("a.py", types.ChunkCode, 1, "named")
	named.Metadata.FunctionName = "Parse_Config"

	t.Run("function name match sorts first", func(t *testing.T) {
		in := []types.ScoredFragment{{Fragment: plain, Score: 0.5}, {Fragment: named, Score: 0.5}}
		got := Rerank(in, "where is parse_config defined")

		assert.Equal(t, "named", got[0].Fragment.Content)
		assert.InDelta(t, 0.7, got[0].Score, 1e-9)
		assert.Equal(t, "plain", in[0].Fragment.Content, "input untouched")
		assert.Equal(t, 0.5, in[1].Score)
	})

	t.Run("ties keep original order", func(t *testing.T) {
		a := frag("a.py", types.ChunkCode, 0, "a")
		b := frag("b.py", types.ChunkCode, 0, "b")
		c := frag("c.py", types.ChunkCode, 0, "c")
		got := Rerank([]types.ScoredFragment{{Fragment: a, Score: 1}, {Fragment: b, Score: 1}, {Fragment: c, Score: 1}}, "xyz")
		assert.Equal(t, []string{"a", "b", "c"}, contents(types.Fragments(got)))
	})

	t.Run("bonus values", func(t *testing.T) {
		f := frag("a.py", types.ChunkClass, 0, "x")
		f.Metadata.ClassName = "Loader"
		f.Metadata.Docstring = "Loads things."
		got := Rerank([]types.ScoredFragment{{Fragment: f, Score: 0}}, "python Loader")
		assert.InDelta(t, 0.2+0.1+0.05, got[0].Score, 1e-9)
	})
}

func TestRetrieve_CodeSearch(t *testing.T) {
	loader := frag("load.py", types.ChunkCode, 2, "c2")
	loader.Metadata.FunctionName = "loader"
	idx := &fakeIndex{
		frags: []types.Fragment{
			frag("doc.md", types.ChunkDocumentation, 0, "d0"),
			frag("a.py", types.ChunkCode, 0, "c0"),
			frag("a.py", types.ChunkCode, 1, "c1"),
			loader,
		},
		scores: []float64{0.95, 0.9, 0.85, 0.8},
	}
	r := New(idx, Options{})

	got, err := r.Retrieve(context.Background(), "implement function loader", 2, nil)
	require.NoError(t, err)

	assert.Equal(t, types.StrategyCodeSearch, got.Strategy)
	assert.Equal(t, []string{"c2", "c0"}, contents(got.Fragments))
	require.Len(t, got.Scores, 2)
	assert.InDelta(t, 1.0, got.Scores[0], 1e-9)
	assert.InDelta(t, 0.9, got.Scores[1], 1e-9)

	require.Len(t, idx.calls, 1)
	assert.Equal(t, 4, idx.calls[0].k)
	assert.Equal(t, types.Filter{types.KeyChunkType: "code"}, idx.calls[0].filter)
	assert.True(t, strings.HasPrefix(idx.calls[0].query, "implement function loader "), "query is enhanced")
}

func TestRetrieve_CodeSearchConvertsDistances(t *testing.T) {
	idx := &fakeIndex{
		frags: []types.Fragment{
			frag("a.py", types.ChunkCode, 0, "near"),
			frag("a.py", types.ChunkCode, 1, "far"),
		},
		scores: []float64{0, 3},
		kind:   types.ScoreDistance,
	}
	got, err := New(idx, Options{}).Retrieve(context.Background(), "code sample", 2, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"near", "far"}, contents(got.Fragments))
	assert.InDelta(t, 1.0, got.Scores[0], 1e-9)
	assert.InDelta(t, 0.25, got.Scores[1], 1e-9)
}

func TestRetrieve_APISearchDeduplicates(t *testing.T) {
	semantic := frag("client.py", types.ChunkFunction, 0, "get function")
	idx := &fakeIndex{
		frags: []types.Fragment{
			frag("client.py", types.ChunkCode, 0, "f0"),
			semantic, // same (file_path, chunk_index) as f0
			frag("client.py", types.ChunkCode, 1, "f1"),
			frag("server.py", types.ChunkCode, 0, "f2"),
			frag("server.py", types.ChunkCode, 1, "f3"),
			frag("server.py", types.ChunkCode, 2, "f4"),
		},
	}
	r := New(idx, Options{})

	got, err := r.Retrieve(context.Background(), "what does client.get return for a request to fetch()", 4, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StrategyAPISearch, got.Strategy)
	// the general query's four hits collapse to three distinct keys
	assert.Equal(t, []string{"f0", "f1", "f2"}, contents(got.Fragments))

	seen := make(map[types.FragmentKey]bool)
	for i := range got.Fragments {
		key := got.Fragments[i].Key()
		assert.False(t, seen[key], "duplicate %v", key)
		seen[key] = true
	}

	require.Len(t, idx.calls, 3)
	assert.Equal(t, searchCall{query: "client.get", k: 2, filter: nil}, idx.calls[0])
	assert.Equal(t, "fetch()", idx.calls[1].query)
	assert.Equal(t, 2, idx.calls[1].k)
	assert.Equal(t, 4, idx.calls[2].k)
}

func TestRetrieve_APISearchSkipsTokenQueriesForSmallK(t *testing.T) {
	idx := &fakeIndex{frags: []types.Fragment{frag("a.py", types.ChunkCode, 0, "f0")}}
	got, err := New(idx, Options{}).Retrieve(context.Background(), "endpoint for user.save", 1, nil)
	require.NoError(t, err)

	assert.Len(t, got.Fragments, 1)
	require.Len(t, idx.calls, 1, "k/2 == 0 skips token queries")
	assert.Equal(t, 1, idx.calls[0].k)
}

func TestRetrieve_HybridInterleave(t *testing.T) {
	idx := &fakeIndex{
		frags: []types.Fragment{
			frag("README.md", types.ChunkDocumentation, 0, "doc0"),
			frag("a.py", types.ChunkCode, 0, "code0"),
			frag("README.md", types.ChunkDocumentation, 1, "doc1"),
			frag("README.md", types.ChunkDocumentation, 2, "doc2"),
			frag("a.py", types.ChunkCode, 1, "code1"),
			frag("a.py", types.ChunkCode, 2, "code2"),
			frag("README.md", types.ChunkDocumentation, 3, "doc3"),
			frag("README.md", types.ChunkDocumentation, 4, "doc4"),
		},
	}
	r := New(idx, Options{})
	ctx := context.Background()

	got, err := r.Retrieve(ctx, "how to configure logging", 4, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StrategyHybrid, got.Strategy)
	assert.Equal(t, []string{"code0", "doc0", "code1", "doc1"}, contents(got.Fragments))
	assert.Nil(t, got.Scores)

	got, err = r.Retrieve(ctx, "how to configure logging", 1, nil)
	require.NoError(t, err)
	assert.True(t, got.Empty(), "k/2 == 0 issues no queries")
}

func TestRetrieve_HybridUnevenLists(t *testing.T) {
	idx := &fakeIndex{
		frags: []types.Fragment{
			frag("a.py", types.ChunkCode, 0, "code0"),
			frag("README.md", types.ChunkDocumentation, 0, "doc0"),
			frag("README.md", types.ChunkDocumentation, 1, "doc1"),
			frag("README.md", types.ChunkDocumentation, 2, "doc2"),
			frag("README.md", types.ChunkDocumentation, 3, "doc3"),
		},
	}
	got, err := New(idx, Options{}).Retrieve(context.Background(), "explain setup", 6, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"code0", "doc0", "doc1", "doc2"}, contents(got.Fragments))
}

func TestRetrieve_General(t *testing.T) {
	idx := &fakeIndex{frags: []types.Fragment{
		frag("a.py", types.ChunkCode, 0, "f0"),
		frag("b.md", types.ChunkDocumentation, 0, "f1"),
	}}
	got, err := New(idx, Options{}).Retrieve(context.Background(), "xyz unrelated", 0, nil)
	require.NoError(t, err)

	assert.Equal(t, types.StrategyGeneral, got.Strategy)
	assert.Equal(t, []string{"f0", "f1"}, contents(got.Fragments))
	require.Len(t, idx.calls, 1)
	assert.Equal(t, DefaultK, idx.calls[0].k)
	assert.True(t, idx.calls[0].filter.Empty())
}

func TestRetrieve_Override(t *testing.T) {
	idx := &fakeIndex{}
	r := New(idx, Options{})
	ctx := context.Background()

	got, err := r.Retrieve(ctx, "xyz unrelated", 4, strategyPtr(types.StrategyHybrid))
	require.NoError(t, err)
	assert.Equal(t, types.StrategyHybrid, got.Strategy)
	assert.Len(t, idx.calls, 2)

	_, err = r.Retrieve(ctx, "xyz", 4, strategyPtr(types.Strategy(42)))
	assert.ErrorIs(t, err, types.ErrInvalidStrategy)
}

func TestRetrieve_EmptyAndErrors(t *testing.T) {
	ctx := context.Background()

	_, err := New(&fakeIndex{}, Options{}).Retrieve(ctx, "   ", 5, nil)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	got, err := New(nil, Options{}).Retrieve(ctx, "anything", 5, nil)
	require.NoError(t, err)
	assert.True(t, got.Empty())

	got, err = New(&fakeIndex{}, Options{}).Retrieve(ctx, "implement function", 5, nil)
	require.NoError(t, err)
	assert.True(t, got.Empty(), "empty index is no match, not an error")

	failing := &fakeIndex{err: fmt.Errorf("collection x: %w", types.ErrIncompatibleIndex)}
	for _, q := range []string{"implement function", "api user.save", "how to", "xyz"} {
		_, err = New(failing, Options{}).Retrieve(ctx, q, 4, nil)
		assert.ErrorIs(t, err, types.ErrIncompatibleIndex, q)
	}
}

func TestRetrieveWithFilter(t *testing.T) {
	idx := &fakeIndex{frags: []types.Fragment{frag("a.py", types.ChunkCode, 0, "f0")}}
	r := New(idx, Options{})
	base := types.Filter{types.KeyLanguage: "python"}

	_, err := r.RetrieveWithFilter(context.Background(), "how to run", 4, nil, base)
	require.NoError(t, err)

	require.Len(t, idx.calls, 2)
	assert.Equal(t, types.Filter{types.KeyLanguage: "python", types.KeyChunkType: "code"}, idx.calls[0].filter)
	assert.Equal(t, types.Filter{types.KeyLanguage: "python", types.KeyChunkType: "documentation"}, idx.calls[1].filter)
	assert.Equal(t, types.Filter{types.KeyLanguage: "python"}, base, "base filter untouched")
}

func TestRetrieve_Cache(t *testing.T) {
	idx := &fakeIndex{frags: []types.Fragment{frag("a.py", types.ChunkCode, 0, "f0")}}
	r := New(idx, Options{CacheSize: 10})
	ctx := context.Background()

	first, err := r.Retrieve(ctx, "xyz", 3, nil)
	require.NoError(t, err)
	first.Fragments[0].Content = "mutated"

	second, err := r.Retrieve(ctx, "xyz", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.callCount(), "served from cache")
	assert.Equal(t, "f0", second.Fragments[0].Content)

	_, err = r.Retrieve(ctx, "xyz", 4, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.callCount(), "k is part of the key")

	idx.gen++
	_, err = r.Retrieve(ctx, "xyz", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.callCount(), "index changes invalidate")

	r.InvalidateCache()
	assert.Equal(t, 0, r.cache.len())
}

func TestContextWindow(t *testing.T) {
	var frags []types.Fragment
	for i := 0; i < 5; i++ {
		if i == 3 {
			continue // missing neighbour
		}
		frags = append(frags, frag("a.py", types.ChunkCode, i, fmt.Sprintf("c%d", i)))
	}
	frags = append(frags,
		frag("a.py", types.ChunkFunction, 1, "fn1"),
		frag("b.py", types.ChunkCode, 2, "other"),
	)
	r := New(&fakeIndex{frags: frags}, Options{})

	assert.Equal(t, []string{"c1", "c2"}, contents(r.ContextWindow(frags[2], 1)))
	assert.Equal(t, []string{"c0", "c1"}, contents(r.ContextWindow(frags[0], 1)))
	assert.Equal(t, []string{"c0", "c1", "c2", "c4"}, contents(r.ContextWindow(frags[2], 2)))
	assert.Equal(t, []string{"c2"}, contents(r.ContextWindow(frags[2], 0)))

	lonely := frag("gone.py", types.ChunkCode, 7, "lonely")
	assert.Equal(t, []string{"lonely"}, contents(r.ContextWindow(lonely, 1)))

	noPath := frag("", types.ChunkCode, 0, "nopath")
	assert.Equal(t, []string{"nopath"}, contents(r.ContextWindow(noPath, 1)))
}

// termEmbedder counts occurrences of "alpha" plus a bias dimension. With
// the one-term query [1, 0.1], fewer occurrences rank higher.
type termEmbedder struct{}

func (termEmbedder) EmbedOne(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(strings.Count(text, "alpha")), 0.1}, nil
}

func (e termEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.EmbedOne(ctx, t)
	}
	return out, nil
}

func TestRetrieve_HybridOverVectorIndex(t *testing.T) {
	ctx := context.Background()
	idx, err := vectorindex.Open(ctx, vectorindex.Options{
		Name:     "hybrid",
		Store:    storage.NewMemoryStore(),
		Embedder: termEmbedder{},
	})
	require.NoError(t, err)

	var frags []types.Fragment
	for i := 0; i < 3; i++ {
		f := frag("main.py", types.ChunkCode, i, fmt.Sprintf("code%d %s", i, strings.Repeat("alpha ", i+1)))
		f.Metadata.TotalChunks = 3
		frags = append(frags, f)
	}
	for i := 0; i < 5; i++ {
		f := frag("README.md", types.ChunkDocumentation, i, fmt.Sprintf("doc%d %s", i, strings.Repeat("alpha ", i+1)))
		f.Metadata.TotalChunks = 5
		frags = append(frags, f)
	}
	require.NoError(t, idx.Add(ctx, frags))

	got, err := New(idx, Options{}).Retrieve(ctx, "how to alpha", 4, nil)
	require.NoError(t, err)

	var labels []string
	for _, f := range got.Fragments {
		labels = append(labels, strings.Fields(f.Content)[0])
	}
	assert.Equal(t, []string{"code0", "doc0", "code1", "doc1"}, labels)
}
