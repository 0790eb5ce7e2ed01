package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/coderag/internal/config"
	"github.com/dshills/coderag/internal/embedder"
	"github.com/dshills/coderag/internal/retriever"
	"github.com/dshills/coderag/internal/storage"
	"github.com/dshills/coderag/pkg/types"
)

const sampleSource = `package sample

// Add returns the sum of a and b.
func Add(a, b int) int {
	return a + b
}

// Counter counts things.
type Counter struct{ n int }

// Inc increments the counter.
func (c *Counter) Inc() { c.n++ }
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	for _, k := range []string{embedder.EnvProvider, embedder.EnvOpenAIAPIKey, embedder.EnvJinaAPIKey,
		config.EnvStore, config.EnvBackend, config.EnvCollection, config.EnvPersistDir, config.EnvTopK} {
		t.Setenv(k, "")
	}
	cfg := config.Default()
	cfg.Index.PersistDir = t.TempDir()
	cfg.Embedding.Dimension = 64
	cfg.Retrieval.ContextWindow = 1
	return cfg
}

func writeRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample.go"), []byte(sampleSource), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Sample\n\nAdds numbers and counts things.\n"), 0o644))
	return dir
}

func TestApp_IndexAndRetrieve(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), Options{Store: storage.NewMemoryStore()})
	require.NoError(t, err)
	defer a.Close()

	stats, err := a.IndexRepository(ctx, writeRepo(t))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesIndexed)
	assert.Equal(t, stats.FragmentsCreated, a.Stats().Count)
	assert.Equal(t, embedder.ProviderLocal, a.Stats().Provider)
	assert.Equal(t, 64, a.Stats().Dimension)

	res, err := a.Retrieve(ctx, "show the function Add", 0, "")
	require.NoError(t, err)
	assert.Equal(t, types.StrategyCodeSearch, res.Strategy)
	require.NotEmpty(t, res.Fragments)
	for _, f := range res.Fragments {
		assert.Equal(t, types.ChunkCode, f.Metadata.ChunkType)
	}

	res, err = a.Retrieve(ctx, "sum", 3, "general")
	require.NoError(t, err)
	assert.Equal(t, types.StrategyGeneral, res.Strategy)
	assert.LessOrEqual(t, res.Len(), 3)

	_, err = a.Retrieve(ctx, "sum", 3, "fuzzy")
	assert.ErrorIs(t, err, types.ErrInvalidStrategy)

	windows := a.Expand(res.Fragments)
	assert.Len(t, windows, res.Len())
}

func TestApp_KeywordSearch(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), Options{Store: storage.NewMemoryStore()})
	require.NoError(t, err)
	defer a.Close()

	_, err = a.IndexRepository(ctx, writeRepo(t))
	require.NoError(t, err)

	hits, err := a.KeywordSearch(ctx, "counter inc", 2)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.LessOrEqual(t, len(hits), 2)
	for n := 1; n < len(hits); n++ {
		assert.GreaterOrEqual(t, hits[n-1].Score, hits[n].Score)
	}

	_, err = a.KeywordSearch(ctx, "  ", 2)
	assert.ErrorIs(t, err, retriever.ErrEmptyQuery)
}

func fragment(path string, ct types.ChunkType, idx, total int, content string) types.Fragment {
	return types.Fragment{
		Content: content,
		Metadata: types.Metadata{
			FilePath:    path,
			FileType:    ".go",
			Language:    "go",
			ChunkType:   ct,
			ChunkIndex:  idx,
			TotalChunks: total,
		},
	}
}

func TestApp_ExpandNeverDropsAResult(t *testing.T) {
	ctx := context.Background()

	t.Run("chunk types do not collide", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Retrieval.ContextWindow = 0
		a, err := New(ctx, cfg, Options{Store: storage.NewMemoryStore()})
		require.NoError(t, err)
		defer a.Close()

		code := fragment("x.go", types.ChunkCode, 0, 1, "func A() {}")
		fn := fragment("x.go", types.ChunkFunction, 0, 1, "func A() {}")
		fn.Metadata.FunctionName = "A"
		require.NoError(t, a.Index().Add(ctx, []types.Fragment{code, fn}))

		windows := a.Expand([]types.Fragment{code, fn})
		require.Len(t, windows, 2)
		require.Len(t, windows[0], 1)
		require.Len(t, windows[1], 1)
		assert.Equal(t, types.ChunkCode, windows[0][0].Metadata.ChunkType)
		assert.Equal(t, types.ChunkFunction, windows[1][0].Metadata.ChunkType)
	})

	t.Run("overlapping windows keep their own fragment", func(t *testing.T) {
		a, err := New(ctx, testConfig(t), Options{Store: storage.NewMemoryStore()})
		require.NoError(t, err)
		defer a.Close()

		c0 := fragment("y.go", types.ChunkCode, 0, 2, "package y")
		c1 := fragment("y.go", types.ChunkCode, 1, 2, "func B() {}")
		require.NoError(t, a.Index().Add(ctx, []types.Fragment{c0, c1}))

		windows := a.Expand([]types.Fragment{c0, c1})
		require.Len(t, windows, 2)
		assert.Equal(t, []string{"package y", "func B() {}"}, contents(windows[0]))
		assert.Equal(t, []string{"func B() {}"}, contents(windows[1]))
	})
}

func contents(frags []types.Fragment) []string {
	out := make([]string, len(frags))
	for i, f := range frags {
		out[i] = f.Content
	}
	return out
}

func TestApp_DeleteCollection(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	a, err := New(ctx, testConfig(t), Options{Store: store})
	require.NoError(t, err)
	defer a.Close()

	_, err = a.IndexRepository(ctx, writeRepo(t))
	require.NoError(t, err)
	before := a.Stats().ID

	require.NoError(t, a.DeleteCollection(ctx))
	assert.Zero(t, a.Stats().Count)
	assert.NotEqual(t, before, a.Stats().ID)

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	res, err := a.Retrieve(ctx, "anything", 5, "")
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestApp_PersistsAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Index.Store = storage.KindSQLite
	cfg.Index.Backend = "graph"

	a, err := New(ctx, cfg, Options{})
	require.NoError(t, err)
	stats, err := a.IndexRepository(ctx, writeRepo(t))
	require.NoError(t, err)
	id := a.Stats().ID
	require.NoError(t, a.Close())

	b, err := New(ctx, cfg, Options{})
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, stats.FragmentsCreated, b.Stats().Count)
	assert.Equal(t, id, b.Stats().ID)
	assert.Equal(t, "graph", b.Stats().Backend)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Index.Backend = "annoy"
	_, err := New(context.Background(), cfg, Options{})
	assert.ErrorIs(t, err, config.ErrInvalid)
}
