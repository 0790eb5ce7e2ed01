package embedder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHash(t *testing.T) {
	h1 := ComputeHash("func main() {}")
	h2 := ComputeHash("func main() {}")
	h3 := ComputeHash("func other() {}")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}

func TestValidateBatchRequest(t *testing.T) {
	tests := []struct {
		name    string
		texts   []string
		wantErr error
	}{
		{"valid", []string{"a", "b"}, nil},
		{"empty batch", nil, ErrInvalidInput},
		{"empty text", []string{"a", ""}, ErrInvalidInput},
		{"too large", make([]string, MaxBatchSize+1), ErrBatchTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatchRequest(BatchEmbeddingRequest{Texts: tt.texts})
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.ErrorIs(t, ValidateRequest(EmbeddingRequest{}), ErrEmptyText)
}

func TestCache(t *testing.T) {
	t.Run("get returns copy", func(t *testing.T) {
		c := NewCache(10)
		c.Set("k", &Embedding{Vector: []float32{1, 2, 3}, Dimension: 3})

		got, ok := c.Get("k")
		require.True(t, ok)
		got.Vector[0] = 99

		again, _ := c.Get("k")
		assert.Equal(t, float32(1), again.Vector[0])
	})

	t.Run("lru eviction", func(t *testing.T) {
		c := NewCache(2)
		c.Set("a", &Embedding{})
		c.Set("b", &Embedding{})
		c.Set("c", &Embedding{})

		assert.Equal(t, 2, c.Size())
		_, ok := c.Get("a")
		assert.False(t, ok)

		c.Clear()
		assert.Equal(t, 0, c.Size())
	})

	t.Run("non-positive size uses default", func(t *testing.T) {
		c := NewCache(0)
		c.Set("a", &Embedding{})
		assert.Equal(t, 1, c.Size())
	})
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHashVector(t *testing.T) {
	v := HashVector("parse the config file", 1024)
	require.Len(t, v, 1024)

	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)

	assert.Equal(t, v, HashVector("Parse the CONFIG file!", 1024), "case and punctuation are ignored")

	related := HashVector("config file parser", 1024)
	unrelated := HashVector("render button widget", 1024)
	assert.Greater(t, cosine(v, related), cosine(v, unrelated))

	zero := HashVector("!!! ???", 8)
	assert.Equal(t, make([]float32, 8), zero)
}

func TestLocalProvider(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(10)
	p, err := NewLocalProvider(Config{Dimension: 32}, cache)
	require.NoError(t, err)

	assert.Equal(t, ProviderLocal, p.Provider())
	assert.Equal(t, DefaultLocalModel, p.Model())
	assert.Equal(t, 32, p.Dimension())

	emb, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "hello world"})
	require.NoError(t, err)
	assert.Len(t, emb.Vector, 32)
	assert.Equal(t, 1, cache.Size())

	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"hello world", "other"}})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 2)
	assert.Equal(t, emb.Vector, resp.Embeddings[0].Vector)
	assert.Equal(t, 2, cache.Size())

	_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{})
	assert.ErrorIs(t, err, ErrEmptyText)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = p.GenerateEmbedding(cancelled, EmbeddingRequest{Text: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

// recordingEmbedder records batch sizes and can fail on a given batch
type recordingEmbedder struct {
	batches []int
	failOn  int
	err     error
}

func (r *recordingEmbedder) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	resp, err := r.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (r *recordingEmbedder) GenerateBatch(_ context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	r.batches = append(r.batches, len(req.Texts))
	if r.err != nil && len(r.batches) == r.failOn {
		return nil, r.err
	}
	out := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		out[i] = &Embedding{Vector: []float32{float32(len(text))}}
	}
	return &BatchEmbeddingResponse{Embeddings: out}, nil
}

func (r *recordingEmbedder) Dimension() int   { return 1 }
func (r *recordingEmbedder) Provider() string { return "recording" }
func (r *recordingEmbedder) Model() string    { return "test" }
func (r *recordingEmbedder) Close() error     { return nil }

func TestService_EmbedMany(t *testing.T) {
	rec := &recordingEmbedder{}
	svc := NewService(rec, 4, nil)

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("%*s", i+1, "x")
	}

	vectors, err := svc.EmbedMany(context.Background(), texts)
	require.NoError(t, err)

	assert.Equal(t, []int{4, 4, 2}, rec.batches)
	require.Len(t, vectors, 10)
	for i, v := range vectors {
		assert.Equal(t, float32(i+1), v[0], "order preserved")
	}

	vectors, err = svc.EmbedMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestService_PropagatesProviderErrors(t *testing.T) {
	rec := &recordingEmbedder{failOn: 2, err: fmt.Errorf("%w: bad key", ErrAuth)}
	svc := NewService(rec, 2, nil)

	_, err := svc.EmbedMany(context.Background(), []string{"a", "b", "c"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuth))
}

func TestNewService_ClampsBatchSize(t *testing.T) {
	rec := &recordingEmbedder{}
	assert.Equal(t, DefaultBatchSize, NewService(rec, 0, nil).batchSize)
	assert.Equal(t, MaxBatchSize, NewService(rec, 1000, nil).batchSize)

	svc := NewService(rec, 10, nil)
	assert.Equal(t, 1, svc.Dimension())
	assert.Equal(t, "recording", svc.Provider())

	v, err := svc.EmbedOne(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3}, v)
}
