package vectorindex

import (
	"sort"

	"github.com/dshills/coderag/pkg/types"
)

// FlatBackend is an exact brute-force index scored by cosine similarity
type FlatBackend struct {
	vectors [][]float32
	norms   []float64
	dim     int
}

// NewFlatBackend returns an empty flat backend
func NewFlatBackend() *FlatBackend {
	return &FlatBackend{}
}

func (b *FlatBackend) Name() string               { return BackendFlat }
func (b *FlatBackend) Dimension() int             { return b.dim }
func (b *FlatBackend) Len() int                   { return len(b.vectors) }
func (b *FlatBackend) ScoreKind() types.ScoreKind { return types.ScoreSimilarity }
func (b *FlatBackend) SupportsPushdown() bool     { return true }

func (b *FlatBackend) Add(vectors [][]float32) error {
	dim, err := checkDimensions(b.dim, vectors)
	if err != nil {
		return err
	}
	b.dim = dim
	for _, v := range vectors {
		b.vectors = append(b.vectors, v)
		b.norms = append(b.norms, norm(v))
	}
	return nil
}

// Search scans every vector that passes pred. Ties keep insertion order.
func (b *FlatBackend) Search(query []float32, k int, pred Predicate) []Hit {
	if k <= 0 || len(b.vectors) == 0 {
		return nil
	}
	qn := norm(query)

	hits := make([]Hit, 0, len(b.vectors))
	for id, v := range b.vectors {
		if pred != nil && !pred(id) {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: cosineSimilarity(query, v, qn, b.norms[id])})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func (b *FlatBackend) Vector(id int) []float32 {
	return b.vectors[id]
}

// MarshalState returns nil: the vectors are the whole state
func (b *FlatBackend) MarshalState() ([]byte, error) {
	return nil, nil
}

func (b *FlatBackend) Restore(vectors [][]float32, _ []byte) error {
	b.vectors, b.norms, b.dim = nil, nil, 0
	return b.Add(vectors)
}
