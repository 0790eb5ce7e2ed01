package vectorindex

import (
	"errors"
	"fmt"

	"github.com/dshills/coderag/pkg/types"
)

// Backend names
const (
	BackendFlat  = "flat"
	BackendGraph = "graph"
)

// ErrUnknownBackend is returned for an unrecognised backend name
var ErrUnknownBackend = errors.New("unknown backend")

// Hit is a backend search result. ID is the position of the vector in
// insertion order; Score is backend-native (see Backend.ScoreKind).
type Hit struct {
	ID    int
	Score float64
}

// Predicate reports whether the entry with the given id may be returned
type Predicate func(id int) bool

// Backend is a nearest-neighbour structure over append-only vectors
type Backend interface {
	Name() string
	// Dimension is 0 until the first vector is added
	Dimension() int
	Len() int
	ScoreKind() types.ScoreKind
	// SupportsPushdown reports whether Search honours the predicate natively.
	// Backends without pushdown ignore it.
	SupportsPushdown() bool

	// Add appends vectors; ids continue from Len()
	Add(vectors [][]float32) error
	// Search returns up to k hits, best first
	Search(query []float32, k int, pred Predicate) []Hit
	Vector(id int) []float32

	// MarshalState returns backend-specific structure beyond the raw vectors
	MarshalState() ([]byte, error)
	// Restore rebuilds the backend from persisted vectors and state
	Restore(vectors [][]float32, state []byte) error
}

// NewBackend creates an empty backend by name
func NewBackend(name string, graph GraphConfig) (Backend, error) {
	switch name {
	case BackendFlat, "":
		return NewFlatBackend(), nil
	case BackendGraph:
		return NewGraphBackend(graph), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
}

func checkDimensions(current int, vectors [][]float32) (int, error) {
	dim := current
	for i, v := range vectors {
		if len(v) == 0 {
			return 0, fmt.Errorf("vector %d is empty", i)
		}
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			return 0, fmt.Errorf("%w: vector %d has dimension %d, index has %d",
				types.ErrIncompatibleIndex, i, len(v), dim)
		}
	}
	return dim, nil
}
