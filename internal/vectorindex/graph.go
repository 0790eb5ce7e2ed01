package vectorindex

import (
	"bytes"
	"container/heap"
	"encoding/gob"
	"fmt"
	"sort"

	"github.com/dshills/coderag/pkg/types"
)

// Graph defaults
const (
	DefaultGraphM              = 16
	DefaultGraphEfConstruction = 100
	DefaultGraphEfSearch       = 64
)

// GraphConfig tunes the navigable small-world graph
type GraphConfig struct {
	M              int // links created per inserted node; nodes keep at most 2*M plus parent links
	EfConstruction int // beam width while inserting
	EfSearch       int // minimum beam width while searching
}

func (c GraphConfig) withDefaults() GraphConfig {
	if c.M <= 0 {
		c.M = DefaultGraphM
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = DefaultGraphEfConstruction
	}
	if c.EfSearch <= 0 {
		c.EfSearch = DefaultGraphEfSearch
	}
	return c
}

// GraphBackend is an approximate index over a single-layer navigable
// small-world graph, scored by squared L2 distance (lower is better).
// Node 0 is the entry point. The adjacency lists are persisted so a reload
// does not rebuild the graph.
//
// Every node after the first keeps a parent link: the parent never prunes
// its edge to the child, so the parent edges form a spanning tree rooted at
// node 0 and every node stays reachable however tightly the data clusters.
type GraphBackend struct {
	cfg       GraphConfig
	vectors   [][]float32
	neighbors [][]int32
	parents   []int32 // -1 for node 0 and for nodes restored without parents
	children  []int   // parent links held by each node
	dim       int
}

// NewGraphBackend returns an empty graph backend
func NewGraphBackend(cfg GraphConfig) *GraphBackend {
	return &GraphBackend{cfg: cfg.withDefaults()}
}

func (b *GraphBackend) Name() string               { return BackendGraph }
func (b *GraphBackend) Dimension() int             { return b.dim }
func (b *GraphBackend) Len() int                   { return len(b.vectors) }
func (b *GraphBackend) ScoreKind() types.ScoreKind { return types.ScoreDistance }
func (b *GraphBackend) SupportsPushdown() bool     { return false }

// Config returns the effective graph parameters
func (b *GraphBackend) Config() GraphConfig { return b.cfg }

func (b *GraphBackend) Add(vectors [][]float32) error {
	dim, err := checkDimensions(b.dim, vectors)
	if err != nil {
		return err
	}
	b.dim = dim
	for _, v := range vectors {
		b.insert(v)
	}
	return nil
}

func (b *GraphBackend) insert(v []float32) {
	id := len(b.vectors)
	b.vectors = append(b.vectors, v)
	b.neighbors = append(b.neighbors, nil)
	b.parents = append(b.parents, -1)
	b.children = append(b.children, 0)
	if id == 0 {
		return
	}

	nearest := b.searchLayer(v, b.cfg.EfConstruction)
	parent := b.chooseParent(nearest)
	b.parents[id] = int32(parent)
	b.children[parent]++

	selected := b.selectNeighbors(v, nearest, nil, b.cfg.M)
	hasParent := false
	for _, n := range selected {
		if int(n) == parent {
			hasParent = true
		}
	}
	if !hasParent {
		selected = append(selected, int32(parent))
	}
	for _, n := range selected {
		b.neighbors[id] = append(b.neighbors[id], n)
		b.link(int(n), id)
	}
}

// chooseParent picks the nearest candidate still holding fewer than M parent
// links, or the least loaded one when all are full. candidates is nearest
// first and never empty.
func (b *GraphBackend) chooseParent(candidates []Hit) int {
	best := candidates[0].ID
	for _, c := range candidates {
		if b.children[c.ID] < b.cfg.M {
			return c.ID
		}
		if b.children[c.ID] < b.children[best] {
			best = c.ID
		}
	}
	return best
}

// selectNeighbors applies the HNSW heuristic: walking candidates nearest
// first, a candidate is kept only when it is closer to base than to every
// node already kept. Remaining slots up to limit are filled with the closest
// rejected candidates. Candidate scores are distances to base.
func (b *GraphBackend) selectNeighbors(base []float32, candidates []Hit, kept []int32, limit int) []int32 {
	out := append([]int32(nil), kept...)
	var rejected []int32
	for _, c := range candidates {
		if len(out) >= limit {
			break
		}
		if b.diverse(base, c, out) {
			out = append(out, int32(c.ID))
		} else {
			rejected = append(rejected, int32(c.ID))
		}
	}
	for _, r := range rejected {
		if len(out) >= limit {
			break
		}
		out = append(out, r)
	}
	return out
}

// diverse reports whether c is closer to base than to each kept node. Exact
// duplicates of base give no direction and are not compared against; an
// exact duplicate of a kept node is never diverse.
func (b *GraphBackend) diverse(base []float32, c Hit, kept []int32) bool {
	for _, r := range kept {
		d := squaredL2(b.vectors[c.ID], b.vectors[r])
		if d == 0 {
			return false
		}
		if squaredL2(base, b.vectors[r]) == 0 {
			continue
		}
		if d <= c.Score {
			return false
		}
	}
	return true
}

// link appends to onto from's adjacency list. Past 2*M entries the list is
// re-selected with the heuristic; parent links to from's children survive.
func (b *GraphBackend) link(from, to int) {
	b.neighbors[from] = append(b.neighbors[from], int32(to))
	limit := 2 * b.cfg.M
	if len(b.neighbors[from]) <= limit {
		return
	}

	base := b.vectors[from]
	var pinned []int32
	candidates := make([]Hit, 0, len(b.neighbors[from]))
	for _, nb := range b.neighbors[from] {
		if int(b.parents[nb]) == from {
			pinned = append(pinned, nb)
			continue
		}
		candidates = append(candidates, Hit{ID: int(nb), Score: squaredL2(base, b.vectors[nb])})
	}
	sort.Slice(candidates, func(i, j int) bool { return closer(candidates[i], candidates[j]) })
	b.neighbors[from] = b.selectNeighbors(base, candidates, pinned, limit)
}

// Search runs a beam search of width max(EfSearch, k). The predicate is
// ignored; callers over-fetch and filter.
func (b *GraphBackend) Search(query []float32, k int, _ Predicate) []Hit {
	if k <= 0 || len(b.vectors) == 0 {
		return nil
	}
	ef := b.cfg.EfSearch
	if k > ef {
		ef = k
	}
	hits := b.searchLayer(query, ef)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// searchLayer returns up to ef nodes closest to q, nearest first
func (b *GraphBackend) searchLayer(q []float32, ef int) []Hit {
	visited := make([]bool, len(b.vectors))
	visited[0] = true
	start := Hit{ID: 0, Score: squaredL2(q, b.vectors[0])}

	candidates := &nearHeap{start}
	results := &farHeap{start}

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(Hit)
		if results.Len() >= ef && c.Score > (*results)[0].Score {
			break
		}
		for _, nb := range b.neighbors[c.ID] {
			if visited[nb] {
				continue
			}
			visited[nb] = true

			d := squaredL2(q, b.vectors[nb])
			if results.Len() < ef || d < (*results)[0].Score {
				h := Hit{ID: int(nb), Score: d}
				heap.Push(candidates, h)
				heap.Push(results, h)
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]Hit, len(*results))
	copy(out, *results)
	sort.Slice(out, func(i, j int) bool { return closer(out[i], out[j]) })
	return out
}

func (b *GraphBackend) Vector(id int) []float32 {
	return b.vectors[id]
}

type graphState struct {
	Config    GraphConfig
	Neighbors [][]int32
	Parents   []int32
}

func (b *GraphBackend) MarshalState() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(graphState{Config: b.cfg, Neighbors: b.neighbors, Parents: b.parents}); err != nil {
		return nil, fmt.Errorf("failed to encode graph: %w", err)
	}
	return buf.Bytes(), nil
}

// Restore reinstates the persisted adjacency and parent links. Without state
// the graph is rebuilt by inserting the vectors in order.
func (b *GraphBackend) Restore(vectors [][]float32, state []byte) error {
	b.vectors, b.neighbors, b.parents, b.children, b.dim = nil, nil, nil, nil, 0
	if len(state) == 0 {
		return b.Add(vectors)
	}

	var gs graphState
	if err := gob.NewDecoder(bytes.NewReader(state)).Decode(&gs); err != nil {
		return fmt.Errorf("failed to decode graph: %w", err)
	}
	if len(gs.Neighbors) != len(vectors) {
		return fmt.Errorf("graph has %d nodes, snapshot has %d vectors", len(gs.Neighbors), len(vectors))
	}
	for id, list := range gs.Neighbors {
		for _, nb := range list {
			if int(nb) < 0 || int(nb) >= len(vectors) {
				return fmt.Errorf("graph node %d links to missing node %d", id, nb)
			}
		}
	}

	dim, err := checkDimensions(0, vectors)
	if err != nil {
		return err
	}
	b.cfg = gs.Config.withDefaults()
	b.vectors = vectors
	b.neighbors = gs.Neighbors
	if b.neighbors == nil {
		b.neighbors = make([][]int32, len(vectors))
	}
	b.parents = gs.Parents
	if len(b.parents) != len(vectors) {
		b.parents = make([]int32, len(vectors))
		for id := range b.parents {
			b.parents[id] = -1
		}
	}
	b.children = make([]int, len(vectors))
	for id, p := range b.parents {
		if p < 0 {
			continue
		}
		if int(p) >= id {
			return fmt.Errorf("graph node %d has invalid parent %d", id, p)
		}
		b.children[p]++
	}
	b.dim = dim
	return nil
}

// closer orders hits by distance, then id
func closer(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.ID < b.ID
}

// nearHeap pops the closest hit first
type nearHeap []Hit

func (h nearHeap) Len() int            { return len(h) }
func (h nearHeap) Less(i, j int) bool  { return closer(h[i], h[j]) }
func (h nearHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *nearHeap) Push(x interface{}) { *h = append(*h, x.(Hit)) }
func (h *nearHeap) Pop() interface{} {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// farHeap pops the farthest hit first
type farHeap []Hit

func (h farHeap) Len() int            { return len(h) }
func (h farHeap) Less(i, j int) bool  { return closer(h[j], h[i]) }
func (h farHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *farHeap) Push(x interface{}) { *h = append(*h, x.(Hit)) }
func (h *farHeap) Pop() interface{} {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}
