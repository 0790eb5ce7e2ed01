package vectorindex

import (
	"context"
	"sort"
	"strings"

	"github.com/dshills/coderag/pkg/types"
)

// KeywordSearch fetches 2*k semantic candidates and reorders them by how
// many whitespace-separated query terms occur in the content
// (case-insensitive). Candidates with equal term counts keep their semantic
// order. The returned score is the term count.
func (i *Index) KeywordSearch(ctx context.Context, query string, k int, filter types.Filter) ([]types.ScoredFragment, error) {
	candidates, err := i.SearchWithScore(ctx, query, k*2, filter)
	if err != nil {
		return nil, err
	}

	terms := strings.Fields(strings.ToLower(query))
	for n := range candidates {
		content := strings.ToLower(candidates[n].Fragment.Content)
		count := 0
		for _, term := range terms {
			if strings.Contains(content, term) {
				count++
			}
		}
		candidates[n].Score = float64(count)
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].Score > candidates[b].Score
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}
