package types

// ScoreKind describes how a backend-native score orders results
type ScoreKind int

const (
	// ScoreSimilarity: higher is more relevant (cosine similarity)
	ScoreSimilarity ScoreKind = iota
	// ScoreDistance: lower is more relevant (squared L2 distance)
	ScoreDistance
)

func (k ScoreKind) String() string {
	if k == ScoreDistance {
		return "distance"
	}
	return "similarity"
}

// Relevance converts a backend-native score into a higher-is-better value.
// Distances map through 1/(1+d), which preserves order.
func (k ScoreKind) Relevance(score float64) float64 {
	if k == ScoreDistance {
		if score < 0 {
			score = 0
		}
		return 1.0 / (1.0 + score)
	}
	return score
}

// RetrievalResult is the ordered output of a retrieval, highest relevance first
type RetrievalResult struct {
	Strategy  Strategy
	Fragments []Fragment
	// Scores is parallel to Fragments for scored paths (code_search); nil otherwise
	Scores []float64
}

// Len returns the number of fragments
func (r *RetrievalResult) Len() int {
	return len(r.Fragments)
}

// Empty reports a "no match" result
func (r *RetrievalResult) Empty() bool {
	return len(r.Fragments) == 0
}
