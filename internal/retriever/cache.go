package retriever

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/coderag/pkg/types"
)

// cacheEntry represents a cached retrieval result with expiration time
type cacheEntry struct {
	result    *types.RetrievalResult
	expiresAt time.Time
}

// resultCache is an LRU of retrieval results. Keys include the index
// generation, so results computed before an Add or Delete are never served.
type resultCache struct {
	mu  sync.Mutex
	lru *lru.Cache[[32]byte, *cacheEntry]
	ttl time.Duration
}

func newResultCache(size int, ttl time.Duration) *resultCache {
	if size <= 0 {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c, err := lru.New[[32]byte, *cacheEntry](size)
	if err != nil {
		// This should never happen with valid size parameter
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	return &resultCache{lru: c, ttl: ttl}
}

func (c *resultCache) get(key [32]byte) (*types.RetrievalResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.lru.Remove(key)
		return nil, false
	}
	return copyResult(entry.result), true
}

func (c *resultCache) put(key [32]byte, result *types.RetrievalResult) {
	c.mu.Lock()
	c.lru.Add(key, &cacheEntry{result: copyResult(result), expiresAt: time.Now().Add(c.ttl)})
	c.mu.Unlock()
}

func (c *resultCache) purge() {
	c.mu.Lock()
	c.lru.Purge()
	c.mu.Unlock()
}

func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// cacheKey hashes everything that determines a result
func cacheKey(generation uint64, query string, k int, strategy types.Strategy, filter types.Filter) [32]byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%d|%s|%s|", generation, k, strategy, filter.String())
	b.WriteString(query)
	return sha256.Sum256([]byte(b.String()))
}

// copyResult deep-copies fragments so callers can't mutate cached entries
func copyResult(src *types.RetrievalResult) *types.RetrievalResult {
	dst := &types.RetrievalResult{
		Strategy:  src.Strategy,
		Fragments: make([]types.Fragment, len(src.Fragments)),
	}
	for i, f := range src.Fragments {
		dst.Fragments[i] = types.Fragment{Content: f.Content, Metadata: f.Metadata.Clone()}
	}
	if src.Scores != nil {
		dst.Scores = append([]float64(nil), src.Scores...)
	}
	return dst
}
