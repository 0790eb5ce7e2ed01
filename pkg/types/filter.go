package types

import (
	"sort"
	"strconv"
	"strings"
)

// Filter is a conjunctive exact-match predicate over fragment metadata.
// Keys are metadata key names (see Key* constants), values their canonical string form.
type Filter map[string]string

// Match reports whether every key in the filter equals the fragment's value.
// An empty or nil filter matches everything.
func (f Filter) Match(m *Metadata) bool {
	for key, want := range f {
		got, ok := m.Value(key)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// With returns a copy of the filter with key set to value
func (f Filter) With(key, value string) Filter {
	out := make(Filter, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	out[key] = value
	return out
}

// WithChunkType is shorthand for With(KeyChunkType, ...)
func (f Filter) WithChunkType(ct ChunkType) Filter {
	return f.With(KeyChunkType, string(ct))
}

// WithChunkIndex is shorthand for With(KeyChunkIndex, ...)
func (f Filter) WithChunkIndex(i int) Filter {
	return f.With(KeyChunkIndex, strconv.Itoa(i))
}

// Empty reports whether the filter has no constraints
func (f Filter) Empty() bool {
	return len(f) == 0
}

// String renders the filter deterministically (sorted keys)
func (f Filter) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + f[k]
	}
	return strings.Join(parts, ",")
}
