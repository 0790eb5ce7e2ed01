// Package vectorindex implements a persisted, filterable nearest-neighbour
// index over fragment embeddings.
//
// An Index is bound to one named collection in a storage.BlobStore. Open
// loads the collection's snapshot or starts empty; every successful Add
// re-serializes the whole collection. Two backends sit behind the Backend
// interface:
//
//   - flat: exact brute-force cosine similarity (higher is better) with
//     native predicate pushdown
//   - graph: navigable small-world graph scored by squared L2 distance
//     (lower is better); filters are applied to k*3 over-fetched candidates,
//     so filtered searches may return fewer than k results
//
// # Basic Usage
//
//	idx, err := vectorindex.Open(ctx, vectorindex.Options{
//	    Name:     "code_documentation",
//	    Store:    store,
//	    Embedder: svc,
//	    Backend:  vectorindex.BackendFlat,
//	})
//	if err != nil {
//	    return err
//	}
//
//	if err := idx.Add(ctx, fragments); err != nil {
//	    return err
//	}
//
//	results, err := idx.Search(ctx, "parse config", 5,
//	    types.Filter{types.KeyChunkType: "code"})
//
// # Snapshot Format
//
// A snapshot is two gob values: a header (format version, collection uuid,
// backend, dimension, embedding provider and model, timestamps) followed by
// the entries (fragment plus little-endian float32 vector) and any backend
// graph state. Headers whose format version is not ^1.0.0 are rejected with
// types.ErrIncompatibleIndex.
package vectorindex
