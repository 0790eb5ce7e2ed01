// Package retriever turns a natural-language query into a ranked list of
// fragments from a vector index.
//
// Select picks one of four retrieval paths by keyword matching:
//
//	code_search  filters to code fragments, over-fetches 2k and re-ranks
//	             with metadata bonuses
//	api_search   runs one k/2 query per call-like token (a.b, f()) plus a
//	             general query, then deduplicates by (file_path, chunk_index)
//	hybrid       interleaves k/2 code and k/2 documentation fragments
//	general      a single unfiltered query
//
// Queries are expanded with language hints and synonyms (Enhance) before
// they are embedded. Results may be cached in an LRU keyed by the index
// generation, so any change to the index makes older entries unreachable.
package retriever
