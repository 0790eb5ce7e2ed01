// Package types provides shared type definitions for coderag.
//
// # Fragments
//
// A Fragment is the atomic retrieval unit: a slice of a source file plus
// structured Metadata. Fragments are created by the chunker and are
// immutable once indexed.
//
//	frag := types.Fragment{
//	    Content: body,
//	    Metadata: types.Metadata{
//	        FilePath:    "pkg/auth/login.py",
//	        FileType:    ".py",
//	        Language:    "python",
//	        ChunkType:   types.ChunkFunction,
//	        ChunkIndex:  0,
//	        TotalChunks: 3,
//	    },
//	}
//
// For a given (FilePath, ChunkType) pair, ChunkIndex values form the
// contiguous range 0..TotalChunks-1.
//
// # Filters
//
// Filter is a conjunctive exact-match predicate. Values are compared against
// Metadata.Value, the canonical string form of a field:
//
//	f := types.Filter{}.WithChunkType(types.ChunkCode).With(types.KeyLanguage, "go")
//	if f.Match(&frag.Metadata) { ... }
//
// # Strategies
//
// Strategy is the closed set of retrieval paths. ParseStrategy converts
// user-supplied names and rejects anything else with ErrInvalidStrategy.
package types
