// Package chunker divides source files into fragments for embedding and search.
//
// Two complementary strategies are applied:
//
// Size-based splitting recursively splits content on a language-specific
// separator hierarchy (class and function openers first, then blank lines,
// newlines, spaces and finally characters) until every fragment fits in
// ChunkSize characters. Up to ChunkOverlap characters of trailing context are
// carried into the following fragment. Documentation uses markdown headers as
// its preferred boundaries.
//
//	c, err := chunker.New(chunker.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	frags, err := c.Chunk(src, meta, types.KindCode)
//
// Semantic chunking asks a parser.StructuralParser for definition boundaries
// and emits one extra fragment per function or class, tagged with its name and
// docstring:
//
//	extra := c.ChunkSemantic(src, meta, parser.New())
//
// Every fragment is annotated with chunk_index and total_chunks. Indices are
// contiguous among fragments of the same file and chunk type.
package chunker
