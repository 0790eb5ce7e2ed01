// Package indexer walks a local repository and loads its code and
// documentation into a vector index.
//
// # Pipeline
//
//  1. Discovery: walk the tree, skipping hidden directories and DefaultSkipDirs,
//     keeping files whose extension is a known code or documentation type
//  2. Read & Chunk: files are read and split concurrently (Config.Workers);
//     code files also get function and class fragments from the structural
//     parser
//  3. Add: fragments are handed to the index in Config.BatchSize batches, one
//     snapshot save per batch
//
// Files that cannot be read are recorded in Statistics.ErrorMessages and do
// not stop the run. Files larger than Config.MaxFileSize, non-UTF-8 files and
// blank files are counted as skipped.
//
// # Usage
//
//	idx := indexer.New(index, chunker, parser.New(), logger)
//	stats, err := idx.IndexRepository(ctx, "/path/to/repo", nil)
//	if errors.Is(err, types.ErrIndexingInProgress) {
//	    // another run holds the lock
//	}
//
// Each Indexer runs one IndexRepository at a time; a concurrent call returns
// types.ErrIndexingInProgress immediately.
package indexer
