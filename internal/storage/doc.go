// Package storage persists vector index snapshots, one opaque blob per named
// collection.
//
// Three BlobStore implementations are provided:
//   - FileStore: <dir>/<name>.idx, replaced atomically via temp file + rename
//   - SQLiteStore: a collections table with versioned schema migrations
//   - MemoryStore: process memory, for ephemeral collections and tests
//
// # Basic Usage
//
//	store, err := storage.Open(storage.KindFile, "./coderag_index")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	if err := store.Save(ctx, "code_documentation", blob); err != nil {
//	    return err
//	}
//
//	blob, err := store.Load(ctx, "code_documentation")
//	if errors.Is(err, storage.ErrNotFound) {
//	    // fresh collection
//	}
//
// # Build Tags
//
// CGO Build (sqlite_vec tag) uses github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (default or purego tag) uses modernc.org/sqlite:
//
//	CGO_ENABLED=0 go build -tags "purego"
package storage
