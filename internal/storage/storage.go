package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

var (
	// ErrNotFound is returned when a requested collection doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidName is returned for collection names that are not safe file names
	ErrInvalidName = errors.New("invalid collection name")
	// ErrUnknownStore is returned by Open for an unrecognised store kind
	ErrUnknownStore = errors.New("unknown store")
)

// Store kinds accepted by Open
const (
	KindFile   = "file"
	KindSQLite = "sqlite"
	KindMemory = "memory"
)

// BlobStore persists one opaque snapshot per named collection.
// Save replaces the previous blob atomically: a reader sees either the old
// or the new snapshot, never a partial one.
type BlobStore interface {
	// Load returns the stored blob or ErrNotFound
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, blob []byte) error
	// Delete removes the collection; deleting a missing collection is not an error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]CollectionInfo, error)
	Close() error
}

// CollectionInfo describes a stored collection
type CollectionInfo struct {
	Name      string
	SizeBytes int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// ValidateName checks that name can be used as a collection key in every store
func ValidateName(name string) error {
	if !namePattern.MatchString(name) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Open creates the store of the given kind. location is a directory for
// file stores and a database path (or ":memory:") for SQLite; it is ignored
// for memory stores.
func Open(kind, location string) (BlobStore, error) {
	switch kind {
	case KindFile, "":
		return NewFileStore(location)
	case KindSQLite:
		return NewSQLiteStore(location)
	case KindMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStore, kind)
	}
}
