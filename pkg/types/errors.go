package types

import "errors"

// Domain errors shared across packages
var (
	// Fragment validation errors
	ErrEmptyContent      = errors.New("content cannot be empty")
	ErrInvalidChunkType  = errors.New("invalid chunk type")
	ErrInvalidChunkIndex = errors.New("chunk index must be within [0, total_chunks)")
	ErrInvalidKind       = errors.New("kind must be code or documentation")

	// Retrieval errors
	ErrInvalidStrategy = errors.New("invalid retrieval strategy")

	// Index errors
	ErrIncompatibleIndex  = errors.New("incompatible index: embedding dimension mismatch")
	ErrIndexingInProgress = errors.New("another indexing operation is already running")
)
