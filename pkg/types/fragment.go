package types

import (
	"strconv"
	"strings"
)

// ChunkType represents the kind of fragment produced by the chunker
type ChunkType string

const (
	ChunkCode          ChunkType = "code"
	ChunkDocumentation ChunkType = "documentation"
	ChunkFunction      ChunkType = "function"
	ChunkClass         ChunkType = "class"
)

// Valid reports whether the chunk type is one of the known values
func (c ChunkType) Valid() bool {
	switch c {
	case ChunkCode, ChunkDocumentation, ChunkFunction, ChunkClass:
		return true
	default:
		return false
	}
}

// Kind selects the size-based splitting strategy for a source artifact
type Kind string

const (
	KindCode          Kind = "code"
	KindDocumentation Kind = "documentation"
)

// Metadata keys understood by Metadata.Value and Filter
const (
	KeyFilePath     = "file_path"
	KeyFileType     = "file_type"
	KeyFileName     = "file_name"
	KeyLanguage     = "language"
	KeyChunkType    = "chunk_type"
	KeyChunkIndex   = "chunk_index"
	KeyTotalChunks  = "total_chunks"
	KeyFunctionName = "function_name"
	KeyClassName    = "class_name"
	KeyDocstring    = "docstring"
	KeyHasFunctions = "has_functions"
	KeyHasClasses   = "has_classes"
	KeyHasCodeBlock = "has_code_blocks"
	KeyHasHeaders   = "has_headers"
)

// SyntaxContext holds identifiers extracted from a code fragment by pattern matching
type SyntaxContext struct {
	Imports             []string
	FunctionDefinitions []string
	ClassDefinitions    []string
	APIReferences       []string // call sites such as "requests.get" or "new Person"
}

// Metadata describes where a fragment came from and what it contains.
// FilePath, FileType, Language, ChunkType, ChunkIndex and TotalChunks are always set
// by the chunker; the remaining fields are optional.
type Metadata struct {
	// Source
	FilePath string
	FileType string // extension including the dot, e.g. ".py"
	FileName string
	Language string

	// Position among siblings sharing (FilePath, ChunkType)
	ChunkType   ChunkType
	ChunkIndex  int
	TotalChunks int

	// Structural (function/class fragments)
	FunctionName string
	ClassName    string
	Docstring    string
	Methods      []string

	// Documentation
	SectionHeaders []string
	HasCodeBlocks  bool
	HasHeaders     bool

	// Code
	HasFunctions  bool
	HasClasses    bool
	LinesOfCode   int
	SyntaxContext *SyntaxContext
}

// Value returns the canonical string form of the named metadata key.
// The second result is false for unknown keys and for optional keys that are unset.
func (m *Metadata) Value(key string) (string, bool) {
	switch key {
	case KeyFilePath:
		return m.FilePath, true
	case KeyFileType:
		return m.FileType, true
	case KeyFileName:
		return m.FileName, true
	case KeyLanguage:
		return m.Language, true
	case KeyChunkType:
		return string(m.ChunkType), true
	case KeyChunkIndex:
		return strconv.Itoa(m.ChunkIndex), true
	case KeyTotalChunks:
		return strconv.Itoa(m.TotalChunks), true
	case KeyFunctionName:
		return m.FunctionName, m.FunctionName != ""
	case KeyClassName:
		return m.ClassName, m.ClassName != ""
	case KeyDocstring:
		return m.Docstring, m.Docstring != ""
	case KeyHasFunctions:
		return strconv.FormatBool(m.HasFunctions), true
	case KeyHasClasses:
		return strconv.FormatBool(m.HasClasses), true
	case KeyHasCodeBlock:
		return strconv.FormatBool(m.HasCodeBlocks), true
	case KeyHasHeaders:
		return strconv.FormatBool(m.HasHeaders), true
	default:
		return "", false
	}
}

// Clone returns a deep copy of the metadata
func (m Metadata) Clone() Metadata {
	out := m
	out.Methods = cloneStrings(m.Methods)
	out.SectionHeaders = cloneStrings(m.SectionHeaders)
	if m.SyntaxContext != nil {
		out.SyntaxContext = &SyntaxContext{
			Imports:             cloneStrings(m.SyntaxContext.Imports),
			FunctionDefinitions: cloneStrings(m.SyntaxContext.FunctionDefinitions),
			ClassDefinitions:    cloneStrings(m.SyntaxContext.ClassDefinitions),
			APIReferences:       cloneStrings(m.SyntaxContext.APIReferences),
		}
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Fragment is the atomic retrieval unit: a piece of a source artifact plus its metadata
type Fragment struct {
	Content  string
	Metadata Metadata
}

// FragmentKey identifies a fragment for deduplication across sub-queries
type FragmentKey struct {
	FilePath   string
	ChunkIndex int
}

// Key returns the (file_path, chunk_index) composite key
func (f *Fragment) Key() FragmentKey {
	return FragmentKey{FilePath: f.Metadata.FilePath, ChunkIndex: f.Metadata.ChunkIndex}
}

// Validate checks the fragment invariants
func (f *Fragment) Validate() error {
	if strings.TrimSpace(f.Content) == "" {
		return ErrEmptyContent
	}
	if !f.Metadata.ChunkType.Valid() {
		return ErrInvalidChunkType
	}
	if f.Metadata.ChunkIndex < 0 || f.Metadata.TotalChunks < 1 || f.Metadata.ChunkIndex >= f.Metadata.TotalChunks {
		return ErrInvalidChunkIndex
	}
	return nil
}

// ScoredFragment pairs a fragment with a relevance or distance score
type ScoredFragment struct {
	Fragment Fragment
	Score    float64
}

// Fragments strips the scores from a scored result list
func Fragments(scored []ScoredFragment) []Fragment {
	out := make([]Fragment, len(scored))
	for i := range scored {
		out[i] = scored[i].Fragment
	}
	return out
}
