package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/coderag/internal/chunker"
	"github.com/dshills/coderag/internal/parser"
	"github.com/dshills/coderag/pkg/types"
)

const (
	// DefaultBatchSize is the number of fragments handed to one index Add
	DefaultBatchSize = 1000
	// DefaultMaxFileSize skips files larger than 1 MiB
	DefaultMaxFileSize = 1 << 20
	// UnknownLanguage labels files whose extension has no language
	UnknownLanguage = "unknown"
)

var (
	// ErrNotDirectory is returned when the repository root is not a directory
	ErrNotDirectory = errors.New("repository root is not a directory")
	// ErrNoSupportedFiles is returned when discovery finds nothing to index
	ErrNoSupportedFiles = errors.New("no supported files found in the repository")
)

// DefaultCodeExtensions maps source file extensions to languages
var DefaultCodeExtensions = map[string]string{
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
	".java": "java",
	".cpp":  "cpp",
	".c":    "c",
	".go":   "go",
	".rs":   "rust",
	".rb":   "ruby",
	".php":  "php",
}

// DefaultDocExtensions lists the documentation file extensions
var DefaultDocExtensions = []string{".md", ".rst", ".txt", ".doc"}

// DefaultSkipDirs are never descended into, in addition to hidden directories
var DefaultSkipDirs = []string{"node_modules", "__pycache__", "venv", "env", "vendor"}

// Adder is the part of the vector index the indexer writes to
type Adder interface {
	Add(ctx context.Context, fragments []types.Fragment) error
}

// Config contains configuration for one indexing run
type Config struct {
	Workers         int               // Concurrent file readers (default: runtime.NumCPU())
	BatchSize       int               // Fragments per index Add (default: DefaultBatchSize)
	MaxFileSize     int64             // Larger files are skipped (default: DefaultMaxFileSize)
	CodeExtensions  map[string]string // Extension to language (default: DefaultCodeExtensions)
	DocExtensions   []string          // Documentation extensions (default: DefaultDocExtensions)
	SkipDirs        []string          // Directory names never walked (default: DefaultSkipDirs)
	DisableSemantic bool              // Skip function/class fragments
}

func (c *Config) withDefaults() Config {
	var out Config
	if c != nil {
		out = *c
	}
	if out.Workers <= 0 {
		out.Workers = runtime.NumCPU()
	}
	if out.BatchSize <= 0 {
		out.BatchSize = DefaultBatchSize
	}
	if out.MaxFileSize <= 0 {
		out.MaxFileSize = DefaultMaxFileSize
	}
	if out.CodeExtensions == nil {
		out.CodeExtensions = DefaultCodeExtensions
	}
	if out.DocExtensions == nil {
		out.DocExtensions = DefaultDocExtensions
	}
	if out.SkipDirs == nil {
		out.SkipDirs = DefaultSkipDirs
	}
	return out
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	FilesIndexed      int           `json:"files_indexed"`
	FilesSkipped      int           `json:"files_skipped"`
	FilesFailed       int           `json:"files_failed"`
	FragmentsCreated  int           `json:"fragments_created"`
	SemanticFragments int           `json:"semantic_fragments"`
	Duration          time.Duration `json:"duration"`
	ErrorMessages     []string      `json:"error_messages,omitempty"`
}

// Indexer coordinates the indexing pipeline: walk -> read -> chunk -> add
type Indexer struct {
	chunker *chunker.Chunker
	parser  parser.StructuralParser
	index   Adder
	lock    IndexLock
	log     *slog.Logger
}

// New creates an Indexer writing to index. A nil parser disables semantic
// fragments.
func New(index Adder, c *chunker.Chunker, p parser.StructuralParser, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{chunker: c, parser: p, index: index, log: logger}
}

// sourceFile is a discovered file and how to chunk it
type sourceFile struct {
	path     string
	relPath  string
	ext      string
	language string
	kind     types.Kind
}

// fileResult is the outcome of reading and chunking one file
type fileResult struct {
	fragments []types.Fragment
	semantic  int
	skipped   bool
}

// IndexRepository indexes every supported file under root. Per-file failures
// are recorded in Statistics and do not stop the run; an Add failure does.
// Only one run may be in progress per Indexer.
func (idx *Indexer) IndexRepository(ctx context.Context, root string, config *Config) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, types.ErrIndexingInProgress
	}
	defer idx.lock.Release()

	cfg := config.withDefaults()
	startTime := time.Now()

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat repository: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	files, err := idx.discoverFiles(root, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSupportedFiles, root)
	}
	idx.log.Info("indexing repository", "root", root, "files", len(files), "workers", cfg.Workers)

	stats := &Statistics{ErrorMessages: make([]string, 0)}
	results, err := idx.processFiles(ctx, files, &cfg, stats)
	if err != nil {
		return nil, err
	}

	var fragments []types.Fragment
	for _, r := range results {
		if r == nil {
			continue
		}
		fragments = append(fragments, r.fragments...)
		stats.SemanticFragments += r.semantic
	}
	stats.FragmentsCreated = len(fragments)

	for i := 0; i < len(fragments); i += cfg.BatchSize {
		end := i + cfg.BatchSize
		if end > len(fragments) {
			end = len(fragments)
		}
		if err := idx.index.Add(ctx, fragments[i:end]); err != nil {
			return stats, fmt.Errorf("failed to add fragments %d-%d: %w", i, end, err)
		}
		idx.log.Debug("added batch", "done", end, "total", len(fragments))
	}

	stats.Duration = time.Since(startTime)
	idx.log.Info("indexing complete",
		"root", root,
		"files_indexed", stats.FilesIndexed,
		"files_skipped", stats.FilesSkipped,
		"files_failed", stats.FilesFailed,
		"fragments", stats.FragmentsCreated,
		"duration_ms", stats.Duration.Milliseconds())
	return stats, nil
}

// discoverFiles finds all supported files under root, in lexical order
func (idx *Indexer) discoverFiles(root string, cfg *Config) ([]sourceFile, error) {
	skip := make(map[string]bool, len(cfg.SkipDirs))
	for _, d := range cfg.SkipDirs {
		skip[d] = true
	}
	docs := make(map[string]bool, len(cfg.DocExtensions))
	for _, ext := range cfg.DocExtensions {
		docs[strings.ToLower(ext)] = true
	}

	var files []sourceFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			// Skip hidden and excluded directories
			if strings.HasPrefix(d.Name(), ".") || skip[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(d.Name()))
		f := sourceFile{path: path, ext: ext}
		if lang, ok := cfg.CodeExtensions[ext]; ok {
			f.kind, f.language = types.KindCode, lang
		} else if docs[ext] {
			f.kind, f.language = types.KindDocumentation, UnknownLanguage
		} else {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		f.relPath = filepath.ToSlash(rel)
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].relPath < files[j].relPath })
	return files, nil
}

// processFiles reads and chunks files concurrently. Results keep the order of
// files; failed files leave a nil slot.
func (idx *Indexer) processFiles(ctx context.Context, files []sourceFile, cfg *Config, stats *Statistics) ([]*fileResult, error) {
	semaphore := make(chan struct{}, cfg.Workers)
	results := make([]*fileResult, len(files))

	var (
		indexed int32
		skipped int32
		failed  int32
		mu      sync.Mutex // Protect stats.ErrorMessages
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := range files {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			res, err := idx.processFile(files[i], cfg)
			if err != nil {
				atomic.AddInt32(&failed, 1)
				mu.Lock()
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", files[i].relPath, err))
				mu.Unlock()
				idx.log.Warn("failed to index file", "file", files[i].relPath, "error", err)
				return nil
			}
			if res.skipped {
				atomic.AddInt32(&skipped, 1)
				return nil
			}
			atomic.AddInt32(&indexed, 1)
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.FilesIndexed = int(indexed)
	stats.FilesSkipped = int(skipped)
	stats.FilesFailed = int(failed)
	sort.Strings(stats.ErrorMessages)
	return results, nil
}

// processFile reads one file and produces its size-based fragments followed
// by its semantic ones. Oversized, binary and blank files are skipped.
func (idx *Indexer) processFile(f sourceFile, cfg *Config) (*fileResult, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return nil, err
	}
	if info.Size() > cfg.MaxFileSize {
		idx.log.Debug("skipping large file", "file", f.relPath, "size", info.Size())
		return &fileResult{skipped: true}, nil
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		idx.log.Debug("skipping non-utf8 file", "file", f.relPath)
		return &fileResult{skipped: true}, nil
	}
	content := string(data)
	if strings.TrimSpace(content) == "" {
		return &fileResult{skipped: true}, nil
	}

	meta := types.Metadata{
		FilePath: f.relPath,
		FileType: f.ext,
		FileName: filepath.Base(f.path),
		Language: f.language,
	}

	frags, err := idx.chunker.Chunk(content, meta, f.kind)
	if err != nil {
		return nil, err
	}
	res := &fileResult{fragments: frags}

	if f.kind == types.KindCode && !cfg.DisableSemantic && idx.parser != nil {
		semantic := idx.chunker.ChunkSemantic(content, meta, idx.parser)
		res.fragments = append(res.fragments, semantic...)
		res.semantic = len(semantic)
	}
	if len(res.fragments) == 0 {
		res.skipped = true
	}
	return res, nil
}
