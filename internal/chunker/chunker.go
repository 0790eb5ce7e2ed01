package chunker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/coderag/internal/parser"
	"github.com/dshills/coderag/pkg/types"
)

const (
	// DefaultChunkSize is the maximum fragment length in characters
	DefaultChunkSize = 1500

	// DefaultChunkOverlap is the trailing context carried into the next fragment
	DefaultChunkOverlap = 200
)

// ErrInvalidConfig is returned by New for unusable size settings
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// Config controls size-based splitting
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultConfig returns the default chunking configuration
func DefaultConfig() Config {
	return Config{ChunkSize: DefaultChunkSize, ChunkOverlap: DefaultChunkOverlap}
}

// Chunker splits file content into ordered, annotated fragments
type Chunker struct {
	cfg       Config
	splitters map[string]*splitter
	fallback  *splitter
	docs      *splitter
}

// New creates a Chunker with one splitter per known language
func New(cfg Config) (*Chunker, error) {
	if cfg.ChunkSize <= 0 || cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("%w: chunk_size=%d chunk_overlap=%d", ErrInvalidConfig, cfg.ChunkSize, cfg.ChunkOverlap)
	}

	c := &Chunker{
		cfg:       cfg,
		splitters: make(map[string]*splitter, len(languageSeparators)),
		fallback:  &splitter{separators: genericSeparators, size: cfg.ChunkSize, overlap: cfg.ChunkOverlap},
		docs:      &splitter{separators: docSeparators, size: cfg.ChunkSize, overlap: cfg.ChunkOverlap},
	}
	for lang, seps := range languageSeparators {
		c.splitters[lang] = &splitter{separators: seps, size: cfg.ChunkSize, overlap: cfg.ChunkOverlap}
	}
	return c, nil
}

// Config returns the chunker's size settings
func (c *Chunker) Config() Config {
	return c.cfg
}

// Chunk splits content according to kind
func (c *Chunker) Chunk(content string, meta types.Metadata, kind types.Kind) ([]types.Fragment, error) {
	switch kind {
	case types.KindCode:
		return c.ChunkCode(content, meta), nil
	case types.KindDocumentation:
		return c.ChunkDocumentation(content, meta), nil
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidKind, kind)
	}
}

var (
	functionPattern = regexp.MustCompile(`\b(?:def|function|func|fn)\s+[\w(]`)
	classPattern    = regexp.MustCompile(`\b(?:class|struct|interface)\s+\w+`)
	codeBlock       = regexp.MustCompile("(?s)```.*?```")
	headerPattern   = regexp.MustCompile(`(?m)^#+\s`)
	headerLine      = regexp.MustCompile(`(?m)^(#+\s+.+)$`)
)

// ChunkCode splits source code on the language's separator hierarchy.
// Unknown languages use the generic blank-line/newline/space hierarchy.
func (c *Chunker) ChunkCode(content string, meta types.Metadata) []types.Fragment {
	sp, ok := c.splitters[strings.ToLower(meta.Language)]
	if !ok {
		sp = c.fallback
	}

	pieces := sp.Split(content)
	frags := make([]types.Fragment, len(pieces))
	for i, piece := range pieces {
		m := meta.Clone()
		m.ChunkType = types.ChunkCode
		m.ChunkIndex = i
		m.TotalChunks = len(pieces)
		m.HasFunctions = functionPattern.MatchString(piece)
		m.HasClasses = classPattern.MatchString(piece)
		m.LinesOfCode = strings.Count(piece, "\n") + 1
		m.SyntaxContext = SyntaxContext(piece, meta.Language)
		frags[i] = types.Fragment{Content: piece, Metadata: m}
	}
	return frags
}

// ChunkDocumentation splits prose, preferring markdown section headers as
// boundaries
func (c *Chunker) ChunkDocumentation(content string, meta types.Metadata) []types.Fragment {
	pieces := c.docs.Split(content)
	frags := make([]types.Fragment, len(pieces))
	for i, piece := range pieces {
		m := meta.Clone()
		m.ChunkType = types.ChunkDocumentation
		m.ChunkIndex = i
		m.TotalChunks = len(pieces)
		m.HasCodeBlocks = codeBlock.MatchString(piece)
		m.HasHeaders = headerPattern.MatchString(piece)
		m.SectionHeaders = headerLine.FindAllString(piece, -1)
		frags[i] = types.Fragment{Content: piece, Metadata: m}
	}
	return frags
}

type syntaxPatterns struct {
	imports   *regexp.Regexp
	functions *regexp.Regexp
	classes   *regexp.Regexp
}

var jsSyntax = &syntaxPatterns{
	imports:   regexp.MustCompile(`(?m)^(?:import|const|let|var)\s+.*?(?:from|require)`),
	functions: regexp.MustCompile(`(?:function|const|let|var)\s+(\w+)\s*=?\s*(?:\(|=>)`),
	classes:   regexp.MustCompile(`class\s+(\w+)`),
}

var syntaxByLanguage = map[string]*syntaxPatterns{
	"python": {
		imports:   regexp.MustCompile(`(?m)^(?:from|import)\s+[\w.]+`),
		functions: regexp.MustCompile(`(?m)^def\s+(\w+)`),
		classes:   regexp.MustCompile(`(?m)^class\s+(\w+)`),
	},
	"javascript": jsSyntax,
	"typescript": jsSyntax,
	"java": {
		imports:   regexp.MustCompile(`(?m)^import\s+[\w.]+`),
		functions: regexp.MustCompile(`(?:public|private|protected)?\s*\w+\s+(\w+)\s*\(`),
		classes:   regexp.MustCompile(`(?:public|private)?\s*class\s+(\w+)`),
	},
	"go": {
		imports:   regexp.MustCompile(`(?m)^(?:import\s+)?(?:\w+\s+)?"[\w./-]+"$`),
		functions: regexp.MustCompile(`(?m)^func\s+(?:\([^)]*\)\s*)?(\w+)`),
		classes:   regexp.MustCompile(`(?m)^type\s+(\w+)\s+(?:struct|interface)`),
	},
}

// SyntaxContext extracts imports, top-level definition names and API call
// sites from a code fragment. Languages without patterns get an empty context.
func SyntaxContext(chunk, language string) *types.SyntaxContext {
	sc := &types.SyntaxContext{}
	p, ok := syntaxByLanguage[strings.ToLower(language)]
	if !ok {
		return sc
	}

	for _, imp := range p.imports.FindAllString(chunk, -1) {
		sc.Imports = append(sc.Imports, strings.TrimSpace(imp))
	}
	sc.FunctionDefinitions = submatches(p.functions, chunk)
	sc.ClassDefinitions = submatches(p.classes, chunk)
	sc.APIReferences = parser.UniqueReferences(parser.ExtractAPIReferences(chunk))
	return sc
}

func submatches(re *regexp.Regexp, s string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		out = append(out, m[1])
	}
	return out
}
