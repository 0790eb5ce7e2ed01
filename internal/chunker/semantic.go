package chunker

import (
	"strings"

	"github.com/dshills/coderag/internal/parser"
	"github.com/dshills/coderag/pkg/types"
)

// SemanticExtensions lists the file types that get definition-level fragments
var SemanticExtensions = map[string]bool{
	".py":   true,
	".js":   true,
	".ts":   true,
	".java": true,
	".go":   true,
}

// ChunkSemantic creates one fragment per function and class definition the
// parser reports. These fragments are in addition to the size-based ones.
// Files whose type is not in SemanticExtensions yield nothing, as do
// definitions without both line bounds.
func (c *Chunker) ChunkSemantic(content string, meta types.Metadata, p parser.StructuralParser) []types.Fragment {
	if p == nil || !SemanticExtensions[strings.ToLower(meta.FileType)] {
		return nil
	}

	result := p.Parse(content, meta.Language)
	if result == nil {
		return nil
	}
	lines := strings.Split(content, "\n")

	functions := make([]types.Fragment, 0, len(result.Functions))
	for i := range result.Functions {
		def := &result.Functions[i]
		body, ok := sliceLines(lines, def)
		if !ok {
			continue
		}
		m := meta.Clone()
		m.ChunkType = types.ChunkFunction
		m.FunctionName = def.Name
		m.Docstring = def.Docstring
		m.LinesOfCode = def.LineEnd - def.LineStart + 1
		functions = append(functions, types.Fragment{Content: body, Metadata: m})
	}

	classes := make([]types.Fragment, 0, len(result.Classes))
	for i := range result.Classes {
		def := &result.Classes[i]
		body, ok := sliceLines(lines, def)
		if !ok {
			continue
		}
		m := meta.Clone()
		m.ChunkType = types.ChunkClass
		m.ClassName = def.Name
		m.Docstring = def.Docstring
		m.Methods = append([]string(nil), def.Methods...)
		m.LinesOfCode = def.LineEnd - def.LineStart + 1
		classes = append(classes, types.Fragment{Content: body, Metadata: m})
	}

	number(functions)
	number(classes)
	return append(functions, classes...)
}

// sliceLines returns the 1-based inclusive line range of def
func sliceLines(lines []string, def *types.Definition) (string, bool) {
	if !def.HasBounds() || def.LineStart > len(lines) || def.LineEnd < def.LineStart {
		return "", false
	}
	end := def.LineEnd
	if end > len(lines) {
		end = len(lines)
	}
	body := strings.Join(lines[def.LineStart-1:end], "\n")
	if strings.TrimSpace(body) == "" {
		return "", false
	}
	return body, true
}

// number assigns contiguous chunk indices among siblings of one chunk type
func number(frags []types.Fragment) {
	for i := range frags {
		frags[i].Metadata.ChunkIndex = i
		frags[i].Metadata.TotalChunks = len(frags)
	}
}
