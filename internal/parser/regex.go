package parser

import (
	"regexp"
	"sort"
	"strings"

	"github.com/dshills/coderag/pkg/types"
)

// blockStyle tells the regex parser how to find where a definition ends
type blockStyle int

const (
	blockBraces blockStyle = iota
	blockIndent
	blockEndKeyword
)

type languagePatterns struct {
	functions []*regexp.Regexp
	classes   []*regexp.Regexp
	// methods match class members that the function patterns miss (e.g. JS class bodies)
	methods []*regexp.Regexp
	imports []*regexp.Regexp
	block   blockStyle
	// docComment is the line prefix for doc comments preceding a definition
	docComment string
}

var (
	jsPatterns = &languagePatterns{
		functions: []*regexp.Regexp{
			regexp.MustCompile(`(?m)^[ \t]*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*(\w+)\s*\(`),
			regexp.MustCompile(`(?m)^[ \t]*(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s+)?(?:function\b|\([^)]*\)\s*=>|\w+\s*=>)`),
		},
		classes: []*regexp.Regexp{
			regexp.MustCompile(`(?m)^[ \t]*(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+(\w+)`),
		},
		methods: []*regexp.Regexp{
			regexp.MustCompile(`(?m)^[ \t]+(?:static\s+)?(?:async\s+)?(?:get\s+|set\s+)?(\w+)\s*\([^)]*\)\s*\{`),
		},
		imports: []*regexp.Regexp{
			regexp.MustCompile(`(?m)^\s*import\s+.*?from\s+['"]([^'"]+)['"]`),
			regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`),
		},
		block:      blockBraces,
		docComment: "*",
	}

	registry = map[string]*languagePatterns{
		"python": {
			functions: []*regexp.Regexp{
				regexp.MustCompile(`(?m)^[ \t]*(?:async\s+)?def\s+(\w+)\s*\(`),
			},
			classes: []*regexp.Regexp{
				regexp.MustCompile(`(?m)^[ \t]*class\s+(\w+)`),
			},
			imports: []*regexp.Regexp{
				regexp.MustCompile(`(?m)^\s*import\s+([\w.]+)`),
				regexp.MustCompile(`(?m)^\s*from\s+([\w.]+)\s+import`),
			},
			block: blockIndent,
		},
		"javascript": jsPatterns,
		"typescript": jsPatterns,
		"java": {
			functions: []*regexp.Regexp{
				regexp.MustCompile(`(?m)^[ \t]*(?:(?:public|private|protected|static|final|abstract|synchronized|native)\s+)*[\w<>\[\],]+\s+(\w+)\s*\([^)]*\)\s*(?:throws\s+[\w.,\s]+)?\{`),
			},
			classes: []*regexp.Regexp{
				regexp.MustCompile(`(?m)^[ \t]*(?:(?:public|private|protected|abstract|final|static)\s+)*(?:class|interface|enum)\s+(\w+)`),
			},
			imports: []*regexp.Regexp{
				regexp.MustCompile(`(?m)^\s*import\s+(?:static\s+)?([\w.*]+)\s*;`),
			},
			block:      blockBraces,
			docComment: "*",
		},
		"go": {
			functions: []*regexp.Regexp{
				regexp.MustCompile(`(?m)^func\s+(?:\([^)]*\)\s*)?(\w+)\s*[\[(]`),
			},
			classes: []*regexp.Regexp{
				regexp.MustCompile(`(?m)^type\s+(\w+)\s+(?:struct|interface)\b`),
			},
			imports: []*regexp.Regexp{
				regexp.MustCompile(`(?m)^\s*import\s+(?:\w+\s+)?"([^"]+)"`),
				regexp.MustCompile(`(?m)^\s+(?:\w+\s+)?"([^"]+)"\s*$`),
			},
			block:      blockBraces,
			docComment: "//",
		},
		"rust": {
			functions: []*regexp.Regexp{
				regexp.MustCompile(`(?m)^[ \t]*(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?(?:unsafe\s+)?fn\s+(\w+)`),
			},
			classes: []*regexp.Regexp{
				regexp.MustCompile(`(?m)^[ \t]*(?:pub(?:\([^)]*\))?\s+)?(?:struct|enum|trait)\s+(\w+)`),
			},
			imports: []*regexp.Regexp{
				regexp.MustCompile(`(?m)^\s*use\s+([\w:]+)`),
			},
			block:      blockBraces,
			docComment: "///",
		},
		"ruby": {
			functions: []*regexp.Regexp{
				regexp.MustCompile(`(?m)^[ \t]*def\s+(?:self\.)?(\w+[?!=]?)`),
			},
			classes: []*regexp.Regexp{
				regexp.MustCompile(`(?m)^[ \t]*(?:class|module)\s+(\w+)`),
			},
			imports: []*regexp.Regexp{
				regexp.MustCompile(`(?m)^\s*require(?:_relative)?\s+['"]([^'"]+)['"]`),
			},
			block:      blockEndKeyword,
			docComment: "#",
		},
		"php": {
			functions: []*regexp.Regexp{
				regexp.MustCompile(`(?m)^[ \t]*(?:(?:public|private|protected|static|abstract|final)\s+)*function\s+(\w+)\s*\(`),
			},
			classes: []*regexp.Regexp{
				regexp.MustCompile(`(?m)^[ \t]*(?:abstract\s+|final\s+)?(?:class|interface|trait)\s+(\w+)`),
			},
			imports: []*regexp.Regexp{
				regexp.MustCompile(`(?m)^\s*use\s+([\w\\]+)\s*;`),
				regexp.MustCompile(`(?:require|include)(?:_once)?\s*\(?\s*['"]([^'"]+)['"]`),
			},
			block:      blockBraces,
			docComment: "*",
		},
		"cpp": {
			functions: []*regexp.Regexp{
				regexp.MustCompile(`(?m)^[ \t]*(?:[\w:<>*&]+[ \t]+)+[*&]?(\w+)\s*\([^;{)]*\)\s*(?:const\s*)?\{`),
			},
			classes: []*regexp.Regexp{
				regexp.MustCompile(`(?m)^[ \t]*(?:class|struct)\s+(\w+)`),
			},
			imports: []*regexp.Regexp{
				regexp.MustCompile(`(?m)^\s*#include\s+[<"]([^>"]+)[>"]`),
			},
			block:      blockBraces,
			docComment: "*",
		},
	}

	defaultPatterns = &languagePatterns{
		functions: []*regexp.Regexp{
			regexp.MustCompile(`(?m)(?:def|function|func)\s+(\w+)\s*\(`),
		},
		classes: []*regexp.Regexp{
			regexp.MustCompile(`(?m)(?:class|struct)\s+(\w+)`),
		},
		block: blockBraces,
	}

	// Words the loose C-family method patterns pick up from control flow
	controlKeywords = map[string]bool{
		"if": true, "for": true, "while": true, "switch": true, "catch": true,
		"return": true, "new": true, "else": true, "synchronized": true,
		"function": true,
	}
)

func init() {
	registry["c"] = registry["cpp"]
	registry["c++"] = registry["cpp"]
}

// RegexParser finds definitions with per-language regular expressions.
// Boundaries are approximate: nested or multi-line signatures may be
// mis-detected, and a definition whose end cannot be located gets LineEnd 0.
type RegexParser struct{}

// NewRegexParser creates a new RegexParser
func NewRegexParser() *RegexParser {
	return &RegexParser{}
}

// Parse implements StructuralParser
func (r *RegexParser) Parse(content, language string) *types.ParseResult {
	result := &types.ParseResult{}
	if strings.TrimSpace(content) == "" {
		return result
	}

	pats, ok := registry[strings.ToLower(language)]
	if !ok {
		pats = defaultPatterns
	}

	src := newSource(content)

	result.Functions = src.definitions(pats.functions, pats)
	result.Classes = src.definitions(pats.classes, pats)

	for i := range result.Classes {
		cls := &result.Classes[i]
		if cls.LineEnd == 0 {
			continue
		}
		seen := make(map[string]bool)
		for _, fn := range result.Functions {
			if fn.LineStart > cls.LineStart && fn.LineStart <= cls.LineEnd && !seen[fn.Name] {
				seen[fn.Name] = true
				cls.Methods = append(cls.Methods, fn.Name)
			}
		}
		for _, m := range src.matches(pats.methods) {
			if m.line > cls.LineStart && m.line <= cls.LineEnd && !seen[m.name] && !controlKeywords[m.name] {
				seen[m.name] = true
				cls.Methods = append(cls.Methods, m.name)
			}
		}
	}

	seenImport := make(map[string]bool)
	for _, re := range pats.imports {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			if !seenImport[m[1]] {
				seenImport[m[1]] = true
				result.Imports = append(result.Imports, m[1])
			}
		}
	}

	return result
}

type match struct {
	name   string
	offset int
	line   int
}

type source struct {
	content string
	lines   []string
	// lineStarts[i] is the byte offset of line i+1
	lineStarts []int
}

func newSource(content string) *source {
	s := &source{content: content, lines: strings.Split(content, "\n")}
	s.lineStarts = make([]int, 0, len(s.lines))
	off := 0
	for _, l := range s.lines {
		s.lineStarts = append(s.lineStarts, off)
		off += len(l) + 1
	}
	return s
}

// lineAt returns the 1-based line containing the byte offset
func (s *source) lineAt(offset int) int {
	return sort.Search(len(s.lineStarts), func(i int) bool { return s.lineStarts[i] > offset })
}

func (s *source) matches(res []*regexp.Regexp) []match {
	var out []match
	for _, re := range res {
		for _, loc := range re.FindAllStringSubmatchIndex(s.content, -1) {
			out = append(out, match{
				name:   s.content[loc[2]:loc[3]],
				offset: loc[0],
				line:   s.lineAt(loc[2]),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].offset < out[j].offset })
	return out
}

func (s *source) definitions(res []*regexp.Regexp, pats *languagePatterns) []types.Definition {
	var defs []types.Definition
	seen := make(map[int]bool)
	for _, m := range s.matches(res) {
		if controlKeywords[m.name] || seen[m.line] {
			continue
		}
		seen[m.line] = true

		def := types.Definition{Name: m.name, LineStart: m.line}
		switch pats.block {
		case blockIndent:
			def.LineEnd = s.indentEnd(m.line)
			def.Docstring = s.pythonDocstring(m.line, def.LineEnd)
		case blockEndKeyword:
			def.LineEnd = s.keywordEnd(m.line)
			def.Docstring = s.precedingComment(m.line, pats.docComment)
		default:
			def.LineEnd = s.braceEnd(m.offset)
			def.Docstring = s.precedingComment(m.line, pats.docComment)
		}
		defs = append(defs, def)
	}
	return defs
}

// braceEnd finds the line of the brace closing the first block opened after
// offset. A ';' before any '{' means a declaration without a body.
func (s *source) braceEnd(offset int) int {
	c := s.content
	i := offset
	for i < len(c) && c[i] != '{' {
		if c[i] == ';' {
			return 0
		}
		i++
	}
	if i >= len(c) {
		return 0
	}

	depth := 0
	for ; i < len(c); i++ {
		switch c[i] {
		case '"', '\'', '`':
			i = skipString(c, i)
		case '/':
			if i+1 < len(c) && c[i+1] == '/' {
				for i < len(c) && c[i] != '\n' {
					i++
				}
			} else if i+1 < len(c) && c[i+1] == '*' {
				end := strings.Index(c[i+2:], "*/")
				if end < 0 {
					return 0
				}
				i += end + 3
			}
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s.lineAt(i)
			}
		}
	}
	return 0
}

// skipString returns the index of the closing quote of the literal starting at i
func skipString(c string, i int) int {
	q := c[i]
	for j := i + 1; j < len(c); j++ {
		switch c[j] {
		case '\\':
			j++
		case q:
			return j
		case '\n':
			if q != '`' {
				return j
			}
		}
	}
	return len(c) - 1
}

func indentOf(line string) int {
	n := 0
	for _, r := range line {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}

// indentEnd returns the last non-blank line of an indentation block whose
// header is on line start (1-based). Open parentheses in a multi-line
// signature keep the header going.
func (s *source) indentEnd(start int) int {
	base := indentOf(s.lines[start-1])
	parens := strings.Count(s.lines[start-1], "(") - strings.Count(s.lines[start-1], ")")
	end := start
	for i := start; i < len(s.lines); i++ {
		line := s.lines[i]
		if parens > 0 {
			parens += strings.Count(line, "(") - strings.Count(line, ")")
			end = i + 1
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if indentOf(line) <= base {
			break
		}
		end = i + 1
	}
	return end
}

// keywordEnd finds the "end" line matching the header's indentation
func (s *source) keywordEnd(start int) int {
	header := s.lines[start-1]
	if strings.HasSuffix(strings.TrimSpace(header), "; end") || strings.HasSuffix(strings.TrimSpace(header), " end") {
		return start
	}
	base := indentOf(header)
	for i := start; i < len(s.lines); i++ {
		trimmed := strings.TrimSpace(s.lines[i])
		if (trimmed == "end" || strings.HasPrefix(trimmed, "end ")) && indentOf(s.lines[i]) == base {
			return i + 1
		}
	}
	return 0
}

// pythonDocstring returns the triple-quoted string opening the body, if any
func (s *source) pythonDocstring(start, end int) string {
	// The body begins after the line that closes the signature with ':'
	body := start
	for body <= end && !strings.HasSuffix(strings.TrimSpace(s.lines[body-1]), ":") {
		body++
	}
	for i := body; i < end; i++ {
		trimmed := strings.TrimSpace(s.lines[i])
		if trimmed == "" {
			continue
		}
		quote := ""
		for _, q := range []string{`"""`, `'''`} {
			if strings.HasPrefix(trimmed, q) {
				quote = q
			}
		}
		if quote == "" {
			return ""
		}
		rest := strings.TrimPrefix(trimmed, quote)
		if idx := strings.Index(rest, quote); idx >= 0 {
			return strings.TrimSpace(rest[:idx])
		}
		parts := []string{rest}
		for j := i + 1; j < end; j++ {
			l := strings.TrimSpace(s.lines[j])
			if idx := strings.Index(l, quote); idx >= 0 {
				parts = append(parts, l[:idx])
				return joinComment(parts)
			}
			parts = append(parts, l)
		}
		return ""
	}
	return ""
}

// precedingComment collects the comment block directly above line start.
// Annotations and decorators between the comment and the definition are skipped.
func (s *source) precedingComment(start int, prefix string) string {
	if prefix == "" {
		return ""
	}
	i := start - 2
	for i >= 0 && strings.HasPrefix(strings.TrimSpace(s.lines[i]), "@") {
		i--
	}

	var parts []string
	if prefix == "*" {
		if i < 0 || !strings.HasSuffix(strings.TrimSpace(s.lines[i]), "*/") {
			return ""
		}
		for ; i >= 0; i-- {
			l := strings.TrimSpace(s.lines[i])
			text := strings.TrimSpace(strings.TrimSuffix(strings.TrimLeft(l, "/*"), "*/"))
			if text != "" {
				parts = append([]string{text}, parts...)
			}
			if strings.HasPrefix(l, "/*") {
				return joinComment(parts)
			}
		}
		return ""
	}

	for ; i >= 0; i-- {
		l := strings.TrimSpace(s.lines[i])
		if !strings.HasPrefix(l, prefix) {
			break
		}
		parts = append([]string{strings.TrimSpace(strings.TrimPrefix(l, prefix))}, parts...)
	}
	return joinComment(parts)
}

func joinComment(parts []string) string {
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
