package parser

import (
	"regexp"
	"sort"
	"strings"
)

// Reference kinds reported by ExtractAPIReferences
const (
	RefMethodCall  = "method_call"
	RefCall        = "call"
	RefConstructor = "constructor"
)

// APIReference is a call site found in source text
type APIReference struct {
	Text   string // matched text without the opening parenthesis, e.g. "requests.get"
	Kind   string
	Offset int // byte offset of the match
}

var (
	methodCallPattern  = regexp.MustCompile(`(\w+)\.(\w+)\(`)
	callPattern        = regexp.MustCompile(`(\w+)\(`)
	constructorPattern = regexp.MustCompile(`new\s+(\w+)\(`)

	// words that introduce a definition rather than a call
	definitionWords = map[string]bool{
		"def": true, "func": true, "function": true, "fn": true, "class": true,
	}
)

// ExtractAPIReferences finds obj.method(, func( and new Class( call sites.
// A plain call is not reported again when it is the method part of a method
// call or the class of a constructor. Definitions and control keywords are
// skipped. Results are ordered by offset.
func ExtractAPIReferences(code string) []APIReference {
	var refs []APIReference
	covered := make(map[int]bool)

	for _, m := range methodCallPattern.FindAllStringSubmatchIndex(code, -1) {
		refs = append(refs, APIReference{Text: code[m[0] : m[1]-1], Kind: RefMethodCall, Offset: m[0]})
		covered[m[4]] = true
	}
	for _, m := range constructorPattern.FindAllStringSubmatchIndex(code, -1) {
		text := "new " + code[m[2]:m[3]]
		refs = append(refs, APIReference{Text: text, Kind: RefConstructor, Offset: m[0]})
		covered[m[2]] = true
	}
	for _, m := range callPattern.FindAllStringSubmatchIndex(code, -1) {
		start := m[2]
		name := code[m[2]:m[3]]
		if covered[start] || controlKeywords[name] || (start > 0 && code[start-1] == '.') {
			continue
		}
		if definitionWords[precedingWord(code, start)] {
			continue
		}
		refs = append(refs, APIReference{Text: name, Kind: RefCall, Offset: m[0]})
	}

	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Offset < refs[j].Offset })
	return refs
}

// precedingWord returns the identifier before offset, skipping whitespace
func precedingWord(s string, offset int) string {
	end := offset
	for end > 0 && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	start := end
	for start > 0 && isWordByte(s[start-1]) {
		start--
	}
	return s[start:end]
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// UniqueReferences returns the distinct reference texts in first-seen order
func UniqueReferences(refs []APIReference) []string {
	seen := make(map[string]bool, len(refs))
	var out []string
	for _, r := range refs {
		text := strings.Join(strings.Fields(r.Text), " ")
		if !seen[text] {
			seen[text] = true
			out = append(out, text)
		}
	}
	return out
}
