package chunker

import (
	"strings"
	"unicode/utf8"
)

// Separator hierarchies, most to least structural. The trailing "" splits
// between characters as a last resort.
var (
	genericSeparators = []string{"\n\n", "\n", " ", ""}

	docSeparators = []string{"\n## ", "\n### ", "\n#### ", "\n\n", "\n", " ", ""}

	languageSeparators = map[string][]string{
		"python": {"\nclass ", "\ndef ", "\n\tdef ", "\n\n", "\n", " ", ""},
		"javascript": {
			"\nfunction ", "\nconst ", "\nlet ", "\nvar ", "\nclass ",
			"\nif ", "\nfor ", "\nwhile ", "\nswitch ", "\ncase ", "\ndefault ",
			"\n\n", "\n", " ", "",
		},
		"go": {
			"\nfunc ", "\nvar ", "\nconst ", "\ntype ",
			"\nif ", "\nfor ", "\nswitch ", "\ncase ",
			"\n\n", "\n", " ", "",
		},
		"java": {
			"\nclass ", "\npublic ", "\nprotected ", "\nprivate ", "\nstatic ",
			"\nif ", "\nfor ", "\nwhile ", "\nswitch ", "\ncase ",
			"\n\n", "\n", " ", "",
		},
		"cpp": {
			"\nclass ", "\nvoid ", "\nint ", "\nfloat ", "\ndouble ",
			"\nif ", "\nfor ", "\nwhile ", "\nswitch ", "\ncase ",
			"\n\n", "\n", " ", "",
		},
		"php": {
			"\nfunction ", "\nclass ",
			"\nif ", "\nforeach ", "\nwhile ", "\ndo ", "\nswitch ", "\ncase ",
			"\n\n", "\n", " ", "",
		},
		"ruby": {
			"\ndef ", "\nclass ",
			"\nif ", "\nunless ", "\nwhile ", "\nfor ", "\ndo ", "\nbegin ", "\nrescue ",
			"\n\n", "\n", " ", "",
		},
		"rust": {
			"\nfn ", "\nconst ", "\nlet ",
			"\nif ", "\nwhile ", "\nfor ", "\nloop ", "\nmatch ",
			"\n\n", "\n", " ", "",
		},
	}
)

func init() {
	languageSeparators["typescript"] = languageSeparators["javascript"]
	languageSeparators["c"] = languageSeparators["cpp"]
}

// splitter recursively splits text on a separator hierarchy so that no
// piece exceeds size characters, carrying up to overlap characters of
// trailing context into the next piece.
type splitter struct {
	separators []string
	size       int
	overlap    int
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}

// Split returns whitespace-trimmed, non-empty pieces in source order
func (s *splitter) Split(text string) []string {
	return s.split(text, s.separators)
}

func (s *splitter) split(text string, separators []string) []string {
	// Use the first separator that occurs in the text
	sep := separators[len(separators)-1]
	var rest []string
	for i, candidate := range separators {
		if candidate == "" {
			sep = candidate
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var final []string
	var good []string
	for _, piece := range splitKeepingSeparator(text, sep) {
		if length(piece) < s.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			if trimmed := strings.TrimSpace(piece); trimmed != "" {
				final = append(final, trimmed)
			}
		} else {
			final = append(final, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good)...)
	}
	return final
}

// splitKeepingSeparator splits text on sep, attaching each separator to the
// piece that follows it. Empty pieces are dropped.
func splitKeepingSeparator(text, sep string) []string {
	var parts []string
	if sep == "" {
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}
	raw := strings.Split(text, sep)
	for i, p := range raw {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// merge combines small pieces into chunks of at most size characters.
// When a chunk is emitted, pieces are dropped from the front until at most
// overlap characters remain to seed the next chunk.
func (s *splitter) merge(pieces []string) []string {
	var docs []string
	var current []string
	total := 0

	for _, p := range pieces {
		n := length(p)
		if total+n > s.size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.overlap || (total+n > s.size && total > 0) {
				total -= length(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}

	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}
