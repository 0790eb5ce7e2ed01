package retriever

import (
	"strings"

	"github.com/dshills/coderag/pkg/types"
)

// strategyRules is evaluated in order; the first rule with a matching
// keyword wins
var strategyRules = []struct {
	strategy types.Strategy
	keywords []string
}{
	{types.StrategyCodeSearch, []string{"function", "class", "method", "implement", "code", "example"}},
	{types.StrategyAPISearch, []string{"api", "endpoint", "request", "response", "parameter"}},
	{types.StrategyHybrid, []string{"how to", "what is", "explain", "documentation", "guide"}},
}

// Select maps a query to a retrieval strategy by case-insensitive substring
// matching. Queries matching no rule get StrategyGeneral.
func Select(query string) types.Strategy {
	q := strings.ToLower(query)
	for _, rule := range strategyRules {
		for _, kw := range rule.keywords {
			if strings.Contains(q, kw) {
				return rule.strategy
			}
		}
	}
	return types.StrategyGeneral
}

var languageHints = []string{"python", "javascript", "java", "typescript", "c++", "go"}

var synonyms = []struct {
	term     string
	expanded []string
}{
	{"function", []string{"function", "method", "def", "func"}},
	{"class", []string{"class", "object", "struct", "type"}},
	{"api", []string{"API", "interface", "endpoint", "service"}},
	{"error", []string{"error", "exception", "bug", "issue"}},
	{"import", []string{"import", "include", "require", "using"}},
}

// Enhance appends language hints and synonym expansions to the query before
// it is embedded. Matching is substring based, so "javascript" also hints
// "java". A query with nothing to add is returned unchanged.
func Enhance(query string) string {
	q := strings.ToLower(query)
	var extra []string

	for _, lang := range languageHints {
		if strings.Contains(q, lang) {
			extra = append(extra, lang+" programming language")
		}
	}
	for _, s := range synonyms {
		if strings.Contains(q, s.term) {
			extra = append(extra, s.expanded...)
		}
	}

	if len(extra) == 0 {
		return query
	}
	return query + " " + strings.Join(extra, " ")
}
