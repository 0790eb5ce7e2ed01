package types

import (
	"fmt"
	"strings"
)

// Strategy selects the retrieval path for a query
type Strategy int

const (
	StrategyGeneral Strategy = iota
	StrategyCodeSearch
	StrategyAPISearch
	StrategyHybrid
)

var strategyNames = map[Strategy]string{
	StrategyGeneral:    "general",
	StrategyCodeSearch: "code_search",
	StrategyAPISearch:  "api_search",
	StrategyHybrid:     "hybrid",
}

// String returns the wire name of the strategy
func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// Strategies lists every strategy in declaration order
func Strategies() []Strategy {
	return []Strategy{StrategyGeneral, StrategyCodeSearch, StrategyAPISearch, StrategyHybrid}
}

// ParseStrategy converts a wire name into a Strategy
func ParseStrategy(name string) (Strategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return StrategyGeneral, fmt.Errorf("%w: %q", ErrInvalidStrategy, name)
}
