package types

// Definition is a function or class located by a structural parser.
// Line numbers are 1-based and inclusive; zero means the bound is unknown.
type Definition struct {
	Name      string
	Docstring string
	LineStart int
	LineEnd   int
	Methods   []string // classes only
}

// HasBounds reports whether both line bounds are known
func (d *Definition) HasBounds() bool {
	return d.LineStart > 0 && d.LineEnd > 0
}

// ParseResult represents the structural outline of a source file
type ParseResult struct {
	Functions []Definition
	Classes   []Definition
	Imports   []string

	// Errors encountered during parsing; never fatal
	Errors []ParseError
}

// ParseError represents an error that occurred during parsing
type ParseError struct {
	Line    int
	Message string
}

// Error implements the error interface
func (pe *ParseError) Error() string {
	return pe.Message
}

// HasErrors returns true if any parsing errors occurred
func (pr *ParseResult) HasErrors() bool {
	return len(pr.Errors) > 0
}

// AddError adds a parsing error to the result
func (pr *ParseResult) AddError(line int, msg string) {
	pr.Errors = append(pr.Errors, ParseError{Line: line, Message: msg})
}
