package parser

import (
	"fmt"
	"go/ast"
	goparser "go/parser"
	"go/token"
	"strings"

	"github.com/dshills/coderag/pkg/types"
)

// StructuralParser extracts function and class definitions from source text.
// Implementations never fail: unparseable input yields empty lists so callers
// can degrade to size-based chunking.
type StructuralParser interface {
	Parse(content, language string) *types.ParseResult
}

// Parser dispatches to a grammar-based parser where one exists for the
// language and to the regex parser otherwise
type Parser struct {
	grammars map[string]StructuralParser
	fallback StructuralParser
}

// New creates a Parser with the built-in grammar (Go) and regex fallback
func New() *Parser {
	return &Parser{
		grammars: map[string]StructuralParser{
			"go": NewGoParser(),
		},
		fallback: NewRegexParser(),
	}
}

// Register installs a parser for a language, replacing any existing one
func (p *Parser) Register(language string, sp StructuralParser) {
	p.grammars[strings.ToLower(language)] = sp
}

// Parse implements StructuralParser
func (p *Parser) Parse(content, language string) *types.ParseResult {
	if strings.TrimSpace(content) == "" {
		return &types.ParseResult{}
	}
	if sp, ok := p.grammars[strings.ToLower(language)]; ok {
		return sp.Parse(content, language)
	}
	return p.fallback.Parse(content, language)
}

// GoParser uses go/ast to locate functions, methods and struct/interface types
type GoParser struct{}

// NewGoParser creates a new GoParser
func NewGoParser() *GoParser {
	return &GoParser{}
}

// Parse implements StructuralParser. Methods are reported both as functions and
// in the Methods list of their receiver type.
func (g *GoParser) Parse(content, _ string) *types.ParseResult {
	result := &types.ParseResult{}
	fset := token.NewFileSet()

	file, err := goparser.ParseFile(fset, "", content, goparser.ParseComments)
	if err != nil {
		// Syntax errors are non-fatal - record and continue with the partial AST
		result.AddError(0, fmt.Sprintf("syntax error: %v", err))
	}
	if file == nil {
		return result
	}

	for _, imp := range file.Imports {
		result.Imports = append(result.Imports, strings.Trim(imp.Path.Value, `"`))
	}

	methods := make(map[string][]string)
	classIdx := make(map[string]int)

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			result.Functions = append(result.Functions, types.Definition{
				Name:      d.Name.Name,
				Docstring: docText(d.Doc),
				LineStart: fset.Position(d.Pos()).Line,
				LineEnd:   fset.Position(d.End()).Line,
			})
			if d.Recv != nil && len(d.Recv.List) > 0 {
				recv := receiverType(d.Recv.List[0].Type)
				if recv != "" {
					methods[recv] = append(methods[recv], d.Name.Name)
				}
			}
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				def := types.Definition{
					Name:      ts.Name.Name,
					Docstring: docText(ts.Doc),
					LineStart: fset.Position(ts.Pos()).Line,
					LineEnd:   fset.Position(ts.End()).Line,
				}
				// Ungrouped declarations start at the "type" keyword and carry the doc
				if !d.Lparen.IsValid() {
					def.LineStart = fset.Position(d.Pos()).Line
					if def.Docstring == "" {
						def.Docstring = docText(d.Doc)
					}
				}
				switch t := ts.Type.(type) {
				case *ast.StructType:
				case *ast.InterfaceType:
					if t.Methods != nil {
						for _, m := range t.Methods.List {
							for _, name := range m.Names {
								def.Methods = append(def.Methods, name.Name)
							}
						}
					}
				default:
					continue
				}
				classIdx[def.Name] = len(result.Classes)
				result.Classes = append(result.Classes, def)
			}
		}
	}

	for recv, names := range methods {
		if i, ok := classIdx[recv]; ok {
			result.Classes[i].Methods = append(result.Classes[i].Methods, names...)
		}
	}

	return result
}

// receiverType extracts the receiver type name from a method, unwrapping
// pointers and type parameters
func receiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverType(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		return receiverType(t.X)
	case *ast.IndexListExpr:
		return receiverType(t.X)
	}
	return ""
}

func docText(doc *ast.CommentGroup) string {
	if doc == nil {
		return ""
	}
	return strings.TrimSpace(doc.Text())
}
