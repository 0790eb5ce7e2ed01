// Package parser locates function and class definitions in source files.
//
// Two StructuralParser implementations are provided:
//
//   - GoParser walks the go/ast tree and reports exact boundaries for
//     functions, methods, structs and interfaces.
//   - RegexParser uses per-language patterns (python, javascript, typescript,
//     java, go, rust, ruby, php, c/cpp). Its boundaries are best-effort:
//     indentation for Python, brace matching for C-family languages and
//     "end" keywords for Ruby.
//
// Parser dispatches by language:
//
//	p := parser.New()
//	res := p.Parse(src, "python")
//	for _, fn := range res.Functions {
//	    fmt.Println(fn.Name, fn.LineStart, fn.LineEnd)
//	}
//
// Parsing never fails. Syntax errors are recorded in ParseResult.Errors and
// whatever definitions could be found are still returned, so chunking can
// fall back to size-based fragments.
package parser
