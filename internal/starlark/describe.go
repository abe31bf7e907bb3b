package starlark

import (
	"path/filepath"
	"strings"

	"go.starlark.net/syntax"
)

// Function describes an exported function of a script library.
type Function struct {
	Name      string
	Args      []string // argument names, with defaults like "x=None"
	Docstring string
	Line      int
}

// Signature renders the function as name(args).
func (f *Function) Signature() string {
	return f.Name + "(" + strings.Join(f.Args, ", ") + ")"
}

// Describe statically parses a script and lists its exported functions
// without executing it.
func Describe(filename string, content []byte) ([]*Function, error) {
	f, err := syntax.Parse(filename, content, 0)
	if err != nil {
		return nil, &LoadError{File: filename, Message: err.Error()}
	}

	var fns []*Function
	for _, stmt := range f.Stmts {
		def, ok := stmt.(*syntax.DefStmt)
		if !ok || strings.HasPrefix(def.Name.Name, "_") {
			continue
		}
		fns = append(fns, &Function{
			Name:      def.Name.Name,
			Args:      params(def.Params),
			Docstring: docstring(def.Body),
			Line:      int(def.Name.NamePos.Line),
		})
	}
	return fns, nil
}

// LibraryName derives a library name from a script path.
func LibraryName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func params(ps []syntax.Expr) []string {
	var args []string
	for _, param := range ps {
		switch p := param.(type) {
		case *syntax.Ident:
			args = append(args, p.Name)
		case *syntax.BinaryExpr:
			if ident, ok := p.X.(*syntax.Ident); ok && p.Op == syntax.EQ {
				args = append(args, ident.Name+"="+exprString(p.Y))
			}
		case *syntax.UnaryExpr:
			ident, ok := p.X.(*syntax.Ident)
			if !ok {
				continue
			}
			switch p.Op {
			case syntax.STAR:
				args = append(args, "*"+ident.Name)
			case syntax.STARSTAR:
				args = append(args, "**"+ident.Name)
			}
		}
	}
	return args
}

// docstring returns the leading string literal of a function body.
func docstring(body []syntax.Stmt) string {
	if len(body) == 0 {
		return ""
	}
	stmt, ok := body[0].(*syntax.ExprStmt)
	if !ok {
		return ""
	}
	lit, ok := stmt.X.(*syntax.Literal)
	if !ok || lit.Token != syntax.STRING {
		return ""
	}
	s, _ := lit.Value.(string)
	return strings.TrimSpace(s)
}

func exprString(expr syntax.Expr) string {
	switch e := expr.(type) {
	case *syntax.Literal:
		return e.Raw
	case *syntax.Ident:
		return e.Name
	case *syntax.ListExpr:
		return "[]"
	case *syntax.DictExpr:
		return "{}"
	case *syntax.TupleExpr:
		return "()"
	case *syntax.UnaryExpr:
		if e.Op == syntax.MINUS {
			return "-" + exprString(e.X)
		}
		return exprString(e.X)
	}
	return "..."
}
