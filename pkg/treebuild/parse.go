package treebuild

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/blockscope/blockscope/pkg/block"
)

// symbol is a class or function found in a file, before it gets an id.
type symbol struct {
	name      string
	kind      block.Kind
	startLine int
	endLine   int
	text      string
	metrics   *block.Metrics
	children  []symbol
}

// parseSymbols returns the top-level classes (with their methods) and
// functions of a source file, in source order.
func parseSymbols(ctx context.Context, language string, src []byte) ([]symbol, error) {
	g, ok := grammars[language]
	if !ok {
		return nil, nil
	}
	parser := sitter.NewParser()
	parser.SetLanguage(g.lang)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", language, err)
	}
	root := tree.RootNode()

	var syms []symbol
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := unwrap(g, root.NamedChild(i))
		if child == nil {
			continue
		}
		switch {
		case g.classes[child.Type()]:
			cls := newSymbol(g, child, src, block.KindClass)
			cls.children = methodsOf(g, child, src)
			syms = append(syms, cls)
		case g.functions[child.Type()]:
			syms = append(syms, newSymbol(g, child, src, block.KindFunction))
		case child.Type() == "lexical_declaration":
			syms = append(syms, arrowFunctions(g, child, src)...)
		}
	}

	sort.SliceStable(syms, func(i, j int) bool { return syms[i].startLine < syms[j].startLine })
	return syms, nil
}

// unwrap returns the declaration inside decorators and export statements.
func unwrap(g *grammar, n *sitter.Node) *sitter.Node {
	if n == nil || !g.wrappers[n.Type()] {
		return n
	}
	for _, field := range []string{"definition", "declaration"} {
		if inner := n.ChildByFieldName(field); inner != nil {
			return inner
		}
	}
	return n
}

func newSymbol(g *grammar, n *sitter.Node, src []byte, kind block.Kind) symbol {
	s := symbol{
		name:      symbolName(n, src),
		kind:      kind,
		startLine: int(n.StartPoint().Row) + 1,
		endLine:   int(n.EndPoint().Row) + 1,
		text:      n.Content(src),
	}
	if kind == block.KindFunction {
		s.metrics = functionMetrics(g, n, src)
	}
	return s
}

func symbolName(n *sitter.Node, src []byte) string {
	name := "<anonymous>"
	if id := n.ChildByFieldName("name"); id != nil {
		name = id.Content(src)
	}
	if n.Type() == "method_declaration" {
		if recv := goReceiverType(n, src); recv != "" {
			name = recv + "." + name
		}
	}
	return name
}

// goReceiverType returns T for a Go method declared on T or *T.
func goReceiverType(n *sitter.Node, src []byte) string {
	recv := n.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	for i := 0; i < int(recv.NamedChildCount()); i++ {
		param := recv.NamedChild(i)
		if param.Type() != "parameter_declaration" {
			continue
		}
		typ := param.ChildByFieldName("type")
		if typ == nil {
			return ""
		}
		name := strings.TrimPrefix(typ.Content(src), "*")
		if i := strings.IndexByte(name, '['); i >= 0 {
			name = name[:i]
		}
		return name
	}
	return ""
}

func methodsOf(g *grammar, class *sitter.Node, src []byte) []symbol {
	body := class.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	var methods []symbol
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := unwrap(g, body.NamedChild(i))
		if child != nil && g.methods[child.Type()] {
			methods = append(methods, newSymbol(g, child, src, block.KindFunction))
		}
	}
	return methods
}

// arrowFunctions finds `const name = () => ...` declarations.
func arrowFunctions(g *grammar, decl *sitter.Node, src []byte) []symbol {
	var out []symbol
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		d := decl.NamedChild(i)
		if d.Type() != "variable_declarator" {
			continue
		}
		name, value := d.ChildByFieldName("name"), d.ChildByFieldName("value")
		if name == nil || value == nil || value.Type() != "arrow_function" {
			continue
		}
		out = append(out, symbol{
			name:      name.Content(src),
			kind:      block.KindFunction,
			startLine: int(decl.StartPoint().Row) + 1,
			endLine:   int(decl.EndPoint().Row) + 1,
			text:      decl.Content(src),
			metrics:   functionMetrics(g, value, src),
		})
	}
	return out
}

// functionMetrics computes cyclomatic complexity, line count and parameter
// count for a function node.
func functionMetrics(g *grammar, fn *sitter.Node, src []byte) *block.Metrics {
	return &block.Metrics{
		Complexity: 1 + countDecisions(g, fn, src),
		Lines:      int(fn.EndPoint().Row-fn.StartPoint().Row) + 1,
		Params:     countParams(g, fn, src),
	}
}

func countDecisions(g *grammar, n *sitter.Node, src []byte) int {
	count := 0
	typ := n.Type()
	if slices.Contains(g.decisions, typ) {
		if typ == "binary_expression" || typ == "boolean_operator" {
			if op := n.ChildByFieldName("operator"); op != nil && slices.Contains(g.boolOps, op.Type()) {
				count++
			}
		} else {
			count++
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		count += countDecisions(g, n.NamedChild(i), src)
	}
	return count
}

func countParams(g *grammar, fn *sitter.Node, src []byte) int {
	params := fn.ChildByFieldName("parameters")
	if params == nil {
		// Single-parameter arrow functions: x => x + 1
		if fn.ChildByFieldName("parameter") != nil {
			return 1
		}
		return 0
	}

	count := 0
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "comment":
			continue
		case "parameter_declaration":
			// Go groups names: a, b int
			names := 0
			for j := 0; j < int(p.NamedChildCount()); j++ {
				if p.NamedChild(j).Type() == "identifier" {
					names++
				}
			}
			count += max(names, 1)
			continue
		}
		if len(g.selfNames) > 0 && slices.Contains(g.selfNames, p.Content(src)) {
			continue
		}
		count++
	}
	return count
}
