package treebuild

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/blockscope/blockscope/pkg/block"
)

// ComputeMetrics parses a standalone snippet and measures its first
// function. Indented snippets (methods) are dedented before parsing. When
// no function is found only the line count is meaningful.
func ComputeMetrics(ctx context.Context, language, text string) *block.Metrics {
	fallback := &block.Metrics{Complexity: 1, Lines: max(lineCount(text), 1)}
	g, ok := grammars[language]
	if !ok {
		return fallback
	}

	src := []byte(dedent(text))
	parser := sitter.NewParser()
	parser.SetLanguage(g.lang)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return fallback
	}
	fn := findFunction(g, tree.RootNode())
	if fn == nil {
		return fallback
	}
	return functionMetrics(g, fn, src)
}

// MetricsFunc adapts ComputeMetrics to the engine's replacement hook.
// Directories, files and classes carry no metrics of their own.
func MetricsFunc(n *block.Node, text string) *block.Metrics {
	if n.Kind != block.KindFunction {
		return nil
	}
	return ComputeMetrics(context.Background(), n.Language, text)
}

func findFunction(g *grammar, n *sitter.Node) *sitter.Node {
	typ := n.Type()
	if g.functions[typ] || g.methods[typ] || typ == "arrow_function" {
		return n
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if fn := findFunction(g, n.NamedChild(i)); fn != nil {
			return fn
		}
	}
	return nil
}

// dedent removes the common leading whitespace of all non-blank lines.
func dedent(text string) string {
	lines := strings.Split(text, "\n")
	prefix := ""
	first := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first {
			prefix, first = indent, false
			continue
		}
		for !strings.HasPrefix(indent, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	if prefix == "" {
		return text
	}
	for i, line := range lines {
		lines[i] = strings.TrimPrefix(line, prefix)
	}
	return strings.Join(lines, "\n")
}
