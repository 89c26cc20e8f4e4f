package surface

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/blockscope/blockscope/pkg/block"
)

// TerminalRenderer renders a Result as an indented, colored tree.
type TerminalRenderer struct {
	// MaxDepth limits how deep the tree is printed; 0 prints everything.
	MaxDepth int
	// Summaries prints each block's analysis summary under it.
	Summaries bool
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

const summaryWidth = 70

func gradeColor(g block.Grade) string {
	if noColor() {
		return ""
	}
	switch g {
	case block.Clean:
		return colorGreen
	case block.Complex:
		return colorYellow
	case block.Warning:
		return colorRed
	default:
		return ""
	}
}

func noColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

func bold(s string) string {
	if noColor() {
		return s
	}
	return colorBold + s + colorReset
}

func dim(s string) string {
	if noColor() {
		return s
	}
	return colorDim + s + colorReset
}

func colored(s, color string) string {
	if noColor() || color == "" {
		return s
	}
	return color + s + colorReset
}

func (r *TerminalRenderer) Render(w io.Writer, result *Result) error {
	tree := result.Tree
	if tree == nil {
		return fmt.Errorf("render: no tree")
	}

	// Header
	fmt.Fprintf(w, "%s\n\n",
		bold(fmt.Sprintf("Blockscope: %s (grade %s, %d warnings)",
			tree.Name, colored(tree.Grade.String(), gradeColor(tree.Grade)), tree.WarningCount)))

	if rep := result.Report; rep != nil {
		fmt.Fprintf(w, "Analyzed: %d blocks / %d ready / %d failed / %d cached in %s\n\n",
			rep.Total, rep.Ready, rep.Failed, rep.Skipped, rep.Duration().Round(time.Millisecond))
	}

	r.renderNode(w, tree, 0)
	fmt.Fprintln(w)

	// Hotspots
	if hs := Hotspots(tree); len(hs) > 0 {
		fmt.Fprintln(w, "Hotspots:")
		for _, h := range hs {
			fmt.Fprintf(w, "  %s %s", colored("●", colorRed), bold(h.ID))
			if len(h.Notes) > 0 {
				fmt.Fprintf(w, ": %s", strings.Join(h.Notes, "; "))
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w)
	}

	// Failures
	if rep := result.Report; rep != nil && len(rep.Failures) > 0 {
		fmt.Fprintln(w, "Failed:")
		for _, f := range rep.Failures {
			fmt.Fprintf(w, "  %s %s\n", bold(f.NodeID), dim(f.Error))
		}
		fmt.Fprintln(w)
	}

	return nil
}

func (r *TerminalRenderer) renderNode(w io.Writer, v *block.View, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(w, "%s%s  %s%s\n", indent, displayName(v), badge(v), lineInfo(v))

	if r.Summaries && v.Summary != "" {
		for _, line := range wrapText(v.Summary, summaryWidth) {
			fmt.Fprintf(w, "%s    %s\n", indent, dim(line))
		}
	}
	if v.Error != "" {
		fmt.Fprintf(w, "%s    %s\n", indent, colored("analysis failed: "+v.Error, colorRed))
	}

	if r.MaxDepth > 0 && depth+1 >= r.MaxDepth {
		if n := len(v.Children); n > 0 {
			fmt.Fprintf(w, "%s  %s\n", indent, dim(fmt.Sprintf("... %d more", n)))
		}
		return
	}
	for _, c := range v.Children {
		r.renderNode(w, c, depth+1)
	}
}

func displayName(v *block.View) string {
	switch v.Kind {
	case block.KindDirectory:
		return v.Name + "/"
	case block.KindFunction:
		return v.Name + "()"
	case block.KindClass:
		return "class " + v.Name
	default:
		return v.Name
	}
}

// badge shows the effective grade, with the warning count on containers.
func badge(v *block.View) string {
	label := strings.ToUpper(v.Grade.String())
	if v.WarningCount > 0 && v.Kind != block.KindFunction {
		label = fmt.Sprintf("%s %d", label, v.WarningCount)
	}
	return colored("["+label+"]", gradeColor(v.Grade))
}

func lineInfo(v *block.View) string {
	if v.Kind == block.KindDirectory || v.LineCount == 0 {
		return ""
	}
	return dim(fmt.Sprintf("  %d lines", v.LineCount))
}

// wrapText wraps a string at the given width, returning lines.
func wrapText(s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	current := words[0]

	for _, word := range words[1:] {
		if len(current)+1+len(word) > width {
			lines = append(lines, current)
			current = word
		} else {
			current += " " + word
		}
	}
	lines = append(lines, current)
	return lines
}
