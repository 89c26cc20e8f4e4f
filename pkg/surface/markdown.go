package surface

import (
	"fmt"
	"io"
	"strings"

	"github.com/blockscope/blockscope/pkg/block"
)

// MarkdownRenderer produces a Markdown summary suited to CI job summaries
// and pull request comments.
type MarkdownRenderer struct{}

const maxMarkdownRows = 10

func (r *MarkdownRenderer) Render(w io.Writer, result *Result) error {
	if result.Tree == nil {
		return fmt.Errorf("render: no tree")
	}
	_, err := io.WriteString(w, buildMarkdownSummary(result))
	return err
}

func buildMarkdownSummary(result *Result) string {
	var sb strings.Builder
	tree := result.Tree

	fmt.Fprintf(&sb, "## Blockscope: %s %s\n\n", gradeIcon(tree.Grade), tree.Name)
	fmt.Fprintf(&sb, "Overall grade **%s**: %d high-risk and %d complex blocks.\n\n",
		tree.Grade, tree.WarningCount, tree.ComplexCount)

	if rep := result.Report; rep != nil {
		sb.WriteString("### Run\n\n")
		sb.WriteString("| Metric | Count |\n|--------|-------|\n")
		fmt.Fprintf(&sb, "| Blocks | %d |\n", rep.Total)
		fmt.Fprintf(&sb, "| Analyzed | %d |\n", rep.Ready)
		fmt.Fprintf(&sb, "| Cached | %d |\n", rep.Skipped)
		fmt.Fprintf(&sb, "| Failed | %d |\n", rep.Failed)
		if rep.NotRun > 0 {
			fmt.Fprintf(&sb, "| Not run | %d |\n", rep.NotRun)
		}
		sb.WriteString("\n")
	}

	// Hotspots (max 10)
	if hs := Hotspots(tree); len(hs) > 0 {
		sb.WriteString("### Hotspots\n\n")
		for i, h := range hs {
			if i >= maxMarkdownRows {
				fmt.Fprintf(&sb, "_... and %d more_\n", len(hs)-maxMarkdownRows)
				break
			}
			fmt.Fprintf(&sb, "- %s `%s`", gradeIcon(block.Warning), h.ID)
			if len(h.Notes) > 0 {
				fmt.Fprintf(&sb, ": %s", strings.Join(h.Notes, "; "))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	// Failures (max 10)
	if rep := result.Report; rep != nil && len(rep.Failures) > 0 {
		sb.WriteString("### Failed analyses\n\n")
		for i, f := range rep.Failures {
			if i >= maxMarkdownRows {
				fmt.Fprintf(&sb, "_... and %d more_\n", len(rep.Failures)-maxMarkdownRows)
				break
			}
			fmt.Fprintf(&sb, "- `%s`: %s\n", f.NodeID, f.Error)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func gradeIcon(g block.Grade) string {
	switch g {
	case block.Warning:
		return ":red_circle:"
	case block.Complex:
		return ":yellow_circle:"
	default:
		return ":green_circle:"
	}
}
