// Package surface renders scored block trees and run reports for the
// terminal, Markdown (CI summaries) and JSON consumers.
package surface

import (
	"fmt"
	"io"

	"github.com/blockscope/blockscope/pkg/block"
	"github.com/blockscope/blockscope/pkg/engine"
)

// Result is what a command renders: the scored tree and, after a batch
// run, its report.
type Result struct {
	Tree   *block.View    `json:"tree"`
	Report *engine.Report `json:"report,omitempty"`
}

// Renderer produces formatted output from a Result.
type Renderer interface {
	// Render writes the formatted result to the writer.
	Render(w io.Writer, result *Result) error
}

// ForFormat returns the renderer for an output format name.
func ForFormat(format string) (Renderer, error) {
	switch format {
	case "", "text":
		return &TerminalRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	case "markdown", "md":
		return &MarkdownRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want text, json or markdown)", format)
	}
}

// Hotspot is a block whose own metrics grade it Warning.
type Hotspot struct {
	ID    string
	Notes []string
}

// Hotspots lists Warning blocks in tree order.
func Hotspots(v *block.View) []Hotspot {
	var out []Hotspot
	var visit func(v *block.View)
	visit = func(v *block.View) {
		if v.OwnGrade == block.Warning {
			out = append(out, Hotspot{ID: v.ID, Notes: v.Notes})
		}
		for _, c := range v.Children {
			visit(c)
		}
	}
	if v != nil {
		visit(v)
	}
	return out
}
