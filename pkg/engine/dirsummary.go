package engine

import (
	"fmt"
	"strings"

	"github.com/blockscope/blockscope/pkg/analysis"
	"github.com/blockscope/blockscope/pkg/block"
)

// DirectorySummary describes a directory from its direct children.
func DirectorySummary(children []*block.Node) string {
	var files, dirs []string
	for _, c := range children {
		switch c.Kind {
		case block.KindFile:
			files = append(files, c.Name)
		case block.KindDirectory:
			dirs = append(dirs, c.Name)
		}
	}

	var parts []string
	if len(files) > 0 {
		parts = append(parts, fmt.Sprintf("%d files: %s", len(files), strings.Join(files, ", ")))
	}
	if len(dirs) > 0 {
		parts = append(parts, fmt.Sprintf("%d directories: %s", len(dirs), strings.Join(dirs, ", ")))
	}
	if len(parts) == 0 {
		return "Empty directory"
	}
	return "Contains " + strings.Join(parts, "; ")
}

// directoryEntry synthesizes a Ready entry; directories never reach the
// provider. Callers hold e.mu.
func (e *Engine) directoryEntry(n *block.Node) analysis.Entry {
	summary := DirectorySummary(e.tree.Children(n))
	return analysis.Entry{
		Status:      analysis.StatusReady,
		Fingerprint: block.Fingerprint(summary),
		Summary:     summary,
		ComputedAt:  e.now(),
	}
}
