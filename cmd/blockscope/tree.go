package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/blockscope/blockscope/pkg/surface"
)

func newTreeCmd(g *globalOpts) *cobra.Command {
	var (
		nodeID    string
		depth     int
		outputFmt string
		summaries bool
	)

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the scored block tree",
		Long: `Scans the project, grades every block by its static metrics and prints the
tree. Cached analyses are shown; nothing is sent to the provider.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTree(cmd.Context(), g, treeOpts{
				nodeID:    nodeID,
				depth:     depth,
				outputFmt: outputFmt,
				summaries: summaries,
			})
		},
	}

	cmd.Flags().StringVar(&nodeID, "id", "", "Print only the subtree rooted at this block id")
	cmd.Flags().IntVar(&depth, "depth", 0, "Maximum depth to print (0 = unlimited)")
	cmd.Flags().StringVarP(&outputFmt, "output", "o", "text", "Output format: text, json or markdown")
	cmd.Flags().BoolVar(&summaries, "summaries", false, "Print cached analysis summaries")

	return cmd
}

type treeOpts struct {
	nodeID    string
	depth     int
	outputFmt string
	summaries bool
}

func runTree(ctx context.Context, g *globalOpts, opts treeOpts) error {
	r, err := newRenderer(opts.outputFmt, opts.depth, opts.summaries)
	if err != nil {
		return err
	}
	ws, err := g.open(ctx, false, false)
	if err != nil {
		return err
	}
	defer ws.Close()

	view, err := ws.Engine.View(opts.nodeID)
	if err != nil {
		return err
	}
	return r.Render(os.Stdout, &surface.Result{Tree: view})
}

// newRenderer resolves an output format and applies the terminal options.
func newRenderer(format string, depth int, summaries bool) (surface.Renderer, error) {
	r, err := surface.ForFormat(format)
	if err != nil {
		return nil, err
	}
	if tr, ok := r.(*surface.TerminalRenderer); ok {
		tr.MaxDepth = depth
		tr.Summaries = summaries
	}
	return r, nil
}
