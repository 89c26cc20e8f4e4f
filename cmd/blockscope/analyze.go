package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/blockscope/blockscope/pkg/analysis"
	"github.com/blockscope/blockscope/pkg/block"
	"github.com/blockscope/blockscope/pkg/engine"
	"github.com/blockscope/blockscope/pkg/surface"
)

// saveTimeout bounds persisting results after a run, even a cancelled one.
const saveTimeout = 30 * time.Second

func newAnalyzeCmd(g *globalOpts) *cobra.Command {
	var (
		workers   int
		outputFmt string
		depth     int
		fresh     bool
		progress  bool
		failOn    string
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze every block in the project",
		Long: `Runs a full batch analysis: directories and files first, then classes and
functions, with cached results reused. Results are saved to the analysis
cache and, when a database is configured, to the run history.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), g, analyzeOpts{
				workers:   workers,
				outputFmt: outputFmt,
				depth:     depth,
				fresh:     fresh,
				progress:  progress,
				failOn:    failOn,
			})
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent analyses (default: engine.workers from config)")
	cmd.Flags().StringVarP(&outputFmt, "output", "o", "text", "Output format: text, json or markdown")
	cmd.Flags().IntVar(&depth, "depth", 0, "Maximum tree depth to print (0 = unlimited)")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "Ignore cached analyses and re-analyze everything")
	cmd.Flags().BoolVar(&progress, "progress", true, "Print progress to stderr")
	cmd.Flags().StringVar(&failOn, "fail-on", "", "Exit non-zero when the run has: failed, warning")

	return cmd
}

type analyzeOpts struct {
	workers   int
	outputFmt string
	depth     int
	fresh     bool
	progress  bool
	failOn    string
}

var errRunFailed = errors.New("analysis run did not pass")

func runAnalyze(ctx context.Context, g *globalOpts, opts analyzeOpts) error {
	if err := validateFailOn(opts.failOn); err != nil {
		return err
	}
	if opts.workers < 0 {
		return fmt.Errorf("--workers must not be negative, got %d", opts.workers)
	}
	r, err := newRenderer(opts.outputFmt, opts.depth, true)
	if err != nil {
		return err
	}

	ws, err := g.open(ctx, true, true)
	if err != nil {
		return err
	}
	defer ws.Close()

	if opts.fresh {
		ws.Engine.Cache().Clear()
	}
	workers := opts.workers
	if workers == 0 {
		workers = ws.Config.Engine.Workers
	}
	log := g.logger()

	var onProgress engine.ProgressFunc
	if opts.progress && !g.quiet {
		onProgress = printProgress
	}
	report, runErr := ws.Engine.RunAll(ctx, workers, onProgress)
	if report == nil {
		return runErr
	}

	// Partial results of a cancelled run are kept.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := ws.Flush(saveCtx); err != nil {
		log.Error("saving analysis cache", "error", err)
	}
	if ws.Runs != nil {
		if err := ws.Runs.Record(saveCtx, ws.Root, report); err != nil {
			log.Error("recording run history", "error", err)
		}
	}

	view, err := ws.Engine.View("")
	if err != nil {
		return err
	}
	if err := r.Render(os.Stdout, &surface.Result{Tree: view, Report: report}); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	return checkFailOn(opts.failOn, report)
}

func printProgress(pr engine.Progress) {
	mark := "ok"
	if pr.Status == analysis.StatusFailed {
		mark = "FAILED"
	}
	fmt.Fprintf(os.Stderr, "[%d/%d] %s %s\n", pr.Done, pr.Total, mark, pr.NodeID)
}

func validateFailOn(v string) error {
	switch v {
	case "", "failed", "warning":
		return nil
	default:
		return fmt.Errorf("--fail-on: unknown condition %q (want failed or warning)", v)
	}
}

// checkFailOn turns a finished report into the command's exit status.
func checkFailOn(cond string, report *engine.Report) error {
	switch cond {
	case "failed":
		if report.Failed > 0 {
			return fmt.Errorf("%w: %d analyses failed", errRunFailed, report.Failed)
		}
	case "warning":
		if report.Grade == block.Warning {
			return fmt.Errorf("%w: %d blocks graded warning", errRunFailed, report.Warnings)
		}
	}
	return nil
}
