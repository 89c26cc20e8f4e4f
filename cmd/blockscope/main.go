// Package main provides the blockscope CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var g globalOpts

	rootCmd := &cobra.Command{
		Use:   "blockscope",
		Short: "Hierarchical code analysis for source trees",
		Long: `Blockscope splits a project into directories, files, classes and functions,
grades each block by its static metrics, and explains blocks with a language
model. Analyses are cached by content so unchanged code is never re-analyzed.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := rootCmd.PersistentFlags()
	f.StringVarP(&g.path, "path", "C", ".", "Project directory to scan")
	f.StringVar(&g.configPath, "config", "", "Config file (default: nearest .blockscope/config.yaml)")
	f.CountVarP(&g.verbose, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	f.BoolVarP(&g.quiet, "quiet", "q", false, "Suppress all logging")
	f.StringVar(&g.logFormat, "log-format", "text", "Log format: text or json")

	rootCmd.AddCommand(
		newTreeCmd(&g),
		newAnalyzeCmd(&g),
		newCacheCmd(&g),
	)
	return rootCmd
}
