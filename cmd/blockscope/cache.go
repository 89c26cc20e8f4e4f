package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blockscope/blockscope/internal/workspace"
	"github.com/blockscope/blockscope/pkg/analysis"
)

func newCacheCmd(g *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the analysis cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "clear",
			Short: "Delete the stored analysis cache for the project",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCacheClear(cmd.Context(), g)
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Show how many analyses are cached for the current provider",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCacheStats(cmd.Context(), g)
			},
		},
	)
	return cmd
}

func runCacheClear(ctx context.Context, g *globalOpts) error {
	root, err := workspace.ResolveRoot(g.path)
	if err != nil {
		return err
	}
	cfg, err := workspace.LoadConfig(root, g.configPath)
	if err != nil {
		return err
	}
	p, err := workspace.OpenPersister(ctx, root, cfg, g.logger())
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.Clear(ctx); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Cleared analysis cache for %s\n", root)
	return nil
}

func runCacheStats(ctx context.Context, g *globalOpts) error {
	root, err := workspace.ResolveRoot(g.path)
	if err != nil {
		return err
	}
	cfg, err := workspace.LoadConfig(root, g.configPath)
	if err != nil {
		return err
	}
	p, err := workspace.OpenPersister(ctx, root, cfg, g.logger())
	if err != nil {
		return err
	}
	defer p.Close()

	cache := analysis.New(cfg.ProviderKey())
	n, err := p.Restore(ctx, cache)
	if err != nil {
		return fmt.Errorf("reading cache: %w", err)
	}
	fmt.Fprintf(os.Stdout, "Project:  %s\n", root)
	fmt.Fprintf(os.Stdout, "Provider: %s\n", cfg.ProviderKey())
	fmt.Fprintf(os.Stdout, "Cached:   %d analyses\n", n)
	return nil
}
