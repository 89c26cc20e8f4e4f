package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/blockscope/blockscope/internal/logx"
	"github.com/blockscope/blockscope/internal/workspace"
)

// globalOpts holds the persistent root flags.
type globalOpts struct {
	path       string
	configPath string
	verbose    int
	quiet      bool
	logFormat  string
}

func (g *globalOpts) logger() *slog.Logger {
	return logx.New(os.Stderr, logx.LevelFromVerbosity(g.verbose, g.quiet), g.logFormat)
}

func (g *globalOpts) open(ctx context.Context, requireProvider, history bool) (*workspace.Workspace, error) {
	return workspace.Open(ctx, workspace.Options{
		Path:            g.path,
		ConfigPath:      g.configPath,
		RequireProvider: requireProvider,
		History:         history,
		Logger:          g.logger(),
	})
}
