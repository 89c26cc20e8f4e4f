// Package workspace wires one scanned project: its configuration, block
// tree, engine, persisted analysis cache and optional run history.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/blockscope/blockscope/internal/cachestore"
	"github.com/blockscope/blockscope/internal/history"
	"github.com/blockscope/blockscope/pkg/analysis"
	"github.com/blockscope/blockscope/pkg/config"
	"github.com/blockscope/blockscope/pkg/engine"
	"github.com/blockscope/blockscope/pkg/provider"
	"github.com/blockscope/blockscope/pkg/treebuild"
)

// DatabaseURLEnv overrides history.database_url so credentials can stay out
// of the repository.
const DatabaseURLEnv = "BLOCKSCOPE_DATABASE_URL"

// Options controls Open.
type Options struct {
	Path            string // project directory; "" means the working directory
	ConfigPath      string // "" searches for .blockscope/config.yaml upwards
	RequireProvider bool   // fail when the provider cannot be built
	History         bool   // connect the run history when configured
	Logger          *slog.Logger
}

// Workspace is an opened project.
type Workspace struct {
	Root      string
	Config    *config.Config
	Engine    *engine.Engine
	Persister *cachestore.Persister
	Runs      *history.Service // nil unless history is configured

	log *slog.Logger
}

// ResolveRoot returns the absolute project directory for path.
func ResolveRoot(path string) (string, error) {
	if path == "" {
		path = "."
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving project path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("project path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("project path %s is not a directory", abs)
	}
	return abs, nil
}

// LoadConfig reads the explicit config file, or the nearest one above root.
// Invalid settings are an error rather than silently defaulted.
func LoadConfig(root, explicit string) (*config.Config, error) {
	path := explicit
	if path == "" {
		path = config.FindConfigFile(root)
	}
	cfg := config.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// CacheRoot is the local snapshot directory. Snapshot keys already carry
// the project slug, so this is the parent of config.CacheDir.
func CacheRoot(root string) string {
	return filepath.Dir(config.CacheDir(root))
}

// OpenPersister opens the configured cache store for the project at root.
func OpenPersister(ctx context.Context, root string, cfg *config.Config, log *slog.Logger) (*cachestore.Persister, error) {
	store, err := cachestore.Open(ctx, cfg.Storage, CacheRoot(root))
	if err != nil {
		return nil, err
	}
	return cachestore.NewPersister(store, cachestore.SnapshotKey(root), log)
}

// DatabaseURL returns the history database URL, if any.
func DatabaseURL(cfg *config.Config) string {
	if v := os.Getenv(DatabaseURLEnv); v != "" {
		return v
	}
	return cfg.History.DatabaseURL
}

// offlineProvider stands in when the configured provider cannot be built
// and the caller only reads cached analyses.
func offlineProvider(key string, cause error) provider.Provider {
	return provider.Func{
		Name: key,
		Fn: func(ctx context.Context, req provider.Request) (provider.Result, error) {
			return provider.Result{}, fmt.Errorf("provider unavailable: %w", cause)
		},
	}
}

// Open scans the project, restores its cached analyses and builds the
// engine. The caller must Close the workspace.
func Open(ctx context.Context, opts Options) (*Workspace, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	root, err := ResolveRoot(opts.Path)
	if err != nil {
		return nil, err
	}
	cfg, err := LoadConfig(root, opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	prov, err := cfg.NewProvider()
	if err != nil {
		if opts.RequireProvider {
			return nil, err
		}
		log.Debug("provider unavailable; using cached analyses only", "error", err)
		prov = offlineProvider(cfg.ProviderKey(), err)
	}

	tree, err := treebuild.Build(ctx, root, treebuild.Options{Languages: cfg.Scan.Languages, Logger: log})
	if err != nil {
		return nil, err
	}

	w := &Workspace{Root: root, Config: cfg, log: log}
	if w.Persister, err = OpenPersister(ctx, root, cfg, log); err != nil {
		return nil, err
	}
	cache := analysis.New(prov.Key())
	if n, err := w.Persister.Restore(ctx, cache); err != nil {
		log.Warn("ignoring unreadable cache snapshot", "error", err)
	} else if n > 0 {
		log.Info("restored cached analyses", "entries", n)
	}

	w.Engine, err = engine.New(tree, prov, cache, engine.Config{
		Workers:     cfg.Engine.Workers,
		QueueSize:   cfg.Engine.QueueSize,
		CallTimeout: cfg.CallTimeout(),
		Thresholds:  cfg.Thresholds,
		MetricsFunc: treebuild.MetricsFunc,
		Logger:      log,
	})
	if err != nil {
		w.Persister.Close()
		return nil, err
	}

	if opts.History {
		if url := DatabaseURL(cfg); url != "" {
			if w.Runs, err = history.Open(ctx, url); err != nil {
				w.Close()
				return nil, err
			}
			log.Info("run history connected", "schema", w.Runs.SchemaVersion())
		}
	}
	return w, nil
}

// Flush persists the analysis cache.
func (w *Workspace) Flush(ctx context.Context) error {
	return w.Persister.Flush(ctx, w.Engine.Cache())
}

// Close stops the engine and releases the cache codec and database.
func (w *Workspace) Close() {
	if w.Engine != nil {
		w.Engine.Close()
	}
	if w.Persister != nil {
		w.Persister.Close()
	}
	if w.Runs != nil {
		if err := w.Runs.Close(); err != nil {
			w.log.Warn("closing history", "error", err)
		}
	}
}
