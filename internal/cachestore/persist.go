package cachestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/klauspost/compress/zstd"

	"github.com/blockscope/blockscope/pkg/analysis"
	"github.com/blockscope/blockscope/pkg/config"
)

// SnapshotKey names the snapshot of one scanned project.
func SnapshotKey(projectPath string) string {
	return config.RepoSlug(projectPath) + "/analysis"
}

// Persister saves and restores an analysis cache through a Store. Snapshots
// are JSON compressed with zstd.
type Persister struct {
	store Store
	key   string
	log   *slog.Logger
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// NewPersister creates a Persister for the snapshot stored under key.
func NewPersister(store Store, key string, log *slog.Logger) (*Persister, error) {
	if log == nil {
		log = slog.Default()
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Persister{store: store, key: key, log: log, enc: enc, dec: dec}, nil
}

// Close releases the codec resources.
func (p *Persister) Close() {
	p.enc.Close()
	p.dec.Close()
}

// Restore loads the stored snapshot into c and returns how many entries
// were imported. A missing snapshot is not an error.
func (p *Persister) Restore(ctx context.Context, c *analysis.Cache) (int, error) {
	blob, err := p.store.Load(ctx, p.key)
	if errors.Is(err, ErrNotFound) {
		p.log.Debug("no cache snapshot", "key", p.key)
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	data, err := p.dec.DecodeAll(blob, nil)
	if err != nil {
		return 0, fmt.Errorf("decompress snapshot %s: %w", p.key, err)
	}
	snap, err := analysis.UnmarshalSnapshot(data)
	if err != nil {
		return 0, err
	}
	n, err := c.Import(snap)
	if err != nil {
		return 0, err
	}
	if snap.ConfigKey != c.ConfigKey() {
		p.log.Info("cache snapshot ignored after config change", "key", p.key, "was", snap.ConfigKey, "now", c.ConfigKey())
	}
	p.log.Debug("cache restored", "key", p.key, "entries", n)
	return n, nil
}

// Flush writes the Ready entries of c to the store.
func (p *Persister) Flush(ctx context.Context, c *analysis.Cache) error {
	snap := c.Export()
	data, err := analysis.MarshalSnapshot(snap)
	if err != nil {
		return err
	}
	if err := p.store.Save(ctx, p.key, p.enc.EncodeAll(data, nil)); err != nil {
		return err
	}
	p.log.Debug("cache flushed", "key", p.key, "entries", len(snap.Entries))
	return nil
}

// Clear deletes the stored snapshot.
func (p *Persister) Clear(ctx context.Context) error {
	return p.store.Delete(ctx, p.key)
}
