// Package cachestore persists analysis cache snapshots to the local
// filesystem, S3 or GCS.
package cachestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blockscope/blockscope/pkg/config"
)

// ErrNotFound is returned by Load when no blob exists under the key.
var ErrNotFound = errors.New("snapshot not found")

// Store abstracts blob storage for cache snapshots.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Open builds the store selected by cfg. localDir is used by the local
// backend when cfg.Path is empty.
func Open(ctx context.Context, cfg config.StorageConfig, localDir string) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		dir := cfg.Path
		if dir == "" {
			dir = localDir
		}
		return NewLocal(dir), nil
	case "s3":
		return NewS3(ctx, S3Config{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			Prefix:    cfg.Prefix,
			AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		})
	case "gcs":
		return NewGCS(ctx, cfg.Bucket, cfg.Prefix)
	default:
		return nil, fmt.Errorf("open store: unknown backend %q", cfg.Backend)
	}
}

// Local implements Store on the local filesystem.
type Local struct {
	BaseDir string
}

// NewLocal creates a Local store rooted at baseDir.
func NewLocal(baseDir string) *Local {
	return &Local{BaseDir: baseDir}
}

func (s *Local) path(key string) string {
	return filepath.Join(s.BaseDir, filepath.FromSlash(key)+blobExt)
}

// Load reads the blob stored under key.
func (s *Local) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return data, nil
}

// Save writes the blob atomically through a temp file and rename.
func (s *Local) Save(ctx context.Context, key string, data []byte) error {
	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Delete removes the blob. Deleting a missing key is not an error.
func (s *Local) Delete(ctx context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// blobExt marks zstd-compressed JSON snapshots.
const blobExt = ".json.zst"

// objectKey joins an optional bucket prefix with a key.
func objectKey(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key + blobExt
	}
	return prefix + "/" + key + blobExt
}
