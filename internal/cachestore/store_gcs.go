package cachestore

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
)

// GCS implements Store using Google Cloud Storage.
type GCS struct {
	client *gcs.Client
	bucket string
	prefix string
}

// NewGCS creates a GCS-backed Store.
// It uses Application Default Credentials (works with Workload Identity, SA keys, gcloud auth).
func NewGCS(ctx context.Context, bucket, prefix string) (*GCS, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *GCS) Load(ctx context.Context, key string) ([]byte, error) {
	k := objectKey(s.prefix, key)
	r, err := s.client.Bucket(s.bucket).Object(k).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, fmt.Errorf("gcs read %s: %w", k, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("gcs read %s: %w", k, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *GCS) Save(ctx context.Context, key string, data []byte) error {
	k := objectKey(s.prefix, key)
	w := s.client.Bucket(s.bucket).Object(k).NewWriter(ctx)
	w.ContentType = "application/json"
	w.ContentEncoding = "zstd"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("gcs write %s: %w", k, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close %s: %w", k, err)
	}
	return nil
}

func (s *GCS) Delete(ctx context.Context, key string) error {
	k := objectKey(s.prefix, key)
	err := s.client.Bucket(s.bucket).Object(k).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete %s: %w", k, err)
	}
	return nil
}
