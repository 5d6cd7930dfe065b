// Package gcs archives run tables to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Config selects the archive bucket and upload behaviour.
type Config struct {
	Bucket string `mapstructure:"bucket"`
	// Endpoint overrides the API endpoint, e.g. for an emulator.
	Endpoint string `mapstructure:"endpoint"`
	// StorageClass is applied to new objects when set (e.g. "NEARLINE").
	StorageClass string `mapstructure:"storage_class"`
	// ChunkSizeKB bounds the resumable upload buffer. Zero keeps the client default.
	ChunkSizeKB int `mapstructure:"chunk_size_kb"`
}

// NewClient builds a storage client using Application Default Credentials,
// or an unauthenticated client when an endpoint override is set.
func NewClient(ctx context.Context, cfg Config) (*storage.Client, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return client, nil
}

// BlobStore uploads table snapshots under <bucket>/<prefix>/<run id>/.
type BlobStore struct {
	client *storage.Client
	cfg    Config
}

// New wraps client for the configured bucket.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	return &BlobStore{client: client, cfg: cfg}, nil
}

// PutObject streams r into the object at key and returns its gs:// URI.
// A failed upload leaves no partial object behind.
func (s *BlobStore) PutObject(ctx context.Context, key string, contentType string, r io.Reader) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("object key is required")
	}

	// Cancelling the writer's context aborts the upload.
	uploadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.client.Bucket(s.cfg.Bucket).Object(key).NewWriter(uploadCtx)
	w.ContentType = contentType
	w.StorageClass = s.cfg.StorageClass
	w.Metadata = map[string]string{"archived-by": "harvester"}
	if runID := runIDOf(key); runID != "" {
		w.Metadata["run-id"] = runID
	}
	if s.cfg.ChunkSizeKB > 0 {
		w.ChunkSize = s.cfg.ChunkSizeKB << 10
	}

	if _, err := io.Copy(w, r); err != nil {
		cancel()
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", key, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.cfg.Bucket, key), nil
}

// runIDOf returns the run id segment of a "<prefix>/<run id>/<table>" key.
func runIDOf(key string) string {
	parts := strings.Split(key, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-2]
}

// Close releases the client.
func (s *BlobStore) Close() error {
	return s.client.Close()
}
