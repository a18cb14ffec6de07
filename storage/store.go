// Package storage persists the small durable artefacts that live beside the
// audio library: per-track decay records and waveform caches. Keys use
// forward slashes. Two backends exist: the local filesystem for a
// self-contained installation box, and an object store for deployments whose
// state has to outlive the box.
package storage

import (
	"context"
	"errors"
	"fmt"

	"decayfm/config"
)

// ErrNotExist is returned by Get when nothing is stored under a key.
var ErrNotExist = errors.New("blob does not exist")

// BlobStore is the persistence interface shared by all backends. Put must be
// atomic per key: a reader never observes a half-written blob.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// NewStore picks the configured backend: MinIO when an endpoint is set, the
// local filesystem otherwise.
func NewStore(cfg *config.Config) (BlobStore, error) {
	if cfg.MinioEndpoint != "" {
		s, err := NewMinioStore(cfg)
		if err != nil {
			return nil, fmt.Errorf("init minio blob store: %w", err)
		}
		return s, nil
	}
	s, err := NewFSStore(cfg.MetadataDir)
	if err != nil {
		return nil, fmt.Errorf("init blob store: %w", err)
	}
	return s, nil
}
