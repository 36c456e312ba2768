// Package backup uploads trained bundles to a remote object store and
// restores the latest one. Backends are S3, GCS and a local directory.
package backup

import (
	"context"
	"errors"
	"fmt"
)

// ErrObjectNotFound is returned by RemoteStore.Get for a missing key.
var ErrObjectNotFound = errors.New("object not found")

// Object describes one stored key.
type Object struct {
	Key  string
	Size int64
}

// RemoteStore is the capability surface the backup service needs. Keys use
// forward slashes.
type RemoteStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]Object, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend names.
const (
	BackendS3  = "s3"
	BackendGCS = "gcs"
	BackendFS  = "fs"
)

// StoreConfig selects and configures a backend.
type StoreConfig struct {
	Backend  string
	Bucket   string
	Region   string
	Endpoint string
	// Dir is the root directory of the fs backend.
	Dir string
}

// NewRemoteStore opens the configured backend.
func NewRemoteStore(ctx context.Context, cfg StoreConfig) (RemoteStore, error) {
	switch cfg.Backend {
	case BackendS3:
		return NewS3Store(ctx, cfg.Bucket, cfg.Region, cfg.Endpoint)
	case BackendGCS:
		return NewGCSStore(ctx, cfg.Bucket)
	case BackendFS:
		return NewFSStore(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown backup backend %q (supported: s3, gcs, fs)", cfg.Backend)
	}
}
