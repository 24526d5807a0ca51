// Package fsys provides a uniform view over the two storage backends a music
// folder can live on: local disk and S3-compatible object storage.
package fsys

import (
	"context"
	"time"

	"github.com/subsona/subsona/internal/conf"
	"github.com/subsona/subsona/internal/errors"
	"github.com/subsona/subsona/internal/format"
)

// Backend tags which storage backend a path belongs to. The set is closed:
// dispatch happens over these two values only.
type Backend string

const (
	BackendLocal Backend = "local"
	BackendS3    Backend = "s3"
)

// Entry describes one candidate media file discovered during a walk.
type Entry struct {
	// Path is absolute: a native path for local backends, /bucket/key for S3.
	Path         string
	Size         int64
	LastModified time.Time
	Format       format.Audio
}

// WalkFunc receives discovered entries. Returning an error stops the walk.
type WalkFunc func(Entry) error

// Filesystem is the uniform operation set over a backend. No retries happen at
// this layer; retry policy belongs to the caller.
type Filesystem interface {
	// Backend reports which backend this filesystem serves.
	Backend() Backend
	// CheckFolder validates that path is absolute and an existing directory
	// (local) or a reachable bucket prefix (S3).
	CheckFolder(ctx context.Context, path string) error
	// Read returns the full content of the object at path.
	Read(ctx context.Context, path string) ([]byte, error)
	// Walk enumerates supported media files below root, filtered by the
	// extension allow-list and minimumSize.
	Walk(ctx context.Context, root string, minimumSize int64, fn WalkFunc) error
	// TranscodeInput resolves path to something ffmpeg can open directly:
	// the path itself for local files, a presigned URL for objects.
	TranscodeInput(ctx context.Context, path string) (string, error)
}

// Registry holds the constructed backend implementations. The S3 backend is
// lazily constructed on first use since most deployments are local-only.
type Registry struct {
	local Filesystem
	s3    Filesystem
	s3cfg conf.S3Settings
}

// NewRegistry builds a registry with the local backend ready and S3 deferred.
func NewRegistry(s3cfg conf.S3Settings) *Registry {
	return &Registry{local: &Local{}, s3cfg: s3cfg}
}

// For returns the filesystem implementation for the given backend.
func (r *Registry) For(ctx context.Context, backend Backend) (Filesystem, error) {
	switch backend {
	case BackendLocal:
		return r.local, nil
	case BackendS3:
		if r.s3 == nil {
			s3fs, err := NewS3(ctx, r.s3cfg)
			if err != nil {
				return nil, err
			}
			r.s3 = s3fs
		}
		return r.s3, nil
	default:
		return nil, errors.Newf("unknown filesystem backend %q", backend).
			Component("fsys").
			Category(errors.CategoryValidation).
			Build()
	}
}
