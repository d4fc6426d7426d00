// Package adapter wires the S3 filesystem façade into a pluggable
// lifecycle: parse the storage URI, build the retrying façade, start and
// stop it.
package adapter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/objstore/s3vfs/internal/filesystem"
	"github.com/objstore/s3vfs/pkg/objfspath"
)

// Adapter is the top-level lifecycle object a host framework constructs
// once per mounted storage URI.
type Adapter struct {
	storageURI string
	mountPoint string
	bucketName string

	fs      filesystem.Filesystem
	started bool
}

// New validates storageURI and constructs an Adapter. Nothing touches the
// network until Start.
func New(ctx context.Context, storageURI, mountPoint string) (*Adapter, error) {
	p, err := objfspath.Parse(storageURI, true)
	if err != nil {
		return nil, fmt.Errorf("invalid storage URI: %w", err)
	}

	return &Adapter{
		storageURI: storageURI,
		mountPoint: mountPoint,
		bucketName: p.Bucket,
		fs:         filesystem.NewS3Backend(),
	}, nil
}

// Start marks the adapter ready to serve filesystem operations. The
// client provider underneath is built lazily on first use, so Start does
// no network I/O itself; it exists as the lifecycle hook a host framework
// expects.
func (a *Adapter) Start(ctx context.Context) error {
	if a.started {
		return fmt.Errorf("adapter already started")
	}
	slog.Info("starting s3vfs adapter", "storage_uri", a.storageURI, "mount_point", a.mountPoint)
	a.started = true
	return nil
}

// Stop releases the adapter's lifecycle state. Individual file handles are
// responsible for their own Close.
func (a *Adapter) Stop(ctx context.Context) error {
	if !a.started {
		return fmt.Errorf("adapter not started")
	}
	slog.Info("stopping s3vfs adapter", "storage_uri", a.storageURI)
	a.started = false
	return nil
}

// Filesystem returns the underlying façade for protocol handlers to drive.
func (a *Adapter) Filesystem() filesystem.Filesystem {
	return a.fs
}
