// Package filesystem defines the storage-agnostic façade contract the
// adapter exposes, and a retrying decorator that implements it over the
// S3 filesystem façade.
package filesystem

import "context"

// FileInfo describes one object or directory marker.
type FileInfo struct {
	Length       int64
	IsDirectory  bool
	ModTimeNanos int64
}

// DirEntry is one entry of a List result.
type DirEntry struct {
	Name  string
	IsDir bool
}

// ReadHandle supports random-access reads at an explicit offset; there is
// no implicit cursor.
type ReadHandle interface {
	Read(ctx context.Context, offset int64, out []byte) (int, error)
}

// WriteHandle is a sequential, append-only writable file.
type WriteHandle interface {
	Append(data []byte) error
	Sync(ctx context.Context) error
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

// Filesystem is the twelve-operation façade contract; RetryingFilesystem
// implements it.
type Filesystem interface {
	OpenRead(ctx context.Context, path string) (ReadHandle, error)
	OpenWrite(ctx context.Context, path string) (WriteHandle, error)
	OpenAppend(ctx context.Context, path string) (WriteHandle, error)
	ReadRegion(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
	Stat(ctx context.Context, path string) (FileInfo, error)
	List(ctx context.Context, dir string) ([]DirEntry, error)
	DeleteFile(ctx context.Context, path string) error
	CreateDir(ctx context.Context, path string) error
	DeleteDir(ctx context.Context, path string) error
	FileSize(ctx context.Context, path string) (int64, error)
	Rename(ctx context.Context, src, tgt string) error
}
