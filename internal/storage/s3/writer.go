package s3

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"

	"github.com/objstore/s3vfs/pkg/objferr"
)

var (
	tmpFileIndexMu sync.Mutex
	tmpFileIndex   int
)

// nextTmpFileSuffix returns a process-wide rolling disambiguator, mirroring
// the reference implementation's counter-mod-1000 scheme: it supplements
// the OS's own unique-file mechanism rather than replacing it.
func nextTmpFileSuffix() int {
	tmpFileIndexMu.Lock()
	defer tmpFileIndexMu.Unlock()
	suffix := tmpFileIndex % 1000
	tmpFileIndex++
	return suffix
}

// Writer is a writable file backed by a local spill file: Append writes
// locally, Sync uploads the whole spill file's current contents to
// (bucket, key) and seeks back to resume appending.
type Writer struct {
	bucket, key string
	provider    *ClientProvider

	mu         sync.Mutex
	spill      *os.File
	syncNeeded bool
	closed     bool
}

// NewWriter creates a fresh, empty writable file bound to (bucket, key).
func NewWriter(bucket, key string, provider *ClientProvider) (*Writer, error) {
	pattern := fmt.Sprintf("s3vfs_%d_*", nextTmpFileSuffix())
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return nil, objferr.Wrap(objferr.Internal, "open_write", "failed to create spill file", err)
	}
	return &Writer{bucket: bucket, key: key, provider: provider, spill: f}, nil
}

// Append writes bytes to the spill file.
func (w *Writer) Append(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return objferr.New(objferr.FailedPrecondition, "append", "writable file is closed")
	}
	if _, err := w.spill.Write(data); err != nil {
		return objferr.Wrap(objferr.Internal, "append", "local write failed", err)
	}
	w.syncNeeded = true
	return nil
}

// Sync uploads the spill file's current contents, retrying the upload
// itself (not individual parts) up to UploadRetries additional times
// before giving up.
func (w *Writer) Sync(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.syncLocked(ctx)
}

func (w *Writer) syncLocked(ctx context.Context) error {
	if !w.syncNeeded {
		return nil
	}

	offset, err := w.spill.Seek(0, io.SeekCurrent)
	if err != nil {
		return objferr.Wrap(objferr.Internal, "sync", "failed to record write offset", err)
	}

	transporter, err := w.provider.Transporter(ctx)
	if err != nil {
		return err
	}

	if _, err := w.spill.Seek(0, io.SeekStart); err != nil {
		return objferr.Wrap(objferr.Internal, "sync", "failed to rewind spill file", err)
	}
	info, err := w.spill.Stat()
	if err != nil {
		return objferr.Wrap(objferr.Internal, "sync", "failed to stat spill file", err)
	}

	archive := cargoships3.Archive{
		Key:    w.key,
		Reader: w.spill,
		Size:   info.Size(),
	}

	var lastErr error
	result, uploadErr := transporter.Upload(ctx, archive)
	lastErr = uploadErr
	for attempt := 0; uploadErr != nil && attempt < UploadRetries; attempt++ {
		if _, err := w.spill.Seek(0, io.SeekStart); err != nil {
			return objferr.Wrap(objferr.Internal, "sync", "failed to rewind spill file for retry", err)
		}
		result, uploadErr = transporter.Upload(ctx, archive)
		lastErr = uploadErr
	}

	if uploadErr != nil {
		return objferr.Wrap(objferr.Unknown, "sync", fmt.Sprintf("upload failed after %d retries", UploadRetries), lastErr)
	}
	_ = result

	if _, err := w.spill.Seek(offset, io.SeekStart); err != nil {
		return objferr.Wrap(objferr.Internal, "sync", "failed to seek back to write offset", err)
	}
	w.syncNeeded = false
	return nil
}

// Flush is Sync.
func (w *Writer) Flush(ctx context.Context) error {
	return w.Sync(ctx)
}

// Close syncs any pending writes and releases the spill file. It is
// idempotent. If the sync fails, the writer stays open with its spill file
// intact, so Close (or Sync) can be retried.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if err := w.syncLocked(ctx); err != nil {
		return err
	}
	w.closed = true
	name := w.spill.Name()
	w.spill.Close()
	os.Remove(name)
	return nil
}
