package filesystem

import (
	"context"
	"runtime"
	"time"

	s3fs "github.com/objstore/s3vfs/internal/storage/s3"
	"github.com/objstore/s3vfs/pkg/retry"
)

// RetryingFilesystem wraps a concrete façade in the retry envelope: every
// method call (and every handle method returned from Open*, except a write
// handle's Append, which writes to the local spill file and is called
// once, without retry) runs under Retryer.Do, with DeleteFile and
// DeleteDir running under DoDelete so a
// NotFound observed mid-retry is treated as prior success. Each call is
// also timed into the façade's operation-latency histogram, and each
// retry attempt increments the retry/backoff collectors, by error kind.
type RetryingFilesystem struct {
	inner   *s3fs.Filesystem
	retryer *retry.Retryer
	metrics *s3fs.Metrics
}

// NewS3Backend constructs the retrying façade over a fresh S3 filesystem,
// with its own unregistered Metrics collectors. Call Metrics().MustRegister
// against the process's prometheus.Registerer to expose them.
func NewS3Backend() *RetryingFilesystem {
	metrics := s3fs.NewMetrics()
	cfg := retry.AdapterConfig()
	cfg.OnRetry = metrics.OnRetry()
	return &RetryingFilesystem{
		inner:   s3fs.NewFilesystem(),
		retryer: retry.New(cfg),
		metrics: metrics,
	}
}

// Metrics returns the façade's Prometheus collectors.
func (fs *RetryingFilesystem) Metrics() *s3fs.Metrics {
	return fs.metrics
}

func (fs *RetryingFilesystem) observe(operation string, start time.Time) {
	fs.metrics.ObserveOperation(operation, time.Since(start))
}

func (fs *RetryingFilesystem) OpenRead(ctx context.Context, path string) (ReadHandle, error) {
	defer fs.observe("open_read", time.Now())
	var r *s3fs.Reader
	err := fs.retryer.Do(ctx, func() error {
		var err error
		r, err = fs.inner.OpenRead(ctx, path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &retryingReadHandle{r: r, retryer: fs.retryer}, nil
}

func (fs *RetryingFilesystem) OpenWrite(ctx context.Context, path string) (WriteHandle, error) {
	defer fs.observe("open_write", time.Now())
	var w *s3fs.Writer
	err := fs.retryer.Do(ctx, func() error {
		var err error
		w, err = fs.inner.OpenWrite(ctx, path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return newRetryingWriteHandle(w, fs.retryer), nil
}

func (fs *RetryingFilesystem) OpenAppend(ctx context.Context, path string) (WriteHandle, error) {
	defer fs.observe("open_append", time.Now())
	var w *s3fs.Writer
	err := fs.retryer.Do(ctx, func() error {
		var err error
		w, err = fs.inner.OpenAppend(ctx, path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return newRetryingWriteHandle(w, fs.retryer), nil
}

func (fs *RetryingFilesystem) ReadRegion(ctx context.Context, path string) ([]byte, error) {
	defer fs.observe("read_region", time.Now())
	var out []byte
	err := fs.retryer.Do(ctx, func() error {
		var err error
		out, err = fs.inner.ReadRegion(ctx, path)
		return err
	})
	return out, err
}

func (fs *RetryingFilesystem) Exists(ctx context.Context, path string) (bool, error) {
	defer fs.observe("exists", time.Now())
	var exists bool
	err := fs.retryer.Do(ctx, func() error {
		var err error
		exists, err = fs.inner.Exists(ctx, path)
		return err
	})
	return exists, err
}

func (fs *RetryingFilesystem) Stat(ctx context.Context, path string) (FileInfo, error) {
	defer fs.observe("stat", time.Now())
	var st s3fs.Stat
	err := fs.retryer.Do(ctx, func() error {
		var err error
		st, err = fs.inner.Stat(ctx, path)
		return err
	})
	return toFileInfo(st), err
}

func (fs *RetryingFilesystem) List(ctx context.Context, dir string) ([]DirEntry, error) {
	defer fs.observe("list", time.Now())
	var entries []s3fs.DirEntry
	err := fs.retryer.Do(ctx, func() error {
		var err error
		entries, err = fs.inner.List(ctx, dir)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]DirEntry, len(entries))
	for i, e := range entries {
		out[i] = DirEntry{Name: e.Name, IsDir: e.IsDir}
	}
	return out, nil
}

func (fs *RetryingFilesystem) DeleteFile(ctx context.Context, path string) error {
	defer fs.observe("delete_file", time.Now())
	return fs.retryer.DoDelete(ctx, func() error {
		return fs.inner.DeleteFile(ctx, path)
	})
}

func (fs *RetryingFilesystem) CreateDir(ctx context.Context, path string) error {
	defer fs.observe("create_dir", time.Now())
	return fs.retryer.Do(ctx, func() error {
		return fs.inner.CreateDir(ctx, path)
	})
}

func (fs *RetryingFilesystem) DeleteDir(ctx context.Context, path string) error {
	defer fs.observe("delete_dir", time.Now())
	return fs.retryer.DoDelete(ctx, func() error {
		return fs.inner.DeleteDir(ctx, path)
	})
}

func (fs *RetryingFilesystem) FileSize(ctx context.Context, path string) (int64, error) {
	defer fs.observe("file_size", time.Now())
	var size int64
	err := fs.retryer.Do(ctx, func() error {
		var err error
		size, err = fs.inner.FileSize(ctx, path)
		return err
	})
	return size, err
}

func (fs *RetryingFilesystem) Rename(ctx context.Context, src, tgt string) error {
	defer fs.observe("rename", time.Now())
	return fs.retryer.Do(ctx, func() error {
		return fs.inner.Rename(ctx, src, tgt)
	})
}

func toFileInfo(st s3fs.Stat) FileInfo {
	return FileInfo{Length: st.Length, IsDirectory: st.IsDirectory, ModTimeNanos: st.ModTimeNs}
}

type retryingReadHandle struct {
	r       *s3fs.Reader
	retryer *retry.Retryer
}

func (h *retryingReadHandle) Read(ctx context.Context, offset int64, out []byte) (int, error) {
	var n int
	err := h.retryer.Do(ctx, func() error {
		var err error
		n, err = h.r.Read(ctx, offset, out)
		return err
	})
	return n, err
}

// retryingWriteHandle wraps a Writer, retrying Sync/Flush/Close and
// arming a finalizer that closes the underlying spill file if the caller
// forgets to, matching the reference implementation's destructor.
type retryingWriteHandle struct {
	w       *s3fs.Writer
	retryer *retry.Retryer
	closed  bool
}

func newRetryingWriteHandle(w *s3fs.Writer, retryer *retry.Retryer) *retryingWriteHandle {
	h := &retryingWriteHandle{w: w, retryer: retryer}
	runtime.SetFinalizer(h, func(h *retryingWriteHandle) {
		if !h.closed {
			_ = h.w.Close(context.Background())
		}
	})
	return h
}

func (h *retryingWriteHandle) Append(data []byte) error {
	return h.w.Append(data)
}

func (h *retryingWriteHandle) Sync(ctx context.Context) error {
	return h.retryer.Do(ctx, func() error {
		return h.w.Sync(ctx)
	})
}

func (h *retryingWriteHandle) Flush(ctx context.Context) error {
	return h.retryer.Do(ctx, func() error {
		return h.w.Flush(ctx)
	})
}

func (h *retryingWriteHandle) Close(ctx context.Context) error {
	err := h.retryer.Do(ctx, func() error {
		return h.w.Close(ctx)
	})
	h.closed = true
	runtime.SetFinalizer(h, nil)
	return err
}
