package s3

import (
	"context"

	"github.com/objstore/s3vfs/pkg/objferr"
)

// Executor is a counting semaphore bounding how many operations run through
// it concurrently. The adapter's transfer executor is a fixed pool of
// ExecutorPoolSize workers; the client provider passes Executor's Size to
// the CargoShip transporter as its upload concurrency. The multipart-copy
// routine copies parts one at a time and does not go through Executor.
type Executor struct {
	tokens chan struct{}
}

// NewExecutor creates an Executor with the given worker count. A size <= 0
// falls back to ExecutorPoolSize.
func NewExecutor(size int) *Executor {
	if size <= 0 {
		size = ExecutorPoolSize
	}
	return &Executor{tokens: make(chan struct{}, size)}
}

// Acquire blocks until a worker slot is available or ctx is done.
func (e *Executor) Acquire(ctx context.Context) error {
	select {
	case e.tokens <- struct{}{}:
		return nil
	case <-ctx.Done():
		return objferr.Wrap(objferr.Aborted, "executor_acquire", "canceled waiting for a worker slot", ctx.Err())
	}
}

// Release frees a worker slot acquired via Acquire.
func (e *Executor) Release() {
	<-e.tokens
}

// Go runs f under the executor's concurrency bound, blocking until a slot
// is free or ctx is canceled.
func (e *Executor) Go(ctx context.Context, f func() error) error {
	if err := e.Acquire(ctx); err != nil {
		return err
	}
	defer e.Release()
	return f()
}

// Size reports the worker pool's fixed capacity.
func (e *Executor) Size() int {
	return cap(e.tokens)
}
