// Package retry implements the retry envelope that wraps every filesystem
// façade method and every file-handle method in exponential backoff with
// jitter, plus the absorbing rule that makes delete idempotent.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/objstore/s3vfs/pkg/objferr"
)

// Config defines retry behavior. The zero Config is invalid; use
// DefaultConfig or AdapterConfig and adjust fields as needed.
type Config struct {
	// MaxRetries is the number of retry attempts after the first call
	// before giving up and returning Aborted.
	MaxRetries int

	// InitialDelay is the base delay before the exponential shift; a
	// non-positive value disables sleeping between attempts entirely
	// (used by tests that want to exercise retry counting without
	// waiting in real time).
	InitialDelay time.Duration

	// MaxBackoff caps the exponential term before jitter is added.
	MaxBackoff time.Duration

	// RetriableKinds is the set of error kinds this Retryer will retry.
	RetriableKinds map[objferr.Kind]bool

	// OnRetry, if set, is called before each retry sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetriableKinds is the retriable set for the S3 adapter.
// Internal is included because it is also used by DeleteDir's
// directory-not-empty signal, which may clear as listings converge under
// eventual consistency.
func DefaultRetriableKinds() map[objferr.Kind]bool {
	return map[objferr.Kind]bool{
		objferr.Unavailable:        true,
		objferr.DeadlineExceeded:   true,
		objferr.Unknown:            true,
		objferr.FailedPrecondition: true,
		objferr.Internal:           true,
	}
}

// DefaultConfig matches the reference algorithm's module-level constants:
// a 1 second initial delay, 10 retries, 32 second backoff cap.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     10,
		InitialDelay:   1 * time.Second,
		MaxBackoff:     32 * time.Second,
		RetriableKinds: DefaultRetriableKinds(),
	}
}

// AdapterConfig is the configuration the filesystem façade's decorator is
// constructed with: a shorter initial delay than DefaultConfig, everything
// else identical.
func AdapterConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialDelay = 100 * time.Millisecond
	return cfg
}

// Retryer executes functions under the retry envelope described above.
type Retryer struct {
	cfg Config
}

// New constructs a Retryer, filling in DefaultConfig's values for a zero
// MaxRetries, MaxBackoff or RetriableKinds. A zero InitialDelay is kept
// as is and disables sleeping between attempts.
func New(cfg Config) *Retryer {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 10
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 32 * time.Second
	}
	if cfg.RetriableKinds == nil {
		cfg.RetriableKinds = DefaultRetriableKinds()
	}
	return &Retryer{cfg: cfg}
}

// Do runs f, retrying on retriable errors per cfg, and blocks the calling
// goroutine across backoff sleeps.
func (r *Retryer) Do(ctx context.Context, f func() error) error {
	return r.do(ctx, f, false)
}

// DoDelete runs f exactly like Do, except a NotFound result on any attempt
// after the first is rewritten to success: delete is idempotent under the
// store's eventual-consistency model, so a NotFound observed while retrying
// almost certainly means a prior attempt already succeeded.
func (r *Retryer) DoDelete(ctx context.Context, f func() error) error {
	isRetried := false
	return r.do(ctx, func() error {
		err := f()
		if isRetried && objferr.KindOf(err) == objferr.NotFound {
			return nil
		}
		isRetried = true
		return err
	}, true)
}

func (r *Retryer) do(ctx context.Context, f func() error, _ bool) error {
	attempts := 0
	for {
		if err := checkContext(ctx); err != nil {
			return err
		}

		err := f()
		if err == nil {
			return nil
		}
		if !r.cfg.RetriableKinds[objferr.KindOf(err)] {
			return err
		}
		if attempts >= r.cfg.MaxRetries {
			return objferr.Wrap(objferr.Aborted, "call_with_retries",
				fmt.Sprintf("all %d retry attempts failed", r.cfg.MaxRetries), err)
		}

		delay := r.backoff(attempts)
		if r.cfg.OnRetry != nil {
			r.cfg.OnRetry(attempts+1, err, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		attempts++
	}
}

// backoff computes the delay before retry attempt (0-indexed) k: the
// initial delay shifted left by k, capped at MaxBackoff, plus a uniform
// [0, 1s) jitter term that is always added regardless of the cap.
func (r *Retryer) backoff(k int) time.Duration {
	if r.cfg.InitialDelay <= 0 {
		return 0
	}
	base := r.cfg.InitialDelay << k
	if base > r.cfg.MaxBackoff {
		base = r.cfg.MaxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(time.Second)))
	return base + jitter
}

func checkContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return objferr.Wrap(objferr.Aborted, "call_with_retries", "canceled", ctx.Err())
	default:
		return nil
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return checkContext(ctx)
	}
	if ctx == nil {
		time.Sleep(d)
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return objferr.Wrap(objferr.Aborted, "call_with_retries", "canceled during backoff", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// Stats tracks aggregate retry behavior for the metrics package to sample.
type Stats struct {
	TotalCalls   int64
	TotalRetries int64
	TotalAborted int64
	TotalDelay   time.Duration
}

// StatsCollector accumulates Stats across many Retryer invocations when
// wired in as an OnRetry callback target.
type StatsCollector struct {
	stats Stats
}

func NewStatsCollector() *StatsCollector { return &StatsCollector{} }

func (sc *StatsCollector) OnRetry(_ int, _ error, delay time.Duration) {
	sc.stats.TotalRetries++
	sc.stats.TotalDelay += delay
}

func (sc *StatsCollector) RecordCall(aborted bool) {
	sc.stats.TotalCalls++
	if aborted {
		sc.stats.TotalAborted++
	}
}

func (sc *StatsCollector) GetStats() Stats { return sc.stats }

func (sc *StatsCollector) Reset() { sc.stats = Stats{} }
