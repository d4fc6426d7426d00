package s3

import (
	"time"

	"github.com/objstore/s3vfs/pkg/objferr"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors the adapter exposes: retry
// attempts and backoff delay by error kind, and per-operation façade
// latency. Register it once against a prometheus.Registerer at startup.
type Metrics struct {
	RetryAttempts   *prometheus.CounterVec
	BackoffSeconds  *prometheus.HistogramVec
	OperationLatency *prometheus.HistogramVec
}

// NewMetrics constructs the collectors without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		RetryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "s3vfs",
			Name:      "retry_attempts_total",
			Help:      "Retry attempts made by the retry decorator, by the error kind that triggered them.",
		}, []string{"kind"}),
		BackoffSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "s3vfs",
			Name:      "retry_backoff_seconds",
			Help:      "Backoff delay observed before a retry attempt, by error kind.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"kind"}),
		OperationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "s3vfs",
			Name:      "operation_latency_seconds",
			Help:      "Filesystem façade operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// MustRegister registers every collector against reg, panicking on a
// duplicate-registration error (the same failure mode prometheus.Registry
// itself panics on when misused, so this matches the ecosystem's
// convention rather than inventing a softer one).
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.RetryAttempts, m.BackoffSeconds, m.OperationLatency)
}

// OnRetry adapts to pkg/retry.Config.OnRetry's signature, labeling each
// observation with the error kind that triggered the retry.
func (m *Metrics) OnRetry() func(attempt int, err error, delay time.Duration) {
	return func(_ int, err error, delay time.Duration) {
		label := objferr.KindOf(err).String()
		m.RetryAttempts.WithLabelValues(label).Inc()
		m.BackoffSeconds.WithLabelValues(label).Observe(delay.Seconds())
	}
}

// ObserveOperation records one façade operation's latency.
func (m *Metrics) ObserveOperation(operation string, d time.Duration) {
	m.OperationLatency.WithLabelValues(operation).Observe(d.Seconds())
}
