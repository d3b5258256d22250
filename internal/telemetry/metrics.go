package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors shared across UCS, FIS, IFRS and
// DCS. Methods that read from a nil *Metrics are not safe to call; use
// GlobalMetrics to obtain the process-wide singleton instead of
// constructing one directly, so the collectors are registered exactly
// once.
type Metrics struct {
	// OutboxLagSeconds is the age of the oldest unpublished outbox row as
	// of the last publish-pending sweep. Zero means nothing was pending.
	OutboxLagSeconds prometheus.Gauge

	// OutboxPublished counts events the publish-pending sweep re-sent
	// (result=success) and sweeps that failed (result=error).
	OutboxPublished *prometheus.CounterVec

	// CleanupDeletions counts outbox objects DCS's cleanup sweep deleted.
	CleanupDeletions prometheus.Counter

	// CleanupErrors counts cleanup-sweep failures, including objects with
	// no matching DrsObject row — logged at error level and counted
	// here rather than aborting the sweep.
	CleanupErrors prometheus.Counter

	// CriticalErrors counts errors a service treats as critical, by
	// component, for alerting on conditions that warrant paging rather than
	// just logging. The logger has no level above error, so these events
	// are logged at error level.
	CriticalErrors *prometheus.CounterVec
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics builds and registers the shared metric set against registerer
// (prometheus.DefaultRegisterer if nil). Idempotent via sync.Once so
// repeated calls — e.g. from both a cmd/* main and its test setup — never
// panic on duplicate registration.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	metricsOnce.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}
		reg := promauto.With(registerer)

		metricsInstance = &Metrics{
			OutboxLagSeconds: reg.NewGauge(prometheus.GaugeOpts{
				Name: "dittofs_outbox_lag_seconds",
				Help: "Age in seconds of the oldest unpublished outbox event at the last publish-pending sweep.",
			}),
			OutboxPublished: reg.NewCounterVec(prometheus.CounterOpts{
				Name: "dittofs_outbox_published_total",
				Help: "Outbox events processed by the publish-pending sweep, by result.",
			}, []string{"result"}),
			CleanupDeletions: reg.NewCounter(prometheus.CounterOpts{
				Name: "dittofs_dcs_cleanup_deletions_total",
				Help: "Outbox bucket objects deleted by DCS's outbox cleanup sweep.",
			}),
			CleanupErrors: reg.NewCounter(prometheus.CounterOpts{
				Name: "dittofs_dcs_cleanup_errors_total",
				Help: "Errors encountered while cleaning up an outbox object, including rows with no matching DrsObject.",
			}),
			CriticalErrors: reg.NewCounterVec(prometheus.CounterOpts{
				Name: "dittofs_critical_errors_total",
				Help: "Critical-level errors logged, by component.",
			}, []string{"component"}),
		}
	})
	return metricsInstance
}

// GlobalMetrics returns the process-wide Metrics singleton, registering it
// against the default registry on first use.
func GlobalMetrics() *Metrics {
	return NewMetrics(nil)
}
