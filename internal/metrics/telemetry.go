// internal/metrics/telemetry.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Telemetry holds the monitoring core's own Prometheus metrics: how the
// collector and its downstream sinks are behaving, not the application
// metrics it samples.
type Telemetry struct {
	TicksTotal      prometheus.Counter
	TickErrors      prometheus.Counter
	CollectDuration prometheus.Histogram
	PublishDrops    *prometheus.CounterVec
	AlertsFired     *prometheus.CounterVec
	AlertsDropped   prometheus.Counter
	Decisions       *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewTelemetry creates and registers the core's self-metrics. Passing nil
// uses a private registry, which keeps tests free of duplicate-registration
// panics.
func NewTelemetry(reg *prometheus.Registry) *Telemetry {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Telemetry{
		TicksTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pulse_collector_ticks_total",
			Help: "Total number of collection ticks attempted.",
		}),
		TickErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pulse_collector_tick_errors_total",
			Help: "Collection ticks that recovered from a panic.",
		}),
		CollectDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "pulse_collect_duration_seconds",
			Help:    "Time spent reducing the store into a snapshot.",
			Buckets: prometheus.DefBuckets,
		}),
		PublishDrops: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_publish_drops_total",
			Help: "Snapshot publishes dropped per subscriber.",
		}, []string{"subscriber"}),
		AlertsFired: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_alerts_fired_total",
			Help: "Alerts produced by the alert engine.",
		}, []string{"type", "severity"}),
		AlertsDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pulse_alerts_dropped_total",
			Help: "Alerts dropped by the notification rate limiter.",
		}),
		Decisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_scaling_decisions_total",
			Help: "Scaling decisions emitted per strategy.",
		}, []string{"strategy"}),
		registry: reg,
	}
}

// Handler returns the HTTP handler serving this registry.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional collectors.
func (t *Telemetry) Registry() *prometheus.Registry {
	return t.registry
}
