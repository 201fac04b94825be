// internal/alerting/notifier.go
package alerting

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/opsforge/pulse/internal/metrics"
)

// Notifier delivers one alert to an external channel (pager, chat, email).
// Implementations live outside this core.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, alert Alert) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc struct {
	SinkName string
	Fn       func(ctx context.Context, alert Alert) error
}

func (n NotifierFunc) Name() string { return n.SinkName }

func (n NotifierFunc) Notify(ctx context.Context, alert Alert) error {
	return n.Fn(ctx, alert)
}

// DispatcherConfig configures alert delivery.
type DispatcherConfig struct {
	// PerSinkTimeout bounds every sink call; a stuck pager integration is
	// abandoned, not waited on.
	PerSinkTimeout time.Duration
	// RatePerMinute caps delivered alerts; the surplus is counted and
	// dropped so an alert storm cannot page a team into the ground.
	RatePerMinute float64
	// Burst allows short spikes above the sustained rate.
	Burst int
}

// Dispatcher fans alerts out to registered notifiers with per-sink
// isolation: one failing or hanging sink never blocks the others, and never
// propagates back into the collector loop.
type Dispatcher struct {
	config    DispatcherConfig
	limiter   *rate.Limiter
	telemetry *metrics.Telemetry
	logger    *zap.Logger

	mu    sync.RWMutex
	sinks []Notifier
}

// NewDispatcher creates a dispatcher. Zero config fields get working
// defaults.
func NewDispatcher(config DispatcherConfig, telemetry *metrics.Telemetry, logger *zap.Logger) *Dispatcher {
	if config.PerSinkTimeout <= 0 {
		config.PerSinkTimeout = 5 * time.Second
	}
	if config.RatePerMinute <= 0 {
		config.RatePerMinute = 60
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}
	if telemetry == nil {
		telemetry = metrics.NewTelemetry(nil)
	}
	return &Dispatcher{
		config:    config,
		limiter:   rate.NewLimiter(rate.Limit(config.RatePerMinute/60), config.Burst),
		telemetry: telemetry,
		logger:    logger.Named("dispatcher"),
	}
}

// AddSink registers a notifier.
func (d *Dispatcher) AddSink(sink Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, sink)
}

// Dispatch delivers each alert to every sink. Rate-limited alerts are
// dropped with a counter rather than queued: stale pages are worse than
// missing ones when the next tick will re-fire anyway.
func (d *Dispatcher) Dispatch(ctx context.Context, alerts []Alert) {
	d.mu.RLock()
	sinks := make([]Notifier, len(d.sinks))
	copy(sinks, d.sinks)
	d.mu.RUnlock()

	for _, alert := range alerts {
		d.telemetry.AlertsFired.WithLabelValues(alert.Type, alert.Severity).Inc()

		if !d.limiter.Allow() {
			d.telemetry.AlertsDropped.Inc()
			d.logger.Warn("alert dropped by rate limiter",
				zap.String("type", alert.Type))
			continue
		}

		for _, sink := range sinks {
			d.notifyOne(ctx, sink, alert)
		}
	}
}

// notifyOne calls a single sink with a timeout, recovering panics so a bad
// integration cannot take the monitoring loop down.
func (d *Dispatcher) notifyOne(ctx context.Context, sink Notifier, alert Alert) {
	sctx, cancel := context.WithTimeout(ctx, d.config.PerSinkTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("notifier panicked",
					zap.String("sink", sink.Name()),
					zap.Any("panic", r))
				done <- nil
			}
		}()
		done <- sink.Notify(sctx, alert)
	}()

	select {
	case err := <-done:
		if err != nil {
			d.logger.Error("notify failed",
				zap.String("sink", sink.Name()),
				zap.String("type", alert.Type),
				zap.Error(err))
		}
	case <-sctx.Done():
		d.logger.Error("notify timed out",
			zap.String("sink", sink.Name()),
			zap.String("type", alert.Type))
	}
}
