// internal/events/bus.go
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opsforge/pulse/internal/metrics"
)

// SnapshotHandler consumes one published snapshot. Handlers must treat the
// snapshot as read-only.
type SnapshotHandler func(ctx context.Context, snap *metrics.MetricSnapshot)

// Bus fans each collected snapshot out to subscribers with per-subscriber
// isolation: a slow, failing or panicking subscriber is abandoned for that
// snapshot and the rest still receive it. Subscribers run sequentially in
// registration order so evaluation pipelines see snapshots exactly once and
// in order.
type Bus struct {
	timeout   time.Duration
	telemetry *metrics.Telemetry
	logger    *zap.Logger

	mu   sync.RWMutex
	subs []subscriber
}

type subscriber struct {
	name    string
	handler SnapshotHandler
}

// NewBus creates a bus. timeout bounds each subscriber's handling of one
// snapshot; zero means 2s.
func NewBus(timeout time.Duration, telemetry *metrics.Telemetry, logger *zap.Logger) *Bus {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if telemetry == nil {
		telemetry = metrics.NewTelemetry(nil)
	}
	return &Bus{
		timeout:   timeout,
		telemetry: telemetry,
		logger:    logger.Named("bus"),
	}
}

// Subscribe registers a named handler. Registration order is delivery order.
func (b *Bus) Subscribe(name string, handler SnapshotHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscriber{name: name, handler: handler})
}

// Publish delivers the snapshot to every subscriber. Implements the
// collector's Publisher contract.
func (b *Bus) Publish(ctx context.Context, snap *metrics.MetricSnapshot) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(ctx, sub, snap)
	}
}

func (b *Bus) deliver(ctx context.Context, sub subscriber, snap *metrics.MetricSnapshot) {
	sctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				b.telemetry.PublishDrops.WithLabelValues(sub.name).Inc()
				b.logger.Error("subscriber panicked",
					zap.String("subscriber", sub.name),
					zap.Any("panic", r))
			}
		}()
		sub.handler(sctx, snap)
	}()

	select {
	case <-done:
	case <-sctx.Done():
		b.telemetry.PublishDrops.WithLabelValues(sub.name).Inc()
		b.logger.Warn("subscriber timed out, snapshot dropped",
			zap.String("subscriber", sub.name),
			zap.Time("snapshot", snap.Timestamp))
	}
}
