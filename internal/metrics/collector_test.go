// internal/metrics/collector_test.go
package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opsforge/pulse/internal/config"
)

func newTestCollector(store *Store, pub Publisher) *Collector {
	cfg := config.Default()
	cfg.Collector.Interval = 10 * time.Millisecond
	return NewCollector(store, nil, config.Static(cfg), NewTelemetry(nil), pub, zap.NewNop())
}

func TestCollector_CollectOnce(t *testing.T) {
	t.Run("reduces counters and samples", func(t *testing.T) {
		store := NewStore()
		store.Increment(KeyRequestsTotal, 100)
		store.Increment(KeyErrorsTotal, 5)
		store.Increment(KeyApdexSatisfied, 80)
		store.Increment(KeyApdexTolerating, 15)
		store.Increment(KeyCacheHitsTotal, 80)
		store.Increment(KeyCacheMissesTotal, 20)
		for i := 1; i <= 100; i++ {
			store.RecordSample(KeyResponseTimes, float64(i), 1000)
		}

		c := newTestCollector(store, nil)
		snap := c.CollectOnce(context.Background())

		assert.Equal(t, int64(100), snap.Application.RequestCount)
		assert.Equal(t, int64(5), snap.Application.ErrorCount)
		assert.Equal(t, 0.95, snap.Application.SuccessRate)
		assert.Equal(t, 0.875, snap.Application.Apdex)
		assert.Equal(t, 0.8, snap.Application.CacheHitRate)
		assert.Equal(t, 95.0, snap.Application.ResponseTimeP95Ms)
		assert.Equal(t, 99.0, snap.Application.ResponseTimeP99Ms)
		assert.Equal(t, 50.5, snap.Application.AvgResponseTimeMs)
	})

	t.Run("empty store degrades to zero values", func(t *testing.T) {
		c := newTestCollector(NewStore(), nil)
		snap := c.CollectOnce(context.Background())

		assert.Equal(t, int64(0), snap.Application.RequestCount)
		assert.Equal(t, 1.0, snap.Application.SuccessRate)
		assert.Equal(t, 1.0, snap.Application.Apdex)
		assert.Equal(t, 0.0, snap.Application.CacheHitRate)
		assert.Equal(t, 0.0, snap.Application.AvgResponseTimeMs)
	})

	t.Run("reads infrastructure gauges without sampler", func(t *testing.T) {
		store := NewStore()
		store.Set(KeyCPUPercent, 63.5)
		store.Set(KeyMemoryFreeMB, 2048)

		c := newTestCollector(store, nil)
		snap := c.CollectOnce(context.Background())

		assert.Equal(t, 63.5, snap.Infrastructure.CPUPercent)
		assert.Equal(t, 2048.0, snap.Infrastructure.MemoryFreeMB)
	})

	t.Run("extracts queue depths and risk factors", func(t *testing.T) {
		store := NewStore()
		store.Set(KeyQueueDepthPrefix+"mailers", 12)
		store.Set(KeyRiskFactorPrefix+"dependency", 0.4)
		store.Increment(KeyFailedAuthTotal, 3)

		c := newTestCollector(store, nil)
		snap := c.CollectOnce(context.Background())

		assert.Equal(t, int64(12), snap.Application.QueueDepths["mailers"])
		assert.Equal(t, 0.4, snap.Risk.Factors["dependency"])
		assert.Equal(t, int64(3), snap.Risk.FailedAuthCount)
	})

	t.Run("idempotent against an unchanged store", func(t *testing.T) {
		store := NewStore()
		store.Increment(KeyRequestsTotal, 50)
		store.RecordSample(KeyResponseTimes, 120, 100)
		store.Set(KeyCPUPercent, 40)

		c := newTestCollector(store, nil)
		first := c.CollectOnce(context.Background())
		second := c.CollectOnce(context.Background())

		// Timestamps differ; everything derived must match.
		first.Timestamp = time.Time{}
		second.Timestamp = time.Time{}
		assert.Equal(t, first, second)
	})
}

type capturingPublisher struct {
	mu    sync.Mutex
	snaps []*MetricSnapshot
}

func (p *capturingPublisher) Publish(_ context.Context, snap *MetricSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, snap)
}

func (p *capturingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snaps)
}

type panickingPublisher struct {
	after *capturingPublisher
	calls atomic.Int64
}

func (p *panickingPublisher) Publish(ctx context.Context, snap *MetricSnapshot) {
	if p.calls.Add(1) == 1 {
		panic("subscriber exploded")
	}
	p.after.Publish(ctx, snap)
}

func TestCollector_Run(t *testing.T) {
	t.Run("publishes on every tick and stops on cancel", func(t *testing.T) {
		store := NewStore()
		pub := &capturingPublisher{}
		c := newTestCollector(store, pub)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			c.Run(ctx)
		}()

		require.Eventually(t, func() bool { return pub.count() >= 3 },
			2*time.Second, 5*time.Millisecond)

		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("collector did not stop after cancel")
		}
	})

	t.Run("a panicking tick does not stop the loop", func(t *testing.T) {
		store := NewStore()
		after := &capturingPublisher{}
		pub := &panickingPublisher{after: after}
		c := newTestCollector(store, pub)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go c.Run(ctx)

		// First tick panics; later ticks must still arrive.
		assert.Eventually(t, func() bool { return after.count() >= 2 },
			2*time.Second, 5*time.Millisecond)
	})
}

func TestCollector_RequestRate(t *testing.T) {
	t.Run("first collection establishes a zero baseline", func(t *testing.T) {
		store := NewStore()
		store.Increment(KeyRequestsTotal, 100)
		c := newTestCollector(store, nil)

		snap := c.CollectOnce(context.Background())
		assert.Equal(t, 0.0, snap.Application.RequestsPerMinute)
	})

	t.Run("rate reflects counter delta", func(t *testing.T) {
		store := NewStore()
		c := newTestCollector(store, nil)
		_ = c.CollectOnce(context.Background())

		store.Increment(KeyRequestsTotal, 600)
		time.Sleep(20 * time.Millisecond)
		snap := c.CollectOnce(context.Background())
		assert.Greater(t, snap.Application.RequestsPerMinute, 0.0)
	})
}
