// internal/metrics/collector.go
package metrics

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opsforge/pulse/internal/config"
)

// Gauge keys the collector falls back to when no SystemSampler is attached.
// They let tests and non-Linux deployments feed infrastructure readings
// through the store like any other gauge.
const (
	KeyCPUPercent        = "cpu_percent"
	KeyMemoryUsedPercent = "memory_used_percent"
	KeyMemoryFreeMB      = "memory_free_mb"
	KeyDiskUsedPercent   = "disk_used_percent"
)

// Publisher receives each snapshot produced by the collector loop.
type Publisher interface {
	Publish(ctx context.Context, snap *MetricSnapshot)
}

// Collector owns the recurring sampling loop. It is the store's only reader.
type Collector struct {
	store     *Store
	system    *SystemSampler
	cfg       config.Source
	telemetry *Telemetry
	publisher Publisher
	logger    *zap.Logger

	mu           sync.Mutex
	lastRequests int64
	lastCollect  time.Time
}

// NewCollector creates a collector. system and publisher may be nil: without
// a sampler, infrastructure gauges are read from the store; without a
// publisher, snapshots are only returned to the caller.
func NewCollector(store *Store, system *SystemSampler, cfg config.Source, telemetry *Telemetry, publisher Publisher, logger *zap.Logger) *Collector {
	if telemetry == nil {
		telemetry = NewTelemetry(nil)
	}
	return &Collector{
		store:     store,
		system:    system,
		cfg:       cfg,
		telemetry: telemetry,
		publisher: publisher,
		logger:    logger.Named("collector"),
	}
}

// CollectOnce reduces the current store contents into a snapshot. It never
// fails: unreadable external sources degrade to last-known-good or zero.
func (c *Collector) CollectOnce(ctx context.Context) *MetricSnapshot {
	start := time.Now()
	defer func() {
		c.telemetry.CollectDuration.Observe(time.Since(start).Seconds())
	}()

	cfg := c.cfg.Current()
	dump := c.store.ReadAll()

	snap := &MetricSnapshot{
		Timestamp:      time.Now().UTC(),
		Application:    c.applicationMetrics(dump),
		Infrastructure: c.infrastructureMetrics(ctx, dump, cfg),
		Business: BusinessMetrics{
			ActiveUsers:    int64(dump.Gauges[KeyActiveUsers]),
			ConversionRate: dump.Gauges[KeyConversionRate],
			ChurnRate:      dump.Gauges[KeyChurnRate],
		},
		Risk: RiskMetrics{
			FailedAuthCount: dump.Counters[KeyFailedAuthTotal],
			RateLimitHits:   dump.Counters[KeyRateLimitHitsTotal],
			PanicCount:      dump.Counters[KeyPanicsTotal],
			Factors:         prefixedGauges(dump.Gauges, KeyRiskFactorPrefix),
		},
	}
	return snap
}

func (c *Collector) applicationMetrics(dump Dump) ApplicationMetrics {
	requests := dump.Counters[KeyRequestsTotal]
	errors := dump.Counters[KeyErrorsTotal]

	successRate := 1.0
	if requests > 0 {
		successRate = float64(requests-errors) / float64(requests)
	}

	samples := append([]float64(nil), dump.Samples[KeyResponseTimes]...)
	sort.Float64s(samples)

	poolUsage := 0.0
	if poolMax := dump.Gauges[KeyDBPoolMax]; poolMax > 0 {
		poolUsage = 100 * dump.Gauges[KeyDBPoolInUse] / poolMax
	}

	depths := make(map[string]int64)
	for name, v := range dump.Gauges {
		if strings.HasPrefix(name, KeyQueueDepthPrefix) {
			depths[strings.TrimPrefix(name, KeyQueueDepthPrefix)] = int64(v)
		}
	}
	if len(depths) == 0 {
		depths = nil
	}

	return ApplicationMetrics{
		RequestCount:      requests,
		ErrorCount:        errors,
		SuccessRate:       successRate,
		RequestsPerMinute: c.requestRate(requests),
		AvgResponseTimeMs: Mean(samples),
		ResponseTimeP50Ms: Percentile(samples, 50),
		ResponseTimeP95Ms: Percentile(samples, 95),
		ResponseTimeP99Ms: Percentile(samples, 99),
		Apdex: Apdex(
			float64(dump.Counters[KeyApdexSatisfied]),
			float64(dump.Counters[KeyApdexTolerating]),
			float64(requests),
		),
		CacheHitRate: Ratio(
			float64(dump.Counters[KeyCacheHitsTotal]),
			float64(dump.Counters[KeyCacheMissesTotal]),
		),
		DBPoolUsage: poolUsage,
		QueueDepths: depths,
	}
}

func (c *Collector) infrastructureMetrics(ctx context.Context, dump Dump, cfg *config.Config) InfrastructureMetrics {
	if c.system == nil {
		return InfrastructureMetrics{
			CPUPercent:        dump.Gauges[KeyCPUPercent],
			MemoryUsedPercent: dump.Gauges[KeyMemoryUsedPercent],
			MemoryFreeMB:      dump.Gauges[KeyMemoryFreeMB],
			DiskUsedPercent:   dump.Gauges[KeyDiskUsedPercent],
		}
	}

	sctx, cancel := context.WithTimeout(ctx, cfg.Collector.SourceTimeout)
	defer cancel()
	return c.system.Sample(sctx)
}

// requestRate derives requests-per-minute from the counter delta since the
// previous collection. The first collection establishes the baseline and
// reports zero.
func (c *Collector) requestRate(requests int64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	defer func() {
		c.lastRequests = requests
		c.lastCollect = now
	}()

	if c.lastCollect.IsZero() {
		return 0
	}
	delta := requests - c.lastRequests
	elapsed := now.Sub(c.lastCollect).Minutes()
	if delta <= 0 || elapsed <= 0 {
		return 0
	}
	return float64(delta) / elapsed
}

// Run drives the sampling loop until ctx is cancelled. Each tick collects a
// snapshot and hands it to the publisher. A panicking tick is recovered,
// counted and logged with its snapshot; the loop continues on schedule.
func (c *Collector) Run(ctx context.Context) {
	interval := c.cfg.Current().Collector.Interval
	c.logger.Info("collector started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("collector stopped")
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Collector) tick(ctx context.Context) {
	c.telemetry.TicksTotal.Inc()

	var snap *MetricSnapshot
	defer func() {
		if r := recover(); r != nil {
			c.telemetry.TickErrors.Inc()
			c.logger.Error("tick panicked",
				zap.Any("panic", r),
				zap.Any("snapshot", snap))
		}
	}()

	snap = c.CollectOnce(ctx)
	if c.publisher != nil {
		c.publisher.Publish(ctx, snap)
	}
}

func prefixedGauges(gauges map[string]float64, prefix string) map[string]float64 {
	var out map[string]float64
	for name, v := range gauges {
		if strings.HasPrefix(name, prefix) {
			if out == nil {
				out = make(map[string]float64)
			}
			out[strings.TrimPrefix(name, prefix)] = v
		}
	}
	return out
}
