// internal/alerting/engine_test.go
package alerting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opsforge/pulse/internal/config"
	"github.com/opsforge/pulse/internal/metrics"
	"github.com/opsforge/pulse/internal/risk"
)

func newTestEngine() *Engine {
	return NewEngine(config.Static(config.Default()), zap.NewNop())
}

// healthySnapshot has every field inside default thresholds.
func healthySnapshot() *metrics.MetricSnapshot {
	return &metrics.MetricSnapshot{
		Application: metrics.ApplicationMetrics{
			RequestCount:      1000,
			SuccessRate:       0.99,
			AvgResponseTimeMs: 120,
			Apdex:             0.95,
			CacheHitRate:      0.9,
		},
		Infrastructure: metrics.InfrastructureMetrics{
			CPUPercent:        30,
			MemoryUsedPercent: 40,
			MemoryFreeMB:      4096,
		},
	}
}

func TestEngine_Evaluate(t *testing.T) {
	t.Run("healthy snapshot fires nothing", func(t *testing.T) {
		e := newTestEngine()
		alerts := e.Evaluate(healthySnapshot(), nil)
		assert.Empty(t, alerts)
	})

	t.Run("slow responses fire exactly one warning", func(t *testing.T) {
		e := newTestEngine()
		snap := healthySnapshot()
		snap.Application.AvgResponseTimeMs = 600

		alerts := e.Evaluate(snap, nil)
		require.Len(t, alerts, 1)
		assert.Equal(t, TypeHighResponseTime, alerts[0].Type)
		assert.Equal(t, SeverityWarning, alerts[0].Severity)
		assert.Same(t, snap, alerts[0].Snapshot)
	})

	t.Run("low apdex fires critical", func(t *testing.T) {
		e := newTestEngine()
		snap := healthySnapshot()
		snap.Application.Apdex = 0.65

		alerts := e.Evaluate(snap, nil)
		require.Len(t, alerts, 1)
		assert.Equal(t, TypeLowApdex, alerts[0].Type)
		assert.Equal(t, SeverityCritical, alerts[0].Severity)
	})

	t.Run("low success rate fires critical", func(t *testing.T) {
		e := newTestEngine()
		snap := healthySnapshot()
		snap.Application.SuccessRate = 0.90

		alerts := e.Evaluate(snap, nil)
		require.Len(t, alerts, 1)
		assert.Equal(t, TypeLowSuccessRate, alerts[0].Type)
	})

	t.Run("high cpu fires warning", func(t *testing.T) {
		e := newTestEngine()
		snap := healthySnapshot()
		snap.Infrastructure.CPUPercent = 92

		alerts := e.Evaluate(snap, nil)
		require.Len(t, alerts, 1)
		assert.Equal(t, TypeHighCPU, alerts[0].Type)
		assert.Equal(t, SeverityWarning, alerts[0].Severity)
	})

	t.Run("low free memory fires critical", func(t *testing.T) {
		e := newTestEngine()
		snap := healthySnapshot()
		snap.Infrastructure.MemoryFreeMB = 100

		alerts := e.Evaluate(snap, nil)
		require.Len(t, alerts, 1)
		assert.Equal(t, TypeLowMemory, alerts[0].Type)
	})

	t.Run("failed auth burst fires brute force", func(t *testing.T) {
		e := newTestEngine()
		snap := healthySnapshot()
		snap.Risk.FailedAuthCount = 50

		alerts := e.Evaluate(snap, nil)
		require.Len(t, alerts, 1)
		assert.Equal(t, TypeBruteForce, alerts[0].Type)
		assert.Equal(t, SeverityCritical, alerts[0].Severity)
	})

	t.Run("queue backlog names the deepest queue", func(t *testing.T) {
		e := newTestEngine()
		snap := healthySnapshot()
		snap.Application.QueueDepths = map[string]int64{"mailers": 150, "default": 500}

		alerts := e.Evaluate(snap, nil)
		require.Len(t, alerts, 1)
		assert.Equal(t, TypeQueueBacklog, alerts[0].Type)
		assert.Contains(t, alerts[0].Message, "default")
	})

	t.Run("high risk assessment fires critical", func(t *testing.T) {
		e := newTestEngine()
		assessment := &risk.Assessment{Score: 0.8, Level: risk.LevelHigh}

		alerts := e.Evaluate(healthySnapshot(), assessment)
		require.Len(t, alerts, 1)
		assert.Equal(t, TypeHighRisk, alerts[0].Type)
	})

	t.Run("multiple rules fire from one snapshot", func(t *testing.T) {
		e := newTestEngine()
		snap := healthySnapshot()
		snap.Application.AvgResponseTimeMs = 900
		snap.Application.Apdex = 0.5
		snap.Infrastructure.CPUPercent = 95

		alerts := e.Evaluate(snap, nil)
		assert.Len(t, alerts, 3)
	})

	t.Run("fresh process with zero metrics fires nothing", func(t *testing.T) {
		e := newTestEngine()
		snap := &metrics.MetricSnapshot{
			Application: metrics.ApplicationMetrics{
				SuccessRate: 1.0,
				Apdex:       1.0,
			},
		}
		alerts := e.Evaluate(snap, nil)
		assert.Empty(t, alerts)
	})

	t.Run("deterministic for identical input", func(t *testing.T) {
		e := newTestEngine()
		snap := healthySnapshot()
		snap.Application.Apdex = 0.4
		snap.Infrastructure.CPUPercent = 95

		first := e.Evaluate(snap, nil)
		for i := 0; i < 5; i++ {
			again := e.Evaluate(snap, nil)
			require.Len(t, again, len(first))
			for j := range again {
				assert.Equal(t, first[j].Type, again[j].Type)
				assert.Equal(t, first[j].Severity, again[j].Severity)
			}
		}
	})
}
