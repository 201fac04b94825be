// internal/alerting/engine.go
package alerting

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opsforge/pulse/internal/config"
	"github.com/opsforge/pulse/internal/metrics"
	"github.com/opsforge/pulse/internal/risk"
)

// Severities
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert types
const (
	TypeHighResponseTime = "high_response_time"
	TypeLowApdex         = "low_apdex"
	TypeLowSuccessRate   = "low_success_rate"
	TypeHighCPU          = "high_cpu"
	TypeLowMemory        = "low_memory"
	TypeBruteForce       = "brute_force"
	TypeQueueBacklog     = "queue_backlog"
	TypeLowCacheHitRate  = "low_cache_hit_rate"
	TypeHighRisk         = "high_risk"
)

// Alert is a fired condition. It is immutable and terminal: resolution and
// deduplication belong to whatever notification layer consumes it.
type Alert struct {
	ID          string                  `json:"id"`
	Type        string                  `json:"type"`
	Severity    string                  `json:"severity"`
	Message     string                  `json:"message"`
	TriggeredAt time.Time               `json:"triggered_at"`
	Snapshot    *metrics.MetricSnapshot `json:"-"`
}

// rule is one predicate in the flat evaluation list. fire returns whether
// the rule applies plus a human-readable message.
type rule struct {
	typ      string
	severity string
	fire     func(snap *metrics.MetricSnapshot, a *risk.Assessment, cfg *config.AlertConfig) (bool, string)
}

// rules is evaluated top to bottom; every matching rule produces an alert.
// There is no firing-state suppression here: the engine reports what is true
// of this snapshot, every time.
var rules = []rule{
	{
		typ:      TypeHighResponseTime,
		severity: SeverityWarning,
		fire: func(snap *metrics.MetricSnapshot, _ *risk.Assessment, cfg *config.AlertConfig) (bool, string) {
			rt := snap.Application.AvgResponseTimeMs
			if rt > cfg.ResponseTimeWarningMs {
				return true, fmt.Sprintf("average response time %.0fms exceeds %.0fms", rt, cfg.ResponseTimeWarningMs)
			}
			return false, ""
		},
	},
	{
		typ:      TypeLowApdex,
		severity: SeverityCritical,
		fire: func(snap *metrics.MetricSnapshot, _ *risk.Assessment, cfg *config.AlertConfig) (bool, string) {
			if snap.Application.Apdex < cfg.ApdexCritical {
				return true, fmt.Sprintf("apdex %.3f below %.2f", snap.Application.Apdex, cfg.ApdexCritical)
			}
			return false, ""
		},
	},
	{
		typ:      TypeLowSuccessRate,
		severity: SeverityCritical,
		fire: func(snap *metrics.MetricSnapshot, _ *risk.Assessment, cfg *config.AlertConfig) (bool, string) {
			if snap.Application.SuccessRate < cfg.SuccessRateCritical {
				return true, fmt.Sprintf("success rate %.3f below %.2f", snap.Application.SuccessRate, cfg.SuccessRateCritical)
			}
			return false, ""
		},
	},
	{
		typ:      TypeHighCPU,
		severity: SeverityWarning,
		fire: func(snap *metrics.MetricSnapshot, _ *risk.Assessment, cfg *config.AlertConfig) (bool, string) {
			if snap.Infrastructure.CPUPercent > cfg.CPUWarningPercent {
				return true, fmt.Sprintf("cpu %.1f%% exceeds %.0f%%", snap.Infrastructure.CPUPercent, cfg.CPUWarningPercent)
			}
			return false, ""
		},
	},
	{
		typ:      TypeLowMemory,
		severity: SeverityCritical,
		fire: func(snap *metrics.MetricSnapshot, _ *risk.Assessment, cfg *config.AlertConfig) (bool, string) {
			// A zero reading means the gauge was never sampled, not that
			// the host is out of memory.
			free := snap.Infrastructure.MemoryFreeMB
			if free > 0 && free < cfg.FreeMemoryCriticalMB {
				return true, fmt.Sprintf("free memory %.0fMB below %.0fMB", free, cfg.FreeMemoryCriticalMB)
			}
			return false, ""
		},
	},
	{
		typ:      TypeBruteForce,
		severity: SeverityCritical,
		fire: func(snap *metrics.MetricSnapshot, _ *risk.Assessment, cfg *config.AlertConfig) (bool, string) {
			failed := float64(snap.Risk.FailedAuthCount)
			if failed > cfg.FailedAuthCritical {
				return true, fmt.Sprintf("%d failed auth attempts exceed %.0f", snap.Risk.FailedAuthCount, cfg.FailedAuthCritical)
			}
			return false, ""
		},
	},
	{
		typ:      TypeQueueBacklog,
		severity: SeverityWarning,
		fire: func(snap *metrics.MetricSnapshot, _ *risk.Assessment, cfg *config.AlertConfig) (bool, string) {
			worstName, worstDepth := "", int64(-1)
			for name, depth := range snap.Application.QueueDepths {
				if float64(depth) > cfg.QueueDepthWarning && depth > worstDepth {
					worstName, worstDepth = name, depth
				}
			}
			if worstDepth >= 0 {
				return true, fmt.Sprintf("queue %s depth %d exceeds %.0f", worstName, worstDepth, cfg.QueueDepthWarning)
			}
			return false, ""
		},
	},
	{
		typ:      TypeLowCacheHitRate,
		severity: SeverityWarning,
		fire: func(snap *metrics.MetricSnapshot, _ *risk.Assessment, cfg *config.AlertConfig) (bool, string) {
			// Only meaningful once the cache has seen traffic.
			hitRate := snap.Application.CacheHitRate
			if hitRate > 0 && hitRate < cfg.CacheHitRateWarning {
				return true, fmt.Sprintf("cache hit rate %.2f below %.2f", hitRate, cfg.CacheHitRateWarning)
			}
			return false, ""
		},
	},
	{
		typ:      TypeHighRisk,
		severity: SeverityCritical,
		fire: func(_ *metrics.MetricSnapshot, a *risk.Assessment, _ *config.AlertConfig) (bool, string) {
			if a != nil && a.Level == risk.LevelHigh {
				return true, fmt.Sprintf("overall risk score %.2f is high", a.Score)
			}
			return false, ""
		},
	},
}

// Engine evaluates snapshots against the rule list. It holds no firing
// state; thresholds come from the config source on every evaluation so a
// hot reload takes effect on the next snapshot.
type Engine struct {
	cfg    config.Source
	logger *zap.Logger
}

// NewEngine creates an alert engine.
func NewEngine(cfg config.Source, logger *zap.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger.Named("alerting")}
}

// Evaluate returns every alert that applies to the snapshot right now.
// Given the same snapshot, assessment and thresholds, the same alert types
// and severities come back in the same order.
func (e *Engine) Evaluate(snap *metrics.MetricSnapshot, assessment *risk.Assessment) []Alert {
	cfg := &e.cfg.Current().Alerts

	var alerts []Alert
	for _, r := range rules {
		fired, message := r.fire(snap, assessment, cfg)
		if !fired {
			continue
		}
		alert := Alert{
			ID:          uuid.New().String(),
			Type:        r.typ,
			Severity:    r.severity,
			Message:     message,
			TriggeredAt: time.Now().UTC(),
			Snapshot:    snap,
		}
		alerts = append(alerts, alert)
		e.logger.Warn("alert fired",
			zap.String("type", alert.Type),
			zap.String("severity", alert.Severity),
			zap.String("message", alert.Message))
	}
	return alerts
}
