// internal/scaling/engine.go
package scaling

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opsforge/pulse/internal/config"
	"github.com/opsforge/pulse/internal/metrics"
	"github.com/opsforge/pulse/internal/risk"
)

// Strategy is the remediation class a decision selects.
type Strategy string

const (
	StrategyNone                 Strategy = "none"
	StrategyHorizontal           Strategy = "horizontal"
	StrategyVertical             Strategy = "vertical"
	StrategyCacheOptimization    Strategy = "cache_optimization"
	StrategyDatabaseOptimization Strategy = "database_optimization"
)

// Decision is emitted once per evaluation. Callers always receive one, even
// when the answer is "optimize in place" (StrategyNone); the core never
// returns nil and never tracks what provisioning does with it.
type Decision struct {
	ID         string                  `json:"id"`
	Strategy   Strategy                `json:"strategy"`
	Reason     string                  `json:"reason"`
	Snapshot   *metrics.MetricSnapshot `json:"-"`
	Assessment *risk.Assessment        `json:"-"`
	DecidedAt  time.Time               `json:"decided_at"`
}

// Engine chooses a scaling strategy from a snapshot and a risk assessment.
// It is stateless; thresholds are read per evaluation so config reloads
// apply immediately.
type Engine struct {
	cfg    config.Source
	logger *zap.Logger
}

// NewEngine creates a scaling engine.
func NewEngine(cfg config.Source, logger *zap.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger.Named("scaling")}
}

// ShouldScale gates whether any remediation is warranted: true when any
// risk category is critical, or when at least two categories are high.
func (e *Engine) ShouldScale(a *risk.Assessment) bool {
	if a == nil {
		return false
	}
	high := 0
	for category := range a.Categories {
		if a.CategoryCritical(category) {
			return true
		}
		if a.CategoryHigh(category) {
			high++
		}
	}
	return high >= 2
}

// Decide picks exactly one strategy. The priority order is the contract:
//
//  1. environmental risk critical        -> database_optimization
//  2. memory or cpu over threshold       -> vertical
//  3. request rate over threshold        -> horizontal
//  4. cache hit rate under its floor     -> cache_optimization
//  5. otherwise                          -> horizontal
//
// The unconditional horizontal fallback mirrors the long-standing policy
// this engine replaces; a distinct "no action" branch exists only via the
// ShouldScale gate.
func (e *Engine) Decide(snap *metrics.MetricSnapshot, a *risk.Assessment) Decision {
	decision := Decision{
		ID:         uuid.New().String(),
		Snapshot:   snap,
		Assessment: a,
		DecidedAt:  time.Now().UTC(),
	}

	if !e.ShouldScale(a) {
		decision.Strategy = StrategyNone
		decision.Reason = "risk below scaling gate"
		return decision
	}

	cfg := &e.cfg.Current().Scaling
	switch {
	case a.CategoryCritical(risk.CategoryEnvironmental):
		decision.Strategy = StrategyDatabaseOptimization
		decision.Reason = "environmental risk critical"
	case snap.Infrastructure.MemoryUsedPercent > cfg.MemoryPercent ||
		snap.Infrastructure.CPUPercent > cfg.CPUPercent:
		decision.Strategy = StrategyVertical
		decision.Reason = "cpu or memory saturated"
	case snap.Application.RequestsPerMinute > cfg.RequestsPerMin:
		decision.Strategy = StrategyHorizontal
		decision.Reason = "request rate over threshold"
	case snap.Application.CacheHitRate < cfg.CacheHitRateFloor:
		decision.Strategy = StrategyCacheOptimization
		decision.Reason = "cache hit rate under floor"
	default:
		decision.Strategy = StrategyHorizontal
		decision.Reason = "default fallback"
	}

	e.logger.Info("scaling decision",
		zap.String("strategy", string(decision.Strategy)),
		zap.String("reason", decision.Reason))
	return decision
}
