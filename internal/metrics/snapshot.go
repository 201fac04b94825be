// internal/metrics/snapshot.go
package metrics

import (
	"math"
	"time"
)

// MetricSnapshot is an immutable reduction of the store taken once per
// collection tick. Consumers receive it by pointer but must treat it as
// read-only; the Collector never mutates a snapshot after publishing it.
type MetricSnapshot struct {
	Timestamp      time.Time             `json:"timestamp"`
	Application    ApplicationMetrics    `json:"application"`
	Infrastructure InfrastructureMetrics `json:"infrastructure"`
	Business       BusinessMetrics       `json:"business"`
	Risk           RiskMetrics           `json:"risk"`
}

// ApplicationMetrics groups request-level statistics.
type ApplicationMetrics struct {
	RequestCount      int64            `json:"request_count"`
	ErrorCount        int64            `json:"error_count"`
	SuccessRate       float64          `json:"success_rate"`
	RequestsPerMinute float64          `json:"requests_per_minute"`
	AvgResponseTimeMs float64          `json:"avg_response_time_ms"`
	ResponseTimeP50Ms float64          `json:"response_time_p50_ms"`
	ResponseTimeP95Ms float64          `json:"response_time_p95_ms"`
	ResponseTimeP99Ms float64          `json:"response_time_p99_ms"`
	Apdex             float64          `json:"apdex"`
	CacheHitRate      float64          `json:"cache_hit_rate"`
	DBPoolUsage       float64          `json:"db_pool_usage"`
	QueueDepths       map[string]int64 `json:"queue_depths,omitempty"`
}

// InfrastructureMetrics groups host-level gauges.
type InfrastructureMetrics struct {
	CPUPercent        float64 `json:"cpu_percent"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	MemoryFreeMB      float64 `json:"memory_free_mb"`
	DiskUsedPercent   float64 `json:"disk_used_percent"`
	NetworkRxBytes    float64 `json:"network_rx_bytes"`
	NetworkTxBytes    float64 `json:"network_tx_bytes"`
}

// BusinessMetrics groups product-level gauges.
type BusinessMetrics struct {
	ActiveUsers    int64   `json:"active_users"`
	ConversionRate float64 `json:"conversion_rate"`
	ChurnRate      float64 `json:"churn_rate"`
}

// RiskMetrics groups security and stability counters plus raw risk-factor
// gauges written by deploy tooling under the risk_factor.* keys.
type RiskMetrics struct {
	FailedAuthCount int64              `json:"failed_auth_count"`
	RateLimitHits   int64              `json:"rate_limit_hits"`
	PanicCount      int64              `json:"panic_count"`
	Factors         map[string]float64 `json:"factors,omitempty"`
}

// Percentile returns the pth percentile of samples using the nearest-rank
// index ceil(p/100*n)-1 clamped to the sample bounds. An empty slice yields
// zero rather than an error so a fresh process reads as healthy-but-idle.
// Samples must already be sorted ascending.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

// Apdex blends satisfied and tolerating request counts into a 0..1 score.
// Zero total reads as 1.0: no traffic means nobody was dissatisfied.
func Apdex(satisfied, tolerating, total float64) float64 {
	if total == 0 {
		return 1.0
	}
	return (satisfied + tolerating/2) / total
}

// Ratio returns num/(num+den), zero when both are zero. Used for cache hit
// rate and similar hit/miss pairs.
func Ratio(num, den float64) float64 {
	if num+den == 0 {
		return 0
	}
	return num / (num + den)
}

// Mean returns the arithmetic mean, zero for an empty slice.
func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}
