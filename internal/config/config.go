// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// weightEpsilon is the tolerance when checking that risk weights sum to 1.0.
const weightEpsilon = 1e-6

// Config is the root configuration for the monitoring core.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Collector CollectorConfig `yaml:"collector"`
	Risk      RiskConfig      `yaml:"risk"`
	Alerts    AlertConfig     `yaml:"alerts"`
	Scaling   ScalingConfig   `yaml:"scaling"`
	Storage   StorageConfig   `yaml:"storage"`
	LogLevel  string          `yaml:"log_level"`
}

// ServerConfig describes the operational HTTP surface.
type ServerConfig struct {
	Port        int `yaml:"port"`
	MetricsPort int `yaml:"metrics_port"`
}

// CollectorConfig configures the sampling loop.
type CollectorConfig struct {
	Interval      time.Duration `yaml:"interval"`
	SampleWindow  int           `yaml:"sample_window"`
	SourceTimeout time.Duration `yaml:"source_timeout"`
	PublishGrace  time.Duration `yaml:"publish_grace"`
}

// RiskConfig holds category weights and mitigation behavior.
type RiskConfig struct {
	Weights            map[string]float64 `yaml:"weights"`
	MitigationDiscount float64            `yaml:"mitigation_discount"`
	Triggers           map[string]float64 `yaml:"triggers"`
}

// AlertConfig holds one threshold per alert rule.
type AlertConfig struct {
	ResponseTimeWarningMs float64 `yaml:"response_time_warning_ms"`
	ApdexCritical         float64 `yaml:"apdex_critical"`
	SuccessRateCritical   float64 `yaml:"success_rate_critical"`
	CPUWarningPercent     float64 `yaml:"cpu_warning_percent"`
	FreeMemoryCriticalMB  float64 `yaml:"free_memory_critical_mb"`
	FailedAuthCritical    float64 `yaml:"failed_auth_critical"`
	QueueDepthWarning     float64 `yaml:"queue_depth_warning"`
	CacheHitRateWarning   float64 `yaml:"cache_hit_rate_warning"`
}

// ScalingConfig holds the thresholds feeding the scaling policy.
type ScalingConfig struct {
	MemoryPercent     float64 `yaml:"memory_percent"`
	CPUPercent        float64 `yaml:"cpu_percent"`
	RequestsPerMin    float64 `yaml:"requests_per_min"`
	CacheHitRateFloor float64 `yaml:"cache_hit_rate_floor"`
}

// StorageConfig configures the optional snapshot sinks.
type StorageConfig struct {
	Retention   time.Duration `yaml:"retention"`
	PostgresURL string        `yaml:"postgres_url"`
}

// Default returns a configuration with working defaults for every field.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			MetricsPort: 9090,
		},
		Collector: CollectorConfig{
			Interval:      30 * time.Second,
			SampleWindow:  1000,
			SourceTimeout: 5 * time.Second,
			PublishGrace:  2 * time.Second,
		},
		Risk: RiskConfig{
			Weights: map[string]float64{
				"feature":       0.25,
				"dependency":    0.35,
				"model":         0.20,
				"environmental": 0.20,
			},
			MitigationDiscount: 0.20,
			Triggers: map[string]float64{
				"feature":       0.6,
				"dependency":    0.6,
				"model":         0.6,
				"environmental": 0.6,
			},
		},
		Alerts: AlertConfig{
			ResponseTimeWarningMs: 500,
			ApdexCritical:         0.7,
			SuccessRateCritical:   0.95,
			CPUWarningPercent:     80,
			FreeMemoryCriticalMB:  256,
			FailedAuthCritical:    10,
			QueueDepthWarning:     100,
			CacheHitRateWarning:   0.5,
		},
		Scaling: ScalingConfig{
			MemoryPercent:     85,
			CPUPercent:        75,
			RequestsPerMin:    1000,
			CacheHitRateFloor: 0.8,
		},
		Storage: StorageConfig{
			Retention: 24 * time.Hour,
		},
		LogLevel: "info",
	}
}

// Load reads configuration from the given YAML file, layered over defaults,
// with environment overrides applied last. Validation failures are returned
// so callers can fail fast before any component starts.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PULSE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PULSE_POSTGRES_URL"); v != "" {
		cfg.Storage.PostgresURL = v
	}
	if v := os.Getenv("PULSE_COLLECT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Collector.Interval = d
		}
	}
}

// Validate checks the whole configuration, naming the offending field on error.
func (c *Config) Validate() error {
	if c.Collector.Interval <= 0 {
		return errors.New("config: collector.interval must be positive")
	}
	if c.Collector.SampleWindow <= 0 {
		return errors.New("config: collector.sample_window must be positive")
	}
	if c.Collector.SourceTimeout <= 0 {
		return errors.New("config: collector.source_timeout must be positive")
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	if err := c.Alerts.Validate(); err != nil {
		return err
	}
	if err := c.Scaling.Validate(); err != nil {
		return err
	}
	return nil
}

// Validate checks risk weights and triggers.
func (c *RiskConfig) Validate() error {
	if len(c.Weights) == 0 {
		return errors.New("config: risk.weights is required")
	}
	var sum float64
	for name, w := range c.Weights {
		if w < 0 {
			return fmt.Errorf("config: risk.weights.%s must not be negative", name)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightEpsilon {
		return fmt.Errorf("config: risk.weights must sum to 1.0, got %v", sum)
	}
	if c.MitigationDiscount < 0 || c.MitigationDiscount >= 1 {
		return fmt.Errorf("config: risk.mitigation_discount must be in [0,1), got %v", c.MitigationDiscount)
	}
	for name, t := range c.Triggers {
		if t < 0 {
			return fmt.Errorf("config: risk.triggers.%s must not be negative", name)
		}
	}
	return nil
}

// Validate checks alert thresholds.
func (c *AlertConfig) Validate() error {
	if c.ResponseTimeWarningMs < 0 {
		return errors.New("config: alerts.response_time_warning_ms must not be negative")
	}
	if c.ApdexCritical < 0 || c.ApdexCritical > 1 {
		return fmt.Errorf("config: alerts.apdex_critical must be in [0,1], got %v", c.ApdexCritical)
	}
	if c.SuccessRateCritical < 0 || c.SuccessRateCritical > 1 {
		return fmt.Errorf("config: alerts.success_rate_critical must be in [0,1], got %v", c.SuccessRateCritical)
	}
	if c.CPUWarningPercent < 0 || c.FreeMemoryCriticalMB < 0 || c.FailedAuthCritical < 0 {
		return errors.New("config: alert thresholds must not be negative")
	}
	return nil
}

// Validate checks scaling thresholds.
func (c *ScalingConfig) Validate() error {
	if c.MemoryPercent < 0 || c.CPUPercent < 0 || c.RequestsPerMin < 0 {
		return errors.New("config: scaling thresholds must not be negative")
	}
	if c.CacheHitRateFloor < 0 || c.CacheHitRateFloor > 1 {
		return fmt.Errorf("config: scaling.cache_hit_rate_floor must be in [0,1], got %v", c.CacheHitRateFloor)
	}
	return nil
}
