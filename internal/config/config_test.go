// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger { return zap.NewNop() }

func TestDefault(t *testing.T) {
	t.Run("defaults validate", func(t *testing.T) {
		cfg := Default()
		require.NoError(t, cfg.Validate())
	})

	t.Run("weights sum to one", func(t *testing.T) {
		cfg := Default()
		var sum float64
		for _, w := range cfg.Risk.Weights {
			sum += w
		}
		assert.InDelta(t, 1.0, sum, weightEpsilon)
	})
}

func TestLoad(t *testing.T) {
	t.Run("missing path uses defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, cfg.Collector.Interval)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		data := `
collector:
  interval: 10s
alerts:
  response_time_warning_ms: 750
`
		require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 10*time.Second, cfg.Collector.Interval)
		assert.Equal(t, 750.0, cfg.Alerts.ResponseTimeWarningMs)
		// Untouched fields keep defaults.
		assert.Equal(t, 0.7, cfg.Alerts.ApdexCritical)
	})

	t.Run("rejects unreadable file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("rejects invalid weights from file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		data := `
risk:
  weights:
    feature: 0.5
    dependency: 0.9
`
		require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "weights")
	})
}

func TestRiskConfig_Validate(t *testing.T) {
	t.Run("rejects weights not summing to one", func(t *testing.T) {
		cfg := Default()
		cfg.Risk.Weights["feature"] = 0.5
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "risk.weights")
	})

	t.Run("rejects negative weight", func(t *testing.T) {
		rc := RiskConfig{Weights: map[string]float64{"feature": -0.2, "dependency": 1.2}}
		err := rc.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "negative")
	})

	t.Run("rejects discount of one or more", func(t *testing.T) {
		cfg := Default()
		cfg.Risk.MitigationDiscount = 1.0
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects negative trigger", func(t *testing.T) {
		cfg := Default()
		cfg.Risk.Triggers["model"] = -1
		assert.Error(t, cfg.Validate())
	})
}

func TestAlertConfig_Validate(t *testing.T) {
	t.Run("rejects apdex threshold above one", func(t *testing.T) {
		cfg := Default()
		cfg.Alerts.ApdexCritical = 1.5
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "apdex_critical")
	})

	t.Run("rejects negative threshold", func(t *testing.T) {
		cfg := Default()
		cfg.Alerts.FailedAuthCritical = -5
		assert.Error(t, cfg.Validate())
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Run("rejects zero interval", func(t *testing.T) {
		cfg := Default()
		cfg.Collector.Interval = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "interval")
	})
}

func TestWatcher(t *testing.T) {
	t.Run("serves initial config and swaps on write", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o600))

		initial, err := Load(path)
		require.NoError(t, err)

		w, err := NewWatcher(path, initial, testLogger())
		require.NoError(t, err)
		defer func() { _ = w.Close() }()

		assert.Equal(t, "info", w.Current().LogLevel)

		require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o600))

		assert.Eventually(t, func() bool {
			return w.Current().LogLevel == "debug"
		}, 2*time.Second, 20*time.Millisecond)
	})

	t.Run("keeps last good config on invalid edit", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o600))

		initial, err := Load(path)
		require.NoError(t, err)

		w, err := NewWatcher(path, initial, testLogger())
		require.NoError(t, err)
		defer func() { _ = w.Close() }()

		bad := "risk:\n  weights:\n    feature: 2.0\n"
		require.NoError(t, os.WriteFile(path, []byte(bad), 0o600))

		// Give the watcher time to see the event; config must stay valid.
		time.Sleep(200 * time.Millisecond)
		assert.Equal(t, "info", w.Current().LogLevel)
		require.NoError(t, w.Current().Validate())
	})
}
