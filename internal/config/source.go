// internal/config/source.go
package config

// Source provides the current configuration to rule engines. The Watcher
// implements it for hot reload; Static wraps a fixed config for tests and
// for deployments without a config file.
type Source interface {
	Current() *Config
}

type staticSource struct {
	cfg *Config
}

// Static returns a Source that always serves the given config.
func Static(cfg *Config) Source {
	return staticSource{cfg: cfg}
}

func (s staticSource) Current() *Config {
	return s.cfg
}
