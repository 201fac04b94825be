// internal/config/watcher.go
package config

import (
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads configuration when the file changes. Rule engines read the
// current config through Current(), which swaps a pointer atomically so a
// reload never mutates thresholds out from under a running evaluation.
type Watcher struct {
	path    string
	current atomic.Pointer[Config]
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	done    chan struct{}
}

// NewWatcher creates a watcher seeded with an already-validated config.
func NewWatcher(path string, initial *Config, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}

	// Watch the directory: editors and config maps replace the file on write.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	w := &Watcher{
		path:    path,
		watcher: fw,
		logger:  logger.Named("config"),
		done:    make(chan struct{}),
	}
	w.current.Store(initial)

	go w.loop()
	return w, nil
}

// Current returns the active configuration. Safe for concurrent use.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		// Keep serving the last good config on a bad edit.
		w.logger.Error("reload rejected", zap.Error(err))
		return
	}
	w.current.Store(cfg)
	w.logger.Info("configuration reloaded", zap.String("path", w.path))
}

// Close stops the watch loop.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
