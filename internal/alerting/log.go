// internal/alerting/log.go
package alerting

import (
	"context"
	"sync"
)

// MemoryLog is a Notifier that retains recent alerts for the
// operational API.
type MemoryLog struct {
	mu      sync.RWMutex
	cap     int
	entries []Alert
}

// NewMemoryLog creates a log retaining up to capacity alerts.
func NewMemoryLog(capacity int) *MemoryLog {
	if capacity <= 0 {
		capacity = 100
	}
	return &MemoryLog{cap: capacity}
}

// Name implements Notifier.
func (l *MemoryLog) Name() string { return "memory-log" }

// Notify implements Notifier.
func (l *MemoryLog) Notify(_ context.Context, alert Alert) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, alert)
	if len(l.entries) > l.cap {
		l.entries = append([]Alert(nil), l.entries[len(l.entries)-l.cap:]...)
	}
	return nil
}

// Recent returns up to n alerts, newest first.
func (l *MemoryLog) Recent(n int) []Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]Alert, 0, n)
	for i := len(l.entries) - 1; i >= len(l.entries)-n; i-- {
		out = append(out, l.entries[i])
	}
	return out
}
