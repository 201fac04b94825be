// internal/scaling/log.go
package scaling

import "sync"

// Log keeps the most recent decisions for the operational API.
type Log struct {
	mu      sync.RWMutex
	cap     int
	entries []*Decision
}

// NewLog creates a log retaining up to capacity decisions.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = 100
	}
	return &Log{cap: capacity}
}

// Record appends a decision, evicting the oldest when full.
func (l *Log) Record(d *Decision) {
	if d == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, d)
	if len(l.entries) > l.cap {
		l.entries = append([]*Decision(nil), l.entries[len(l.entries)-l.cap:]...)
	}
}

// Latest returns the most recent decision, or false when none exist.
func (l *Log) Latest() (*Decision, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return nil, false
	}
	return l.entries[len(l.entries)-1], true
}

// Recent returns up to n decisions, newest first.
func (l *Log) Recent(n int) []*Decision {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]*Decision, 0, n)
	for i := len(l.entries) - 1; i >= len(l.entries)-n; i-- {
		out = append(out, l.entries[i])
	}
	return out
}
