// internal/storage/memory.go
package storage

import (
	"context"
	"sync"
	"time"

	"github.com/opsforge/pulse/internal/metrics"
)

// SnapshotSink receives each snapshot keyed by its timestamp. Retention
// enforcement is the sink's own responsibility.
type SnapshotSink interface {
	Save(ctx context.Context, snap *metrics.MetricSnapshot) error
}

// MemoryStore keeps recent snapshots in memory for the operational API.
// Entries older than the retention window are pruned on every write.
type MemoryStore struct {
	retention time.Duration

	mu      sync.RWMutex
	entries []*metrics.MetricSnapshot
}

// NewMemoryStore creates a store pruning entries older than retention.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &MemoryStore{retention: retention}
}

// Save appends a snapshot and prunes expired entries.
func (s *MemoryStore) Save(_ context.Context, snap *metrics.MetricSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, snap)

	cutoff := snap.Timestamp.Add(-s.retention)
	firstLive := 0
	for firstLive < len(s.entries) && s.entries[firstLive].Timestamp.Before(cutoff) {
		firstLive++
	}
	if firstLive > 0 {
		s.entries = append([]*metrics.MetricSnapshot(nil), s.entries[firstLive:]...)
	}
	return nil
}

// Latest returns the most recent snapshot, or false when none exist yet.
func (s *MemoryStore) Latest() (*metrics.MetricSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, false
	}
	return s.entries[len(s.entries)-1], true
}

// Recent returns up to n snapshots, newest first.
func (s *MemoryStore) Recent(n int) []*metrics.MetricSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n > len(s.entries) {
		n = len(s.entries)
	}
	out := make([]*metrics.MetricSnapshot, 0, n)
	for i := len(s.entries) - 1; i >= len(s.entries)-n; i-- {
		out = append(out, s.entries[i])
	}
	return out
}

// Len returns the number of retained snapshots.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
