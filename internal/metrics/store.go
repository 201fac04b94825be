// internal/metrics/store.go
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
)

// Well-known store keys. Request-handling code writes these; the Collector
// reduces them into a MetricSnapshot. Unknown keys are carried through as-is.
const (
	KeyRequestsTotal      = "requests_total"
	KeyErrorsTotal        = "errors_total"
	KeyResponseTimes      = "response_time_ms"
	KeyCacheHitsTotal     = "cache_hits_total"
	KeyCacheMissesTotal   = "cache_misses_total"
	KeyApdexSatisfied     = "apdex_satisfied_total"
	KeyApdexTolerating    = "apdex_tolerating_total"
	KeyDBPoolInUse        = "db_pool_in_use"
	KeyDBPoolMax          = "db_pool_max"
	KeyActiveUsers        = "active_users"
	KeyConversionRate     = "conversion_rate"
	KeyChurnRate          = "churn_rate"
	KeyFailedAuthTotal    = "failed_auth_total"
	KeyRateLimitHitsTotal = "rate_limit_hits_total"
	KeyPanicsTotal        = "panics_total"
	KeyQueueDepthPrefix   = "queue_depth."
	KeyRiskFactorPrefix   = "risk_factor."
)

// Store is the single shared mutable resource between request-handling
// writers and the Collector. Counters and gauges are atomics behind a
// short-held map lock; sample rings carry their own lock so a snapshot
// never blocks writers for longer than one copy.
type Store struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Int64
	gauges   map[string]*atomic.Uint64
	samples  map[string]*sampleRing
}

// NewStore creates an empty metric store.
func NewStore() *Store {
	return &Store{
		counters: make(map[string]*atomic.Int64),
		gauges:   make(map[string]*atomic.Uint64),
		samples:  make(map[string]*sampleRing),
	}
}

// Increment adds delta to a monotonic counter, creating it at zero if absent.
func (s *Store) Increment(name string, delta int64) {
	s.counter(name).Add(delta)
}

// Set overwrites a gauge value.
func (s *Store) Set(name string, value float64) {
	s.gauge(name).Store(math.Float64bits(value))
}

// Counter returns the current counter value, zero if never written.
func (s *Store) Counter(name string) int64 {
	s.mu.RLock()
	c, ok := s.counters[name]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	return c.Load()
}

// Gauge returns the current gauge value, zero if never written.
func (s *Store) Gauge(name string) float64 {
	s.mu.RLock()
	g, ok := s.gauges[name]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	return math.Float64frombits(g.Load())
}

// RecordSample appends a value to a bounded ring, evicting the oldest entry
// once maxLen is reached.
func (s *Store) RecordSample(name string, value float64, maxLen int) {
	if maxLen <= 0 {
		return
	}
	s.ring(name, maxLen).append(value)
}

// Samples returns a copy of the ring contents in oldest-first order.
func (s *Store) Samples(name string) []float64 {
	s.mu.RLock()
	r, ok := s.samples[name]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return r.values()
}

// Dump is a consistent point-in-time copy of the store contents.
type Dump struct {
	Counters map[string]int64
	Gauges   map[string]float64
	Samples  map[string][]float64
}

// ReadAll copies every counter, gauge and sample ring. The copy is taken
// under a read lock held only for the duration of the copy itself, so
// concurrent increments land either fully before or fully after the dump.
func (s *Store) ReadAll() Dump {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dump := Dump{
		Counters: make(map[string]int64, len(s.counters)),
		Gauges:   make(map[string]float64, len(s.gauges)),
		Samples:  make(map[string][]float64, len(s.samples)),
	}
	for name, c := range s.counters {
		dump.Counters[name] = c.Load()
	}
	for name, g := range s.gauges {
		dump.Gauges[name] = math.Float64frombits(g.Load())
	}
	for name, r := range s.samples {
		dump.Samples[name] = r.values()
	}
	return dump
}

func (s *Store) counter(name string) *atomic.Int64 {
	s.mu.RLock()
	c, ok := s.counters[name]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok = s.counters[name]; ok {
		return c
	}
	c = &atomic.Int64{}
	s.counters[name] = c
	return c
}

func (s *Store) gauge(name string) *atomic.Uint64 {
	s.mu.RLock()
	g, ok := s.gauges[name]
	s.mu.RUnlock()
	if ok {
		return g
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok = s.gauges[name]; ok {
		return g
	}
	g = &atomic.Uint64{}
	s.gauges[name] = g
	return g
}

func (s *Store) ring(name string, maxLen int) *sampleRing {
	s.mu.RLock()
	r, ok := s.samples[name]
	s.mu.RUnlock()
	if ok {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok = s.samples[name]; ok {
		return r
	}
	r = newSampleRing(maxLen)
	s.samples[name] = r
	return r
}

// sampleRing is a fixed-capacity ring buffer of float64 samples.
type sampleRing struct {
	mu    sync.Mutex
	buf   []float64
	head  int
	count int
}

func newSampleRing(capacity int) *sampleRing {
	return &sampleRing{buf: make([]float64, capacity)}
}

func (r *sampleRing) append(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

func (r *sampleRing) values() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, r.count)
	if r.count < len(r.buf) {
		copy(out, r.buf[:r.count])
		return out
	}
	// Full ring: oldest entry sits at head.
	n := copy(out, r.buf[r.head:])
	copy(out[n:], r.buf[:r.head])
	return out
}
